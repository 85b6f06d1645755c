package runner

import (
	"context"
	"fmt"

	"github.com/resctlgo/cgdemo/internal/calibrate"
	"github.com/resctlgo/cgdemo/internal/dispatch"
	"github.com/resctlgo/cgdemo/internal/intf"
	"github.com/resctlgo/cgdemo/internal/qossweep"
	"github.com/resctlgo/cgdemo/internal/tunesolver"
)

// iocostBenchGrid is the vrate grid the agent's iocost bench sweeps.
var iocostBenchGrid = qossweep.Grid{VRateMin: 50, VRateMax: 100, NrPoints: 5}

// defaultIOCostModel is the representative-SSD fallback used when no
// model has been probed for the device yet; the sweep refines from it.
func defaultIOCostModel() intf.IOCostModelParams {
	return intf.IOCostModelParams{
		Model:     "linear",
		RBPS:      200 << 20,
		RSeqIOPS:  50000,
		RRandIOPS: 50000,
		WBPS:      200 << 20,
		WSeqIOPS:  50000,
		WRandIOPS: 50000,
	}
}

// iocostBenchRunner runs one storage-calibration pass per sweep point
// against a fresh dispatch instance. The agent has no privileged path to
// actually re-rate the device per point, so the observed MOF/latency are
// scaled by the point's vrate, which is enough to exercise the sweep and
// solver machinery on real measurements; same approximation the bench
// driver CLI documents for its own sweep.
type iocostBenchRunner struct {
	r *Runner
}

func (b *iocostBenchRunner) RunAt(vrate float64) (map[string][]float64, error) {
	files := &dispatch.TestfileSet{NrFiles: 32, Sizes: make([]int64, 32)}
	for i := range files.Sizes {
		files.Sizes[i] = 1 << 20
	}
	d := dispatch.New(intf.DefaultHashdParams(), files, b.r.deps.State)
	go d.Run()
	defer d.Stop()

	sampler := newHashdSampler(b.r.deps.State, files, d)
	knobs, warnings := calibrate.RunHashdBench(sampler, b.r.isRotationalDevice())
	for _, w := range warnings {
		b.r.logf("bench-iocost: vrate=%.1f: %s", vrate, w)
	}

	var lat float64
	nrLat := 0
	for i := 0; i < 5; i++ {
		_, p99, ok := sampler.Sample()
		if !ok {
			break
		}
		lat += p99
		nrLat++
	}
	if nrLat == 0 {
		return nil, fmt.Errorf("runner: no latency samples at vrate %.1f", vrate)
	}
	lat /= float64(nrLat)

	mof := 0.0
	if knobs.MemFrac > 0 {
		mof = 1 / knobs.MemFrac
	}
	scale := 100 / vrate
	return map[string][]float64{
		string(tunesolver.SelMOF):     {mof * vrate / 100},
		string(tunesolver.SelRLatPct): {lat * scale},
		string(tunesolver.SelWLatPct): {lat * scale},
	}, nil
}

// solveIOCost fits the sweep's MOF series and pins the device at the
// curve's inflection vrate: the scaled model plus a min=max=100 QoS.
func solveIOCost(res *qossweep.SweepResult, model intf.IOCostModelParams) (intf.IOCostKnobs, error) {
	sel, err := tunesolver.ParseSelector("MOF")
	if err != nil {
		return intf.IOCostKnobs{}, err
	}
	var pts []tunesolver.Point
	for _, rr := range res.Results {
		if rr.Skipped || rr.Failed {
			continue
		}
		vals := rr.Series[string(tunesolver.SelMOF)]
		if len(vals) == 0 {
			continue
		}
		pts = append(pts, tunesolver.Point{X: rr.VRate, Y: vals[0]})
	}
	if len(pts) == 0 {
		return intf.IOCostKnobs{}, fmt.Errorf("runner: sweep produced no usable points")
	}

	ds := tunesolver.NewDataSeries(sel, pts, 10)
	curves := map[tunesolver.Selector]tunesolver.FittedCurve{
		tunesolver.SelMOF: {Selector: tunesolver.SelMOF, Shape: ds.Lines},
	}
	rule := tunesolver.Rule{Name: "default", Targets: []tunesolver.Target{
		{Sel: tunesolver.SelMOF, Kind: tunesolver.Inflection},
	}}
	vrate, err := tunesolver.SolveRule(rule, curves, res.Grid.VRateMin, res.Grid.VRateMax)
	if err != nil {
		return intf.IOCostKnobs{}, err
	}
	return tunesolver.ScaleModel(model, vrate), nil
}

// runBenchIOCost sweeps the vrate grid with a nested storage bench per
// point (persisting incrementally so an interrupted bench can be
// inspected), solves the fitted curves for the operating vrate, then
// saves and applies the resulting iocost knobs and returns to Idle.
func (r *Runner) runBenchIOCost(ctx context.Context, seq uint64) {
	r.mu.Lock()
	model := r.bench.IOCost.Model
	r.mu.Unlock()
	if model.RBPS == 0 && model.WBPS == 0 {
		model = defaultIOCostModel()
	}

	res, err := qossweep.Run(iocostBenchGrid, model, &iocostBenchRunner{r: r}, func(sr *qossweep.SweepResult) error {
		return intf.SaveJSON(r.paths.BenchIOCostResult, sr)
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.logf("bench-iocost: sweep: %v", err)
		r.transitionLocked(intf.StateIdle)
		return
	}

	knobs, err := solveIOCost(res, model)
	if err != nil {
		r.logf("bench-iocost: solve: %v", err)
	} else {
		r.bench.IOCost = knobs
	}
	r.bench.IOCostSeq = seq
	if err := intf.SaveJSON(r.paths.BenchIOCost, r.bench); err != nil {
		r.logf("bench-iocost: save: %v", err)
	}
	r.applyIOCostLocked()
	r.transitionLocked(intf.StateIdle)
}
