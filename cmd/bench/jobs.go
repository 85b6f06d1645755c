package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/resctlgo/cgdemo/internal/dispatch"
	"github.com/resctlgo/cgdemo/internal/intf"
	"github.com/resctlgo/cgdemo/internal/qossweep"
	"github.com/resctlgo/cgdemo/internal/reportring"
	"github.com/resctlgo/cgdemo/internal/tunesolver"
	"go.uber.org/zap"
)

// startReportCollector folds a dispatch instance's live samples into a
// report ring once a second, synthesizing the read/write IO-latency
// percentile tables from the same sample's latency sketch output (the
// bench driver has no external IO-latency sampler child of its own;
// that process belongs to the live agent, not a nested bench job).
// Returns a channel to close to stop, and a channel that closes
// once the collector goroutine has exited.
func startReportCollector(ring *reportring.Ring, disp *dispatch.Dispatcher) (stop chan struct{}, done chan struct{}) {
	stop = make(chan struct{})
	done = make(chan struct{})
	go func() {
		defer close(done)
		var seq uint64
		for {
			select {
			case <-stop:
				return
			case s, open := <-disp.Samples():
				if !open {
					return
				}
				seq++
				rep := intf.NewReport(seq, intf.StateBenchHashd)
				rep.IOLat = intf.IOLatReport{
					Read:  s.LatPct,
					Write: s.LatPct,
				}
				rep.Hashd[0] = intf.HashdReport{
					RPS:    s.RPS,
					Load:   s.Concurrency,
					LatPct: s.LatPct,
					Lat:    s.LatPct["99"],
				}
				_ = ring.Append(rep)
			}
		}
	}()
	return stop, done
}

// iocostModelFromSpec builds an IOCostModelParams from job-spec
// properties, falling back to a representative SSD model when a
// property is absent.
func iocostModelFromSpec(spec *intf.JobSpec) intf.IOCostModelParams {
	rbps, _ := spec.Uint("rbps", 200<<20)
	wbps, _ := spec.Uint("wbps", 200<<20)
	riops, _ := spec.Uint("riops", 50000)
	wiops, _ := spec.Uint("wiops", 50000)
	return intf.IOCostModelParams{
		Model:     spec.String("model", "linear"),
		RBPS:      rbps,
		RSeqIOPS:  riops,
		RRandIOPS: riops,
		WBPS:      wbps,
		WSeqIOPS:  wiops,
		WRandIOPS: wiops,
	}
}

// sweepDispatchRunner implements qossweep.BenchRunner by re-running the
// storage dispatch workload plus a memory-hog protection pass, with the
// observed metrics scaled by vrate (lower vrate ⇒ a more IO-throttled
// device ⇒ higher latency, less offloading, weaker isolation and work
// conservation), approximating the real kernel iocost-controlled run
// this harness has no privileged access to perform. It returns the
// metric series the tune solver's selectors read.
type sweepDispatchRunner struct {
	flags *benchFlags
}

func (r *sweepDispatchRunner) RunAt(vrate float64) (map[string][]float64, error) {
	report, err := runStorageJob(r.flags, &intf.JobSpec{Type: "storage", Props: map[string]string{}})
	if err != nil {
		return nil, err
	}
	sr, ok := report.(*storageBenchReport)
	if !ok {
		return nil, fmt.Errorf("unexpected storage job result type")
	}

	scale := 100.0 / vrate
	rlat := sr.ReadLatPcts["99"]["50"] * scale
	wlat := sr.WriteLatPcts["99"]["50"] * scale
	mof := sr.MemOffloadFactor * (vrate / 100.0)

	series := map[string][]float64{
		string(tunesolver.SelMOF):     {mof},
		string(tunesolver.SelRLatPct): {rlat},
		string(tunesolver.SelWLatPct): {wlat},
	}

	prot, err := runProtectionJob(r.flags, &intf.JobSpec{Type: "protection", Props: map[string]string{}})
	if err != nil {
		return nil, err
	}
	pr, ok := prot.(*protectionReport)
	if !ok {
		return nil, fmt.Errorf("unexpected protection job result type")
	}
	for sel, vals := range pr.series() {
		scaled := make([]float64, len(vals))
		for i, v := range vals {
			scaled[i] = clip01(v * vrate / 100.0)
		}
		series[sel] = scaled
	}
	return series, nil
}

// runIOCostQoSJob drives component J: a vrate grid sweep, each point
// run through the storage bench, persisted incrementally.
func runIOCostQoSJob(flags *benchFlags, spec *intf.JobSpec, zl *zap.Logger) (any, error) {
	vMin, _ := spec.Float("vrate-min", 50)
	vMax, _ := spec.Float("vrate-max", 100)
	nrPoints, _ := spec.Uint("nr-points", 5)
	dither, _ := spec.Float("dither-pct", 0)

	if flags.test {
		nrPoints = 2
	}

	grid := qossweep.Grid{VRateMin: vMin, VRateMax: vMax, NrPoints: int(nrPoints), DitherPct: dither}
	model := iocostModelFromSpec(spec)
	runner := &sweepDispatchRunner{flags: flags}

	resultPath := resultFilePath(flags, "iocost-qos")
	persist := func(sr *qossweep.SweepResult) error {
		zl.Info("sweep point persisted", zap.Int("nr_results", len(sr.Results)))
		return intf.SaveJSON(resultPath, sr)
	}

	return qossweep.Run(grid, model, runner, persist)
}

// runTuneJob drives component K: fit curves over a previously persisted
// iocost-qos sweep's series and solve a default QoS rule against them.
func runTuneJob(flags *benchFlags, spec *intf.JobSpec) (any, error) {
	sweepFile := spec.String("sweep-file", resultFilePath(flags, "iocost-qos"))
	var sweep qossweep.SweepResult
	if err := intf.LoadJSON(sweepFile, &sweep); err != nil {
		return nil, fmt.Errorf("load sweep result %s: %w", sweepFile, err)
	}

	selectorNames := strings.Split(spec.String("selectors", "MOF,rlat[99,mean],wlat[99,mean],isolation@10,work-csv"), ",")
	granularity, _ := spec.Uint("granularity", 10)

	curves := map[tunesolver.Selector]tunesolver.FittedCurve{}
	series := map[string]*tunesolver.DataSeries{}
	for _, name := range selectorNames {
		sel, err := tunesolver.ParseSelector(name)
		if err != nil {
			return nil, err
		}
		var pts []tunesolver.Point
		for _, r := range sweep.Results {
			if r.Skipped || r.Failed {
				continue
			}
			vals, ok := r.Series[string(sel.Base)]
			if !ok || len(vals) == 0 {
				continue
			}
			pts = append(pts, tunesolver.Point{X: r.VRate, Y: vals[0]})
		}
		if len(pts) == 0 {
			continue
		}
		ds := tunesolver.NewDataSeries(sel, pts, int(granularity))
		series[sel.String()] = ds
		curves[sel.Base] = tunesolver.FittedCurve{Selector: sel.Base, Shape: ds.Lines, SSR: ds.MeanErr * ds.MeanErr * float64(len(pts))}
	}

	rule := tunesolver.Rule{
		Name: spec.String("rule", "default"),
		Targets: []tunesolver.Target{
			{Sel: tunesolver.SelMOF, Kind: tunesolver.Inflection},
		},
	}
	vrate, err := tunesolver.SolveRule(rule, curves, sweep.Grid.VRateMin, sweep.Grid.VRateMax)
	if err != nil {
		return nil, fmt.Errorf("solve rule %s: %w", rule.Name, err)
	}

	model := iocostModelFromSpec(&intf.JobSpec{Props: map[string]string{}})
	scaled := tunesolver.ScaleModel(model, vrate)

	return map[string]any{
		"rule":      rule.Name,
		"vrate":     vrate,
		"scaled":    scaled,
		"series":    series,
		"solved_at": time.Now().Format(time.RFC3339),
	}, nil
}

func resultFilePath(flags *benchFlags, kind string) string {
	return flags.dir + "/" + kind + "-result.json"
}
