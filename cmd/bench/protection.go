package main

import (
	"fmt"
	"time"

	"github.com/beorn7/perks/quantile"

	"github.com/resctlgo/cgdemo/internal/dispatch"
	"github.com/resctlgo/cgdemo/internal/intf"
	"github.com/resctlgo/cgdemo/internal/memhog"
	"github.com/resctlgo/cgdemo/internal/progstate"
	"github.com/resctlgo/cgdemo/internal/tunesolver"
)

// protectionReport is the "protection" job's result: how well the
// primary workload's RPS held up while a memory hog ran beside it, and
// how much of its requested bandwidth the hog itself achieved.
type protectionReport struct {
	BaselineRPS float64 `json:"baseline_rps"`
	HoggedRPS   float64 `json:"hogged_rps"`

	// Isolation is observed/baseline RPS clipped to [0,1], reported at
	// the standard percentiles over the per-sample series; 1 means the
	// hog never dented the primary workload.
	Isolation map[string]float64 `json:"isolation_pct"`

	// WorkCSV is the hog's achieved/requested write bandwidth clipped to
	// [0,1]: how much antagonist work was conserved after the primary
	// workload's needs were met.
	WorkCSV float64 `json:"work_csv"`

	HogWBPS         uint64 `json:"hog_wbps"`
	HogBytesWritten uint64 `json:"hog_bytes_written"`
	NrSamples       int    `json:"nr_samples"`
}

// series flattens the report into the selector-keyed values the tune
// solver's isolation/work-conservation metrics consume.
func (p *protectionReport) series() map[string][]float64 {
	return map[string][]float64{
		string(tunesolver.SelIsolation): {p.Isolation["10"]},
		string(tunesolver.SelWorkCSV):   {p.WorkCSV},
	}
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// collectRPS averages nr consecutive control-period RPS samples.
func collectRPS(s *dispatchSampler, nr int) (float64, error) {
	var sum float64
	got := 0
	for i := 0; i < nr; i++ {
		rps, _, ok := s.Sample()
		if !ok {
			break
		}
		sum += rps
		got++
	}
	if got == 0 {
		return 0, fmt.Errorf("no samples from the dispatch loop")
	}
	return sum / float64(got), nil
}

// runProtectionJob measures the primary workload's isolation under a
// memory hog: run the hasher alone to establish a baseline RPS, start
// the hog, then sample the RPS ratio per control period and the hog's
// own work conservation.
func runProtectionJob(flags *benchFlags, spec *intf.JobSpec) (any, error) {
	nrSamples, _ := spec.Uint("samples", 30)
	wbps, _ := spec.Uint("hog-wbps", 64<<20)
	if flags.test {
		nrSamples = 5
	}

	state := progstate.New()
	defer state.Exit()

	params := intf.DefaultHashdParams()
	params.RpsTarget = 100
	params.P99LatTarget = 0.1
	sizes := make([]int64, 32)
	for i := range sizes {
		sizes[i] = 64 << 10
	}
	files := &dispatch.TestfileSet{NrFiles: len(sizes), Sizes: sizes}
	disp := dispatch.New(params, files, state)
	go disp.Run()
	defer disp.Stop()

	sampler := newDispatchSampler(disp)

	baseline, err := collectRPS(sampler, int(nrSamples))
	if err != nil {
		return nil, fmt.Errorf("protection baseline: %w", err)
	}
	if baseline <= 0 {
		baseline = 1
	}

	hogState := progstate.New()
	hog := memhog.New(memhog.Config{
		WriteBPS:        wbps,
		ReadBPS:         wbps / 2,
		NrReaders:       2,
		MaxDebt:         time.Second,
		Compressibility: 0.5,
	}, hogState)
	hogDone := make(chan struct{})
	go func() {
		hog.Run()
		close(hogDone)
	}()
	hogStart := time.Now()

	sketch := quantile.NewTargeted(map[float64]float64{
		0.01: 0.001, 0.10: 0.001, 0.50: 0.001, 1.00: 0.001,
	})
	var isoSum, hoggedSum float64
	got := 0
	for i := 0; i < int(nrSamples); i++ {
		rps, _, ok := sampler.Sample()
		if !ok {
			break
		}
		iso := clip01(rps / baseline)
		sketch.Insert(iso)
		isoSum += iso
		hoggedSum += rps
		got++
	}
	hogDur := time.Since(hogStart).Seconds()

	hogState.Exit()
	<-hogDone
	if got == 0 {
		return nil, fmt.Errorf("protection: no samples under memory hog")
	}

	written := hog.Status().BytesWritten.Load()
	workCSV := 0.0
	if hogDur > 0 && wbps > 0 {
		workCSV = clip01(float64(written) / hogDur / float64(wbps))
	}

	return &protectionReport{
		BaselineRPS: baseline,
		HoggedRPS:   hoggedSum / float64(got),
		Isolation: map[string]float64{
			"01":   sketch.Query(0.01),
			"10":   sketch.Query(0.10),
			"50":   sketch.Query(0.50),
			"100":  sketch.Query(1.00),
			"mean": isoSum / float64(got),
		},
		WorkCSV:         workCSV,
		HogWBPS:         wbps,
		HogBytesWritten: written,
		NrSamples:       got,
	}, nil
}
