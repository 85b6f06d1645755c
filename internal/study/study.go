// Package study implements the composable reducer framework the bench
// orchestrator runs over a report range: each Study observes one sample
// at a time and accumulates its own running result.
package study

import (
	"fmt"

	"github.com/resctlgo/cgdemo/internal/intf"
	"github.com/resctlgo/cgdemo/internal/reportring"
)

// DefaultPcts is the standard percentile set every MeanPcts/IoLatencyPcts
// result reports unless the caller asks for a subset.
var DefaultPcts = []string{"00", "01", "05", "10", "25", "50", "75", "90", "95", "99", "100", "mean", "stdev"}

// SelArg is what each Study.Observe call receives for one sample.
type SelArg struct {
	Rep *intf.Report
	Dur float64
	Cnt int
}

// Selector extracts zero or more scalar values from a sample; it returns
// zero values while priming (e.g. DeltaRate's first observation) and
// more than one when cnt > 1 is used to backfill a gap.
type Selector func(arg *SelArg) []float64

// Study is one reducer in a pipeline; Observe is called once per sample,
// in chronological order, for every study running over the same range.
type Study interface {
	Observe(arg *SelArg) error
}

// Runner drives a set of studies over one report range in a single pass.
type Runner struct {
	studies []Study
}

// NewRunner builds a Runner over the given studies.
func NewRunner(studies ...Study) *Runner {
	return &Runner{studies: studies}
}

// Run iterates [start, end) from ring, feeding every present report to
// every study in registration order, and returns (nrReports, nrMissing).
// A range with zero reports is an error: the invariant is that a study
// run always has at least one data point to reduce over.
func (r *Runner) Run(ring *reportring.Ring, start, end int64) (nrReports, nrMissing int, err error) {
	entries := ring.Iterate(start, end)

	var lastAtMs int64
	first := true
	cnt := 0

	for _, e := range entries {
		cnt++
		if e.Miss {
			nrMissing++
			continue
		}

		thisAtMs := e.Report.Timestamp.UnixMilli()
		dur := 1.0
		if !first {
			dur = float64(thisAtMs-lastAtMs) / 1000.0
		}
		lastAtMs = thisAtMs
		first = false

		arg := &SelArg{Rep: e.Report, Dur: dur, Cnt: cnt}
		for _, st := range r.studies {
			if obsErr := st.Observe(arg); obsErr != nil {
				return nrReports, nrMissing, obsErr
			}
		}
		nrReports++
		cnt = 0
	}

	if nrReports == 0 {
		return 0, 0, fmt.Errorf("study: no reports found in range [%d, %d)", start, end)
	}
	return nrReports, nrMissing, nil
}

// MissingRatio computes the fraction of samples in a run that were
// misses, 0 when there were none to miss.
func MissingRatio(nrReports, nrMissing int) float64 {
	total := nrReports + nrMissing
	if total == 0 {
		return 0
	}
	return float64(nrMissing) / float64(total)
}

// DeltaRateSelector adapts a monotonic counter selector into a Selector
// suitable for feeding Mean/MeanPcts: it emits max(0, (cur-last)/dur)
// starting from the second observation (the first primes the baseline).
func DeltaRateSelector(raw func(rep *intf.Report) float64) Selector {
	var last float64
	primed := false
	return func(arg *SelArg) []float64 {
		cur := raw(arg.Rep)
		if !primed {
			primed = true
			last = cur
			return nil
		}
		rate := (cur - last) / arg.Dur
		if rate < 0 {
			rate = 0
		}
		last = cur
		return []float64{rate}
	}
}
