// Package qossweep implements the storage-bench QoS sweep: drive
// the benchmark orchestrator once per iocost override point on an
// evenly spaced vrate grid, streaming each run's result through the
// study pipeline and persisting incrementally so interrupted sweeps can
// resume.
package qossweep

import (
	"math/rand"

	"github.com/google/uuid"

	"github.com/resctlgo/cgdemo/internal/intf"
)

// minRBPSFloor and minIOPSFloor are the conservative per-channel floors
// used to derive the absolute minimum vrate.
const (
	minRBPSFloor = 8 << 20
	minIOPSFloor = 16
)

// Override is one iocost QoS override point in the sweep, or nil to
// disable iocost entirely for that run.
type Override struct {
	Enabled bool
	Params  intf.IOCostQoSParams
}

// Grid describes the vrate sweep's span and optional dithering.
type Grid struct {
	VRateMin   float64
	VRateMax   float64
	NrPoints   int
	DitherPct  float64 // +/- jitter applied to each grid point, remembered across runs
}

// Points returns the grid's vrate values, applying the remembered
// dither offsets (seeded so repeated runs with the same RunID reproduce
// identical points).
func (g Grid) Points(runID string) []float64 {
	if g.NrPoints < 2 {
		g.NrPoints = 2
	}
	step := (g.VRateMax - g.VRateMin) / float64(g.NrPoints-1)
	rng := rand.New(rand.NewSource(int64(seedFromUUID(runID))))
	pts := make([]float64, g.NrPoints)
	for i := range pts {
		v := g.VRateMin + step*float64(i)
		if g.DitherPct > 0 {
			jitter := (rng.Float64()*2 - 1) * g.DitherPct / 100 * v
			v += jitter
		}
		pts[i] = v
	}
	return pts
}

func seedFromUUID(s string) uint32 {
	if s == "" {
		return 1
	}
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// AbsoluteMinVRate computes the smallest vrate (as a percentage) at
// which the model's derived RBPS/IOPS targets stay above the
// conservative floor.
func AbsoluteMinVRate(model intf.IOCostModelParams) float64 {
	candidates := []struct {
		bps, iops uint64
	}{
		{model.RBPS, model.RSeqIOPS},
		{model.RBPS, model.RRandIOPS},
		{model.WBPS, model.WSeqIOPS},
		{model.WBPS, model.WRandIOPS},
	}
	minVRate := 0.0
	for _, c := range candidates {
		if c.bps == 0 || c.iops == 0 {
			continue
		}
		vByBPS := minRBPSFloor / float64(c.bps) * 100
		vByIOPS := float64(minIOPSFloor) / float64(c.iops) * 100
		v := vByBPS
		if vByIOPS > v {
			v = vByIOPS
		}
		if v > minVRate {
			minVRate = v
		}
	}
	if minVRate > 100 {
		minVRate = 100
	}
	return minVRate
}

// RunResult is one sweep point's outcome.
type RunResult struct {
	VRate   float64 `json:"vrate"`
	Skipped bool    `json:"skipped"`
	Failed  bool    `json:"failed"`
	Retries int     `json:"retries"`
	Series  map[string][]float64 `json:"series"` // metric -> time-ordered values, for tunesolver
}

// SweepResult is the full incrementally-persisted sweep state.
type SweepResult struct {
	RunID   string      `json:"run_id"`
	Grid    Grid        `json:"grid"`
	Results []RunResult `json:"results"`
}

// NewSweepResult starts a fresh sweep with a generated run ID.
func NewSweepResult(grid Grid) *SweepResult {
	return &SweepResult{RunID: uuid.NewString(), Grid: grid}
}

// BenchRunner abstracts "install override, run storage bench, extract
// vrate series via the study pipeline" so the sweep loop stays testable
// without spinning up a real nested agent-runner process tree.
type BenchRunner interface {
	RunAt(vrate float64) (map[string][]float64, error)
}

// RetryBudget bounds how many times a single failed point is retried
// before the sweep gives up on it.
const RetryBudget = 2

// Run drives the sweep: for each grid point below the absolute minimum
// vrate it records a skip; otherwise it runs the bench (retrying up to
// RetryBudget times) and persists after every point via persist.
func Run(grid Grid, model intf.IOCostModelParams, runner BenchRunner, persist func(*SweepResult) error) (*SweepResult, error) {
	res := NewSweepResult(grid)
	floor := AbsoluteMinVRate(model)

	for _, v := range grid.Points(res.RunID) {
		rr := RunResult{VRate: v}
		if v < floor {
			rr.Skipped = true
			res.Results = append(res.Results, rr)
			if err := persist(res); err != nil {
				return res, err
			}
			continue
		}

		var series map[string][]float64
		var err error
		for attempt := 0; attempt <= RetryBudget; attempt++ {
			series, err = runner.RunAt(v)
			if err == nil {
				break
			}
			rr.Retries = attempt + 1
		}
		if err != nil {
			rr.Failed = true
		} else {
			rr.Series = series
		}
		res.Results = append(res.Results, rr)
		if perr := persist(res); perr != nil {
			return res, perr
		}
	}
	return res, nil
}

// Resume continues a previously persisted sweep, skipping points already
// recorded (matched by index, since Points() is deterministic for a
// fixed RunID).
func Resume(prev *SweepResult, model intf.IOCostModelParams, runner BenchRunner, persist func(*SweepResult) error) (*SweepResult, error) {
	floor := AbsoluteMinVRate(model)
	pts := prev.Grid.Points(prev.RunID)
	if len(prev.Results) >= len(pts) {
		return prev, nil
	}
	for i := len(prev.Results); i < len(pts); i++ {
		v := pts[i]
		rr := RunResult{VRate: v}
		if v < floor {
			rr.Skipped = true
			prev.Results = append(prev.Results, rr)
			if err := persist(prev); err != nil {
				return prev, err
			}
			continue
		}
		var series map[string][]float64
		var err error
		for attempt := 0; attempt <= RetryBudget; attempt++ {
			series, err = runner.RunAt(v)
			if err == nil {
				break
			}
			rr.Retries = attempt + 1
		}
		if err != nil {
			rr.Failed = true
		} else {
			rr.Series = series
		}
		prev.Results = append(prev.Results, rr)
		if perr := persist(prev); perr != nil {
			return prev, perr
		}
	}
	return prev, nil
}
