package calibrate

import (
	"fmt"
	"math"
)

// Sampler abstracts the instance of 4.F the calibrator drives: the Set*
// methods push a new parameter onto the dispatcher, Sample pulls one control
// period's worth of (rps, p99Lat) off it.
type Sampler interface {
	SetFileSizeMean(bytes uint64)
	SetMaxConcurrency(n uint32)
	SetPIDFree(bool)
	SetRpsTarget(rps uint32)
	SetLatTarget(sec float64)
	SetFileTotalFrac(frac float64)
	Sample() (rps, p99Lat float64, ok bool)
}

// Budget is the paired outer/inner retry counters the calibration
// phases share: both decrement independently; an inconsistency between successive
// measurements triggers an outer retry, within-budget noise triggers an
// inner retry without re-estimating available memory.
type Budget struct {
	Outer, Inner int
}

// DefaultBudget is a generous but bounded retry allowance.
func DefaultBudget() Budget { return Budget{Outer: 3, Inner: 5} }

// PhaseLatencyTarget is the fixed p99 latency target used during the
// single-CPU hash-size search.
const PhaseLatencyTarget = 0.010

// PhaseSaturationLatencyTarget is the lenient latency ceiling used while
// searching for rps_max under CPU saturation.
const PhaseSaturationLatencyTarget = 0.100

// Phase1 pins concurrency to 1, starts file_size_mean at a fixed 64 KiB
// and tightens it via its own small PID, one p99 sample per round, until
// the relative error against PhaseLatencyTarget is within 10% or the
// round budget is exhausted. The starting size is not derived from a
// measured hash time, and the rounds do not use the convergence routine.
func Phase1(s Sampler, cfg ConvergeConfig, budget Budget) (uint64, []string) {
	var warnings []string
	s.SetMaxConcurrency(1)
	s.SetPIDFree(true)
	s.SetLatTarget(PhaseLatencyTarget)

	fileSizeMean := uint64(64 << 10)
	s.SetFileSizeMean(fileSizeMean)

	pid := NewTighteningPID()
	rounds := budget.Outer * budget.Inner
	for i := 0; i < rounds; i++ {
		_, lat, ok := s.Sample()
		if !ok {
			warnings = append(warnings, "calibrate: phase1 sample unavailable")
			continue
		}
		relErr := (lat - PhaseLatencyTarget) / PhaseLatencyTarget
		if math.Abs(relErr) <= 0.10 {
			return fileSizeMean, warnings
		}
		adj := pid.Update(relErr, 1)
		fileSizeMean = scaleBytes(fileSizeMean, 1-adj)
		s.SetFileSizeMean(fileSizeMean)
	}
	warnings = append(warnings, fmt.Sprintf("calibrate: phase1 exhausted %d rounds without reaching 10%% latency error", rounds))
	return fileSizeMean, warnings
}

func scaleBytes(v uint64, factor float64) uint64 {
	nv := float64(v) * factor
	if nv < 4096 {
		nv = 4096
	}
	return uint64(nv)
}

// Phase2 raises rps_target to effectively infinite, fixes the latency
// target at 100ms, converges, and reports the converged RPS as rps_max.
func Phase2(s Sampler, cfg ConvergeConfig) (uint32, []string) {
	s.SetRpsTarget(math.MaxUint32)
	s.SetLatTarget(PhaseSaturationLatencyTarget)
	s.SetPIDFree(false)

	res := ConvergeLoop(cfg, 1, func() (float64, bool) {
		rps, _, ok := s.Sample()
		return rps, ok
	})
	var warnings []string
	if res.Warning != "" {
		warnings = append(warnings, res.Warning)
	}
	return uint32(res.Value), warnings
}

// Phase3 ramps file_total_frac upward in 10% steps while RPS holds; on
// the first RPS sag it bisects the bracket until half-width < 2.5%, then
// re-verifies on the opposite bound to catch delayed memory response,
// shifting the bracket one way if that re-verify fails its expected
// verdict.
func Phase3(s Sampler, cfg ConvergeConfig, targetRps uint32) (float64, []string) {
	var warnings []string
	s.SetRpsTarget(targetRps)
	s.SetLatTarget(PhaseSaturationLatencyTarget)

	holdsAt := func(frac float64) bool {
		s.SetFileTotalFrac(frac)
		res := ConvergeLoop(cfg, 1, func() (float64, bool) {
			rps, _, ok := s.Sample()
			return rps, ok
		})
		return res.Value >= float64(targetRps)*0.9
	}

	lo, hi := 0.0, 0.0
	for frac := 0.1; frac <= 1.0; frac += 0.1 {
		if !holdsAt(frac) {
			hi = frac
			lo = frac - 0.1
			break
		}
		lo = frac
	}
	if hi == 0 {
		warnings = append(warnings, "calibrate: phase3 found no RPS sag up to 100% file_total_frac")
		return lo, warnings
	}

	for (hi-lo)/2 > 0.025 {
		mid := (lo + hi) / 2
		if holdsAt(mid) {
			lo = mid
		} else {
			hi = mid
		}
	}

	// Re-verify on the opposite bound to catch delayed memory response.
	if !holdsAt(lo) {
		warnings = append(warnings, "calibrate: phase3 bracket re-verify failed at lower bound, shifting bracket down")
		lo -= 0.025
		if lo < 0 {
			lo = 0
		}
	}
	return lo, warnings
}

// Phase4 steps downward by 2.5% from the bisection result until RPS
// regains full target (within 10%), then subtracts a 12.5% buffer.
func Phase4(s Sampler, cfg ConvergeConfig, targetRps uint32, bisected float64) (float64, []string) {
	var warnings []string
	frac := bisected
	for frac > 0 {
		s.SetFileTotalFrac(frac)
		res := ConvergeLoop(cfg, 1, func() (float64, bool) {
			rps, _, ok := s.Sample()
			return rps, ok
		})
		if res.Value >= float64(targetRps)*0.9 {
			break
		}
		frac -= 0.025
	}
	final := frac - 0.125
	if final < 0 {
		final = 0
		warnings = append(warnings, "calibrate: phase4 buffer pushed file_total_frac below zero, clamped")
	}
	return final, warnings
}

// TighteningPID is a small dedicated PID for phase1's file_size_mean
// search, separate from the dispatcher's own latency/RPS PIDs.
type TighteningPID struct {
	integral float64
}

// NewTighteningPID builds the phase1 search controller with fixed,
// tight gains (this is a small calibration-only helper, not a tunable
// knob).
func NewTighteningPID() *TighteningPID { return &TighteningPID{} }

// Update returns the fractional size adjustment for one round.
func (t *TighteningPID) Update(relErr, dur float64) float64 {
	const kp, ki = 0.5, 0.1
	t.integral += relErr * dur
	return kp*relErr + ki*t.integral
}
