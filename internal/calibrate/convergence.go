// Package calibrate implements the bench calibrator: the
// multi-phase self-calibration driven against an instance of the
// adaptive dispatcher, converging on file_size_mean, rps_max, and the
// memory-saturation bisection bracket.
package calibrate

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// Window is one sliding-window convergence check's input: a time-ordered
// series of (t, value) samples covering the configured window duration.
type Window struct {
	T []float64
	V []float64
}

// ConvergeConfig tunes the convergence routine.
type ConvergeConfig struct {
	WindowSec       float64
	SlopeFrac       float64 // default 0.01
	ErrSlopeFrac    float64 // default 0.025
	MaxStreakFrac   float64 // monotonic-streak-length / period threshold, default 0.5
	NrConvergences  int
	MaxDurationSec  float64
}

// DefaultConvergeConfig is the stock tuning for SSD-class storage.
func DefaultConvergeConfig() ConvergeConfig {
	return ConvergeConfig{
		WindowSec:      15,
		SlopeFrac:      0.01,
		ErrSlopeFrac:   0.025,
		MaxStreakFrac:  0.5,
		NrConvergences: 3,
		MaxDurationSec: 120,
	}
}

// Result is what one convergence pass over a window produces.
type Result struct {
	Converged bool
	Value     float64 // mean of the window
	Slope     float64
	ErrSlope  float64
	Warning   string
}

// checkMonotonicStreak finds the longest run of strictly monotonic
// (same-direction) steps in v and reports whether it's >= period*frac
// samples long.
func checkMonotonicStreak(v []float64, maxFrac float64) bool {
	if len(v) < 2 {
		return false
	}
	longest, cur := 1, 1
	dir := 0
	for i := 1; i < len(v); i++ {
		d := 0
		switch {
		case v[i] > v[i-1]:
			d = 1
		case v[i] < v[i-1]:
			d = -1
		default:
			d = dir
		}
		if d != 0 && d == dir {
			cur++
		} else {
			cur = 1
		}
		dir = d
		if cur > longest {
			longest = cur
		}
	}
	return float64(longest) >= float64(len(v))*maxFrac
}

// CheckWindow evaluates one sliding window of the convergence
// routine: fit a linear regression of the series, fit a second
// regression of the residuals, and declare convergence when both slopes
// (relative to the mean) are small and there's no long monotonic streak.
func CheckWindow(w Window, cfg ConvergeConfig) Result {
	n := len(w.V)
	if n < 2 {
		return Result{Value: meanOf(w.V)}
	}

	mean := stat.Mean(w.V, nil)
	alpha, slope := stat.LinearRegression(w.T, w.V, nil, false)

	resid := make([]float64, n)
	for i := range w.V {
		pred := alpha + slope*w.T[i]
		resid[i] = w.V[i] - pred
	}
	_, errSlope := stat.LinearRegression(w.T, resid, nil, false)

	if mean == 0 {
		return Result{Value: mean, Slope: slope, ErrSlope: errSlope}
	}

	slopeOK := absF(slope)/absF(mean) <= cfg.SlopeFrac
	errSlopeOK := absF(errSlope)/absF(mean) <= cfg.ErrSlopeFrac
	noStreak := !checkMonotonicStreak(w.V, cfg.MaxStreakFrac)

	return Result{
		Converged: slopeOK && errSlopeOK && noStreak,
		Value:     mean,
		Slope:     slope,
		ErrSlope:  errSlope,
	}
}

func meanOf(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return stat.Mean(v, nil)
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// ConvergeLoop repeatedly samples next() (one series value per call)
// until NrConvergences consecutive windows converge, or MaxDurationSec
// elapses — in which case it returns the latest value with a warning
// rather than aborting.
func ConvergeLoop(cfg ConvergeConfig, sampleIntervalSec float64, next func() (float64, bool)) Result {
	var t, v []float64
	converges := 0
	elapsed := 0.0
	windowN := int(cfg.WindowSec / sampleIntervalSec)
	if windowN < 2 {
		windowN = 2
	}

	var last Result
	for elapsed < cfg.MaxDurationSec {
		val, ok := next()
		if !ok {
			break
		}
		t = append(t, elapsed)
		v = append(v, val)
		elapsed += sampleIntervalSec
		if len(t) > windowN {
			t = t[len(t)-windowN:]
			v = v[len(v)-windowN:]
		}
		if len(t) < windowN {
			continue
		}
		last = CheckWindow(Window{T: t, V: v}, cfg)
		if last.Converged {
			converges++
			if converges >= cfg.NrConvergences {
				return last
			}
		} else {
			converges = 0
		}
	}
	last.Warning = fmt.Sprintf("calibrate: convergence not reached within %.0fs, returning latest sample", cfg.MaxDurationSec)
	return last
}
