package calibrate

import "testing"

func TestCheckWindowConvergesOnFlatSeries(t *testing.T) {
	cfg := DefaultConvergeConfig()
	w := Window{
		T: []float64{0, 1, 2, 3, 4, 5, 6, 7},
		V: []float64{100, 101, 99, 100, 101, 99, 100, 100},
	}
	res := CheckWindow(w, cfg)
	if !res.Converged {
		t.Fatalf("CheckWindow() on flat noisy series = %+v, want Converged", res)
	}
}

func TestCheckWindowRejectsTrendingSeries(t *testing.T) {
	cfg := DefaultConvergeConfig()
	v := make([]float64, 20)
	tv := make([]float64, 20)
	for i := range v {
		tv[i] = float64(i)
		v[i] = 10 + float64(i)*5
	}
	res := CheckWindow(Window{T: tv, V: v}, cfg)
	if res.Converged {
		t.Fatalf("CheckWindow() on strongly trending series = %+v, want not Converged", res)
	}
}

func TestCheckWindowTooFewSamples(t *testing.T) {
	res := CheckWindow(Window{T: []float64{0}, V: []float64{5}}, DefaultConvergeConfig())
	if res.Converged {
		t.Fatalf("CheckWindow() with <2 samples = %+v, want not Converged", res)
	}
}

func TestCheckMonotonicStreakDetectsLongRun(t *testing.T) {
	v := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if !checkMonotonicStreak(v, 0.5) {
		t.Fatalf("checkMonotonicStreak() on fully increasing series = false, want true")
	}
}

func TestCheckMonotonicStreakIgnoresShortRuns(t *testing.T) {
	v := []float64{5, 6, 5, 6, 5, 6, 5, 6}
	if checkMonotonicStreak(v, 0.5) {
		t.Fatalf("checkMonotonicStreak() on oscillating series = true, want false")
	}
}

func TestConvergeLoopReturnsWarningOnTimeout(t *testing.T) {
	cfg := DefaultConvergeConfig()
	cfg.WindowSec = 2
	cfg.MaxDurationSec = 5
	n := 0
	res := ConvergeLoop(cfg, 1, func() (float64, bool) {
		n++
		return float64(n) * 100, true // ever-increasing, never converges
	})
	if res.Warning == "" {
		t.Fatalf("ConvergeLoop() on non-converging input = %+v, want a warning set", res)
	}
}

func TestConvergeLoopStopsWhenSourceExhausted(t *testing.T) {
	cfg := DefaultConvergeConfig()
	calls := 0
	res := ConvergeLoop(cfg, 1, func() (float64, bool) {
		calls++
		return 0, false
	})
	if calls != 1 {
		t.Fatalf("next() called %d times, want exactly 1 before giving up", calls)
	}
	if res.Converged {
		t.Fatalf("ConvergeLoop() with immediately exhausted source = %+v, want not Converged", res)
	}
}
