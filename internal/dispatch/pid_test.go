package dispatch

import "testing"

func TestPIDProportionalOnly(t *testing.T) {
	p := NewPID(2, 0, 0)
	if got := p.Update(0.5, 1); got != 1.0 {
		t.Fatalf("Update() = %v, want 1.0 (Kp*err)", got)
	}
}

func TestPIDIntegralAccumulates(t *testing.T) {
	p := NewPID(0, 1, 0)
	p.Update(1, 1)
	got := p.Update(1, 1)
	if got != 2 {
		t.Fatalf("Update() second call = %v, want 2 (integral of 1+1)", got)
	}
}

func TestPIDResetIntegral(t *testing.T) {
	p := NewPID(0, 1, 0)
	p.Update(1, 1)
	p.ResetIntegral()
	if got := p.Integral(); got != 0 {
		t.Fatalf("Integral() after reset = %v, want 0", got)
	}
}

func TestPIDDerivativeNotPrimedOnFirstSample(t *testing.T) {
	p := NewPID(0, 0, 1)
	if got := p.Update(5, 1); got != 0 {
		t.Fatalf("Update() first sample = %v, want 0 (derivative unprimed)", got)
	}
	if got := p.Update(7, 1); got != 2 {
		t.Fatalf("Update() second sample = %v, want 2 (derivative of 7-5)", got)
	}
}

func TestPIDZeroDurationTreatedAsOne(t *testing.T) {
	p := NewPID(1, 0, 0)
	got := p.Update(3, 0)
	if got != 3 {
		t.Fatalf("Update() with dur=0 = %v, want 3 (dur treated as 1)", got)
	}
}
