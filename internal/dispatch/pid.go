package dispatch

// PID is a direct transcription of the two-PID control loop's gain
// formulas: error -> proportional + integral + derivative,
// output unclamped here (callers apply their own saturation).
type PID struct {
	Kp, Ki, Kd float64

	integral  float64
	lastError float64
	primed    bool
}

// NewPID builds a PID with the given gains.
func NewPID(kp, ki, kd float64) *PID {
	return &PID{Kp: kp, Ki: ki, Kd: kd}
}

// Update feeds one new error sample (already normalized, e.g.
// p99_lat/target - 1) for a control period of dur seconds and returns
// the adjustment output.
func (p *PID) Update(errVal, dur float64) float64 {
	if dur <= 0 {
		dur = 1
	}
	p.integral += errVal * dur
	deriv := 0.0
	if p.primed {
		deriv = (errVal - p.lastError) / dur
	}
	p.lastError = errVal
	p.primed = true
	return p.Kp*errVal + p.Ki*p.integral + p.Kd*deriv
}

// ResetIntegral zeroes the accumulated integral term, used by the
// dispatch loop's dominance tracking: whichever PID isn't currently
// limiting has its integral reset so it doesn't wind up while idle.
func (p *PID) ResetIntegral() { p.integral = 0 }

// Integral returns the current accumulated integral term.
func (p *PID) Integral() float64 { return p.integral }
