package tunesolver

import (
	"fmt"

	"github.com/resctlgo/cgdemo/internal/intf"
)

// Selector names one of the closed set of metrics the sweep tracks.
type Selector string

const (
	SelMOF        Selector = "MOF"
	SelAMOF       Selector = "AMOF"
	SelIsolation  Selector = "isolation@pct"
	SelLatImp     Selector = "lat-imp"
	SelWorkCSV    Selector = "work-csv"
	SelMissing    Selector = "missing"
	SelRLatPct    Selector = "rlat[pct,time]"
	SelWLatPct    Selector = "wlat[pct,time]"
)

// selectorMonotonicity is the fixed monotonicity constraint per metric.
var selectorMonotonicity = map[Selector]Monotonicity{
	SelMOF:       Increasing,
	SelAMOF:      Increasing,
	SelIsolation: Increasing,
	SelLatImp:    Decreasing,
	SelWorkCSV:   Decreasing,
	SelMissing:   Decreasing,
	SelRLatPct:   Decreasing,
	SelWLatPct:   Decreasing,
}

// isLatencySelector reports whether sel is one of the two latency series
// that get the Chauvenet outlier-rejection pass.
func isLatencySelector(sel Selector) bool {
	return sel == SelRLatPct || sel == SelWLatPct
}

// MonotonicityOf returns the fixed constraint for sel, defaulting to Free
// for an unrecognized selector.
func MonotonicityOf(sel Selector) Monotonicity {
	if m, ok := selectorMonotonicity[sel]; ok {
		return m
	}
	return Free
}

// FittedCurve bundles a metric's fitted shape with the reported SSR
// (computed over all points, including any Chauvenet-rejected ones).
type FittedCurve struct {
	Selector Selector
	Shape    Shape
	SSR      float64
}

// TargetKind distinguishes the two ways a rule can pin a metric.
type TargetKind int

const (
	Inflection TargetKind = iota
	Threshold
)

// Target is one rule component: solve selector's fitted curve either at
// its inflection (the flat value past the breakpoint) or at the vrate
// where the curve crosses Value.
type Target struct {
	Sel   Selector
	Kind  TargetKind
	Value float64 // meaningful only for Threshold
}

// Rule is a user-supplied named bundle of targets; the rule's vrate is
// the minimum across all of its targets' solved vrates.
type Rule struct {
	Name    string
	Targets []Target
}

// SolveTarget resolves one target against curve within [vrateMin,
// vrateMax]: Inflection returns the curve's right-flat breakpoint
// (clipped into range); Threshold intersects the slope segment and
// clips to the range.
func SolveTarget(curve FittedCurve, t Target, vrateMin, vrateMax float64) (float64, error) {
	s := curve.Shape
	switch t.Kind {
	case Inflection:
		return clip(s.B1, vrateMin, vrateMax), nil
	case Threshold:
		if s.B1 == s.B0 {
			// No slope segment: the target is either always or never met.
			if (s.Y0 <= t.Value && MonotonicityOf(t.Sel) == Increasing) ||
				(s.Y0 >= t.Value && MonotonicityOf(t.Sel) == Decreasing) {
				return vrateMin, nil
			}
			return vrateMax, nil
		}
		frac := (t.Value - s.Y0) / (s.Y1 - s.Y0)
		x := s.B0 + frac*(s.B1-s.B0)
		return clip(x, vrateMin, vrateMax), nil
	default:
		return 0, fmt.Errorf("tunesolver: unknown target kind for %s", t.Sel)
	}
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SolveRule resolves every target in r against curves and returns the
// minimum vrate across them, which becomes the rule's final vrate.
func SolveRule(r Rule, curves map[Selector]FittedCurve, vrateMin, vrateMax float64) (float64, error) {
	best := vrateMax
	found := false
	for _, t := range r.Targets {
		curve, ok := curves[t.Sel]
		if !ok {
			return 0, fmt.Errorf("tunesolver: rule %q references unfitted selector %s", r.Name, t.Sel)
		}
		v, err := SolveTarget(curve, t, vrateMin, vrateMax)
		if err != nil {
			return 0, err
		}
		if !found || v < best {
			best, found = v, true
		}
	}
	return best, nil
}

// ScaleModel applies a rule's solved vrate as a scale_factor (vrate/100)
// on base, and returns the QoS pinned at a fixed 100% vrate so the
// device runs at the scaled model's native rate.
func ScaleModel(base intf.IOCostModelParams, vrate float64) intf.IOCostKnobs {
	scale := vrate / 100
	scaled := base
	scaled.RBPS = uint64(float64(base.RBPS) * scale)
	scaled.RSeqIOPS = uint64(float64(base.RSeqIOPS) * scale)
	scaled.RRandIOPS = uint64(float64(base.RRandIOPS) * scale)
	scaled.WBPS = uint64(float64(base.WBPS) * scale)
	scaled.WSeqIOPS = uint64(float64(base.WSeqIOPS) * scale)
	scaled.WRandIOPS = uint64(float64(base.WRandIOPS) * scale)

	return intf.IOCostKnobs{
		Model: scaled,
		QoS:   intf.IOCostQoSParams{Enable: true, Min: 100, Max: 100},
	}
}
