package tunesolver

import (
	"math"
	"testing"
)

func approxEq(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestFitFlatMean(t *testing.T) {
	pts := []Point{{0, 5}, {10, 5}, {20, 5}, {30, 5}}
	s := Fit(pts, Free, 10)
	if !approxEq(s.Eval(15), 5, 0.01) {
		t.Errorf("Eval(15) = %v, want ~5", s.Eval(15))
	}
}

func TestFitOneSlope(t *testing.T) {
	pts := []Point{{0, 0}, {10, 10}, {20, 20}, {30, 30}}
	s := Fit(pts, Increasing, 10)
	if !approxEq(s.Eval(15), 15, 1) {
		t.Errorf("Eval(15) = %v, want ~15", s.Eval(15))
	}
}

func TestFitLeftFlatSlopeRightFlat(t *testing.T) {
	var pts []Point
	for x := 0.0; x <= 10; x++ {
		pts = append(pts, Point{x, 2})
	}
	for x := 10.0; x <= 20; x++ {
		pts = append(pts, Point{x, 2 + (x-10)*0.8})
	}
	for x := 20.0; x <= 30; x++ {
		pts = append(pts, Point{x, 10})
	}
	s := Fit(pts, Increasing, 20)
	if !approxEq(s.Eval(0), 2, 0.5) {
		t.Errorf("Eval(0) = %v, want ~2", s.Eval(0))
	}
	if !approxEq(s.Eval(30), 10, 0.5) {
		t.Errorf("Eval(30) = %v, want ~10", s.Eval(30))
	}
}

func TestChauvenetRejectsOutlier(t *testing.T) {
	var pts []Point
	for x := 0.0; x < 30; x++ {
		pts = append(pts, Point{x, 5})
	}
	pts = append(pts, Point{100, 500})

	shape := fitFlatMean(pts)
	kept, rejected := ChauvenetReject(pts, shape)
	if !rejected {
		t.Fatal("expected the 500 outlier to be rejected")
	}
	for _, p := range kept {
		if p.Y == 500 {
			t.Fatal("outlier point survived rejection")
		}
	}
}

func TestSolveTargetThreshold(t *testing.T) {
	curve := FittedCurve{Selector: SelRLatPct, Shape: Shape{B0: 10, B1: 20, Y0: 10, Y1: 2}}
	v, err := SolveTarget(curve, Target{Sel: SelRLatPct, Kind: Threshold, Value: 6}, 0, 100)
	if err != nil {
		t.Fatal(err)
	}
	if !approxEq(v, 15, 0.01) {
		t.Errorf("SolveTarget threshold = %v, want ~15", v)
	}
}

func TestSolveRuleTakesMinimum(t *testing.T) {
	curves := map[Selector]FittedCurve{
		SelMOF:    {Selector: SelMOF, Shape: Shape{B0: 0, B1: 100, Y0: 0, Y1: 1}},
		SelRLatPct: {Selector: SelRLatPct, Shape: Shape{B0: 10, B1: 20, Y0: 10, Y1: 2}},
	}
	rule := Rule{Name: "protection", Targets: []Target{
		{Sel: SelMOF, Kind: Inflection},
		{Sel: SelRLatPct, Kind: Threshold, Value: 6},
	}}
	v, err := SolveRule(rule, curves, 0, 100)
	if err != nil {
		t.Fatal(err)
	}
	if !approxEq(v, 15, 0.01) {
		t.Errorf("SolveRule = %v, want ~15 (the lesser of 100 and 15)", v)
	}
}
