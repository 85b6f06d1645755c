package tunesolver

import (
	"math"
	"math/rand"
	"testing"
)

func TestParseSelectorBareNames(t *testing.T) {
	for _, name := range []string{"MOF", "AMOF", "lat-imp", "work-csv", "missing"} {
		spec, err := ParseSelector(name)
		if err != nil {
			t.Errorf("ParseSelector(%q) error = %v", name, err)
			continue
		}
		if string(spec.Base) != name {
			t.Errorf("ParseSelector(%q).Base = %q", name, spec.Base)
		}
	}
}

func TestParseSelectorIsolation(t *testing.T) {
	spec, err := ParseSelector("isolation@10")
	if err != nil {
		t.Fatalf("ParseSelector error = %v", err)
	}
	if spec.Base != SelIsolation || spec.IsoPct != "10" {
		t.Errorf("spec = %+v, want isolation@10", spec)
	}
	if spec.String() != "isolation@10" {
		t.Errorf("String() = %q", spec.String())
	}

	if _, err := ParseSelector("isolation@"); err == nil {
		t.Error("isolation@ with no pct should fail")
	}
}

func TestParseSelectorLatency(t *testing.T) {
	spec, err := ParseSelector("rlat[99,90]")
	if err != nil {
		t.Fatalf("ParseSelector error = %v", err)
	}
	if spec.Base != SelRLatPct || spec.LatPct != "99" || spec.TimePct != "90" {
		t.Errorf("spec = %+v, want rlat[99,90]", spec)
	}
	if spec.Monotonicity() != Decreasing {
		t.Error("latency selectors should be constrained decreasing")
	}

	spec, err = ParseSelector("wlat")
	if err != nil {
		t.Fatalf("bare wlat error = %v", err)
	}
	if spec.LatPct != "99" || spec.TimePct != "mean" {
		t.Errorf("bare wlat defaults = %+v, want 99/mean", spec)
	}

	if _, err := ParseSelector("rlat[99]"); err == nil {
		t.Error("single-parameter latency selector should fail")
	}
	if _, err := ParseSelector("bogus"); err == nil {
		t.Error("unknown selector should fail")
	}
}

func TestNewDataSeriesHingeFit(t *testing.T) {
	// y = max(0, 0.5*(x-30)) with gaussian noise, the canonical sweep
	// shape: flat floor then a rising slope.
	rng := rand.New(rand.NewSource(7))
	var pts []Point
	for i := 0; i < 20; i++ {
		x := float64(i) * 5 // 0..95
		y := math.Max(0, 0.5*(x-30)) + rng.NormFloat64()*0.5
		pts = append(pts, Point{x, y})
	}

	spec, err := ParseSelector("MOF")
	if err != nil {
		t.Fatal(err)
	}
	ds := NewDataSeries(spec, pts, 20)

	if math.Abs(ds.Lines.Eval(0)) > 1 {
		t.Errorf("left flat = %v, want ~0", ds.Lines.Eval(0))
	}
	slope := (ds.Lines.Y1 - ds.Lines.Y0) / (ds.Lines.B1 - ds.Lines.B0)
	if math.Abs(slope-0.5) > 0.15 {
		t.Errorf("slope = %v, want ~0.5", slope)
	}
	if ds.MeanErr <= 0 || ds.MeanErr > 2 {
		t.Errorf("MeanErr = %v, want small but non-zero", ds.MeanErr)
	}

	curve := FittedCurve{Selector: spec.Base, Shape: ds.Lines}
	v, err := SolveTarget(curve, Target{Sel: spec.Base, Kind: Threshold, Value: 10}, 1, 100)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(v-50) > 5 {
		t.Errorf("solve(Threshold(10)) = %v, want ~50", v)
	}
}

func TestNewDataSeriesRecordsOutliers(t *testing.T) {
	var pts []Point
	for x := 0.0; x < 30; x++ {
		pts = append(pts, Point{x, 5})
	}
	pts = append(pts, Point{15, 500})

	spec, err := ParseSelector("rlat[99,mean]")
	if err != nil {
		t.Fatal(err)
	}
	ds := NewDataSeries(spec, pts, 10)
	if len(ds.Outliers) != 1 || ds.Outliers[0].Y != 500 {
		t.Fatalf("Outliers = %v, want the single 500 spike", ds.Outliers)
	}
	// The reported error still includes the outlier.
	if ds.MeanErr < 10 {
		t.Errorf("MeanErr = %v; rejecting the outlier must not hide it from the error summary", ds.MeanErr)
	}
}
