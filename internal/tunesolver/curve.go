// Package tunesolver fits piecewise-linear curves to the QoS sweep's
// per-metric (vrate, value) series and solves user-supplied rule
// targets against the fitted curves.
package tunesolver

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Monotonicity constrains which shapes are considered plausible fits
// for a given metric selector.
type Monotonicity int

const (
	Free Monotonicity = iota
	Increasing
	Decreasing
)

// Point is one (vrate, value) observation.
type Point struct {
	X, Y float64
}

// Shape is a fitted piecewise-linear curve: flat at y0 for x<b0, linear
// from (b0,y0) to (b1,y1), flat at y1 for x>b1. b0==b1 degenerates to a
// single breakpoint (two-segment shape); b0==minX && b1==maxX degenerates
// to "one slope"; b0==b1==minX (or maxX) is the "flat mean" shape.
type Shape struct {
	B0, B1   float64
	Y0, Y1   float64
	SSR      float64
}

// Eval evaluates the fitted shape at x.
func (s Shape) Eval(x float64) float64 {
	switch {
	case x <= s.B0:
		return s.Y0
	case x >= s.B1:
		return s.Y1
	default:
		if s.B1 == s.B0 {
			return s.Y0
		}
		frac := (x - s.B0) / (s.B1 - s.B0)
		return s.Y0 + frac*(s.Y1-s.Y0)
	}
}

// sortedCopy returns pts sorted by X.
func sortedCopy(pts []Point) []Point {
	cp := make([]Point, len(pts))
	copy(cp, pts)
	sort.Slice(cp, func(i, j int) bool { return cp[i].X < cp[j].X })
	return cp
}

// fitFlatMean returns the degenerate "flat mean" shape: a single
// constant value across the whole range.
func fitFlatMean(pts []Point) Shape {
	ys := make([]float64, len(pts))
	for i, p := range pts {
		ys[i] = p.Y
	}
	mean := stat.Mean(ys, nil)
	ssr := 0.0
	for _, y := range ys {
		ssr += (y - mean) * (y - mean)
	}
	minX, maxX := pts[0].X, pts[len(pts)-1].X
	return Shape{B0: minX, B1: maxX, Y0: mean, Y1: mean, SSR: ssr}
}

// fitOneSlope fits a single linear regression across the whole range
// (the degenerate "one slope" shape, b0==minX, b1==maxX).
func fitOneSlope(pts []Point) Shape {
	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		xs[i] = p.X
		ys[i] = p.Y
	}
	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	ssr := 0.0
	for i := range xs {
		pred := alpha + beta*xs[i]
		ssr += (ys[i] - pred) * (ys[i] - pred)
	}
	minX, maxX := xs[0], xs[len(xs)-1]
	return Shape{B0: minX, B1: maxX, Y0: alpha + beta*minX, Y1: alpha + beta*maxX, SSR: ssr}
}

// fitAt fits the three-segment shape with breakpoints fixed at b0, b1
// (b0<=b1), returning its SSR.
func fitAt(pts []Point, b0, b1 float64) Shape {
	var leftSum, leftN float64
	var rightSum, rightN float64
	var midXs, midYs []float64
	for _, p := range pts {
		switch {
		case p.X <= b0:
			leftSum += p.Y
			leftN++
		case p.X >= b1:
			rightSum += p.Y
			rightN++
		default:
			midXs = append(midXs, p.X)
			midYs = append(midYs, p.Y)
		}
	}
	y0 := 0.0
	if leftN > 0 {
		y0 = leftSum / leftN
	}
	y1 := 0.0
	if rightN > 0 {
		y1 = rightSum / rightN
	}
	if b1 > b0 && len(midXs) >= 2 {
		alpha, beta := stat.LinearRegression(midXs, midYs, nil, false)
		y0 = alpha + beta*b0
		y1 = alpha + beta*b1
	}

	shape := Shape{B0: b0, B1: b1, Y0: y0, Y1: y1}
	ssr := 0.0
	for _, p := range pts {
		pred := shape.Eval(p.X)
		ssr += (p.Y - pred) * (p.Y - pred)
	}
	shape.SSR = ssr
	return shape
}

// monotone reports whether shape satisfies the requested monotonicity.
func monotone(s Shape, m Monotonicity) bool {
	switch m {
	case Increasing:
		return s.Y1 >= s.Y0
	case Decreasing:
		return s.Y1 <= s.Y0
	default:
		return true
	}
}

// Fit performs an exhaustive grid search over breakpoint placements:
// candidate breakpoints are every granularity-th fraction of the
// range, plus the degenerate flat-mean and one-slope shapes. The
// monotonicity-violating candidate with lowest SSR is skipped in favor
// of the best monotone one; if none are monotone, the unconstrained best
// is returned.
func Fit(pts []Point, m Monotonicity, granularity int) Shape {
	sorted := sortedCopy(pts)
	if len(sorted) < 2 {
		if len(sorted) == 1 {
			return Shape{B0: sorted[0].X, B1: sorted[0].X, Y0: sorted[0].Y, Y1: sorted[0].Y}
		}
		return Shape{}
	}
	if granularity < 2 {
		granularity = 10
	}
	minX, maxX := sorted[0].X, sorted[len(sorted)-1].X

	var bestAny, bestMono Shape
	haveAny, haveMono := false, false

	consider := func(s Shape) {
		if !haveAny || s.SSR < bestAny.SSR {
			bestAny, haveAny = s, true
		}
		if monotone(s, m) && (!haveMono || s.SSR < bestMono.SSR) {
			bestMono, haveMono = s, true
		}
	}

	consider(fitFlatMean(sorted))
	consider(fitOneSlope(sorted))

	step := (maxX - minX) / float64(granularity)
	if step > 0 {
		for i := 0; i <= granularity; i++ {
			b0 := minX + step*float64(i)
			for j := i; j <= granularity; j++ {
				b1 := minX + step*float64(j)
				consider(fitAt(sorted, b0, b1))
			}
		}
	}

	if haveMono {
		return bestMono
	}
	return bestAny
}

// ChauvenetReject applies Chauvenet's criterion to a fitted shape's
// residuals: a point is an outlier if its residual falls in the
// tail of Normal(meanErr, sigmaErr) with expected count below 0.5 among
// n points. Returns the surviving points and whether anything was
// rejected.
func ChauvenetReject(pts []Point, shape Shape) ([]Point, bool) {
	n := len(pts)
	if n < 3 {
		return pts, false
	}
	resid := make([]float64, n)
	for i, p := range pts {
		resid[i] = p.Y - shape.Eval(p.X)
	}
	mean := stat.Mean(resid, nil)
	sigma := stat.StdDev(resid, nil)
	if sigma == 0 {
		return pts, false
	}

	dist := distuv.Normal{Mu: mean, Sigma: sigma}
	kept := make([]Point, 0, n)
	rejectedAny := false
	for i, p := range pts {
		z := math.Abs(resid[i]-mean) / sigma
		tailProb := 2 * dist.Survival(mean+z*sigma)
		expectedCount := tailProb * float64(n)
		if expectedCount < 0.5 {
			rejectedAny = true
			continue
		}
		kept = append(kept, p)
	}
	if len(kept) < 2 {
		return pts, false
	}
	return kept, rejectedAny
}

