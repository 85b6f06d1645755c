package tunesolver

import (
	"fmt"
	"math"
	"strings"
)

// SelectorSpec is a parsed metric selector: the base metric plus any
// percentile parameters the textual form carries — "isolation@10",
// "rlat[99,90]", "wlat[50,mean]", or a bare base name.
type SelectorSpec struct {
	Base Selector

	// IsoPct is isolation@pct's percentile; empty means the mean.
	IsoPct string
	// LatPct/TimePct parameterize rlat/wlat: which latency percentile
	// column of the sweep's double map, and which time percentile of
	// that column's distribution.
	LatPct  string
	TimePct string
}

// ParseSelector parses the textual selector grammar.
func ParseSelector(s string) (SelectorSpec, error) {
	s = strings.TrimSpace(s)

	switch Selector(s) {
	case SelMOF, SelAMOF, SelLatImp, SelWorkCSV, SelMissing:
		return SelectorSpec{Base: Selector(s)}, nil
	}

	if rest, ok := strings.CutPrefix(s, "isolation"); ok {
		spec := SelectorSpec{Base: SelIsolation}
		if rest == "" {
			return spec, nil
		}
		pct, ok := strings.CutPrefix(rest, "@")
		if !ok || pct == "" {
			return SelectorSpec{}, fmt.Errorf("tunesolver: malformed isolation selector %q", s)
		}
		spec.IsoPct = pct
		return spec, nil
	}

	for prefix, base := range map[string]Selector{"rlat": SelRLatPct, "wlat": SelWLatPct} {
		rest, ok := strings.CutPrefix(s, prefix)
		if !ok {
			continue
		}
		spec := SelectorSpec{Base: base, LatPct: "99", TimePct: "mean"}
		if rest == "" {
			return spec, nil
		}
		if !strings.HasPrefix(rest, "[") || !strings.HasSuffix(rest, "]") {
			return SelectorSpec{}, fmt.Errorf("tunesolver: malformed latency selector %q", s)
		}
		parts := strings.Split(rest[1:len(rest)-1], ",")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return SelectorSpec{}, fmt.Errorf("tunesolver: latency selector %q needs [lat_pct,time_pct]", s)
		}
		spec.LatPct, spec.TimePct = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		return spec, nil
	}

	return SelectorSpec{}, fmt.Errorf("tunesolver: unknown selector %q", s)
}

// String renders the canonical textual form.
func (s SelectorSpec) String() string {
	switch s.Base {
	case SelIsolation:
		if s.IsoPct == "" {
			return "isolation"
		}
		return "isolation@" + s.IsoPct
	case SelRLatPct:
		return fmt.Sprintf("rlat[%s,%s]", s.LatPct, s.TimePct)
	case SelWLatPct:
		return fmt.Sprintf("wlat[%s,%s]", s.LatPct, s.TimePct)
	default:
		return string(s.Base)
	}
}

// Monotonicity delegates to the base metric's fixed constraint.
func (s SelectorSpec) Monotonicity() Monotonicity {
	return MonotonicityOf(s.Base)
}

// DataSeries is one metric's full fit record: the observed points, the
// fitted lines, which points Chauvenet rejected, and the error
// summaries computed over ALL points (outliers included, so flakiness
// stays visible in the report).
type DataSeries struct {
	Points   []Point `json:"points"`
	Lines    Shape   `json:"lines"`
	Outliers []Point `json:"outliers,omitempty"`

	MeanErr float64 `json:"mean_err"`
	RelErr  float64 `json:"rel_err"`
}

// NewDataSeries fits pts under the metric's monotonicity constraint,
// applying the outlier-rejecting refit for latency metrics.
func NewDataSeries(spec SelectorSpec, pts []Point, granularity int) *DataSeries {
	ds := &DataSeries{Points: pts}
	m := spec.Monotonicity()

	if isLatencySelector(spec.Base) {
		first := Fit(pts, m, granularity)
		kept, rejected := ChauvenetReject(pts, first)
		if rejected {
			ds.Lines = Fit(kept, m, granularity)
			ds.Outliers = subtractPoints(pts, kept)
		} else {
			ds.Lines = first
		}
	} else {
		ds.Lines = Fit(pts, m, granularity)
	}

	ds.MeanErr, ds.RelErr = seriesErrors(pts, ds.Lines)
	return ds
}

// subtractPoints returns the points of all not present in kept, matched
// by value (the point lists are small and duplicates are harmless).
func subtractPoints(all, kept []Point) []Point {
	remaining := make(map[Point]int, len(kept))
	for _, p := range kept {
		remaining[p]++
	}
	var out []Point
	for _, p := range all {
		if remaining[p] > 0 {
			remaining[p]--
			continue
		}
		out = append(out, p)
	}
	return out
}

// seriesErrors computes the RMS residual over every point and the same
// normalized by the mean magnitude of the observations.
func seriesErrors(pts []Point, lines Shape) (meanErr, relErr float64) {
	if len(pts) == 0 {
		return 0, 0
	}
	var ssr, absSum float64
	for _, p := range pts {
		d := p.Y - lines.Eval(p.X)
		ssr += d * d
		absSum += math.Abs(p.Y)
	}
	meanErr = math.Sqrt(ssr / float64(len(pts)))
	if absSum > 0 {
		relErr = meanErr / (absSum / float64(len(pts)))
	}
	return meanErr, relErr
}
