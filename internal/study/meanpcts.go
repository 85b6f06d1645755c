package study

import (
	"strconv"

	"github.com/beorn7/perks/quantile"
	"gonum.org/v1/gonum/stat"
)

// DefaultPctError is the default approximation error for the MeanPcts
// quantile sketch.
const DefaultPctError = 0.001

// MeanPcts is Mean plus a percentile query at a configurable error via a
// compressed quantile sketch.
type MeanPcts struct {
	sel    Selector
	stream *quantile.Stream
	data   []float64
}

// NewMeanPcts builds a MeanPcts reducer over sel with the given
// approximation error (DefaultPctError if error <= 0).
func NewMeanPcts(sel Selector, errorTarget float64) *MeanPcts {
	if errorTarget <= 0 {
		errorTarget = DefaultPctError
	}
	targets := make(map[float64]float64, len(DefaultPcts))
	for _, p := range DefaultPcts {
		if p == "mean" || p == "stdev" {
			continue
		}
		targets[pctFraction(p)] = errorTarget
	}
	return &MeanPcts{sel: sel, stream: quantile.NewTargeted(targets)}
}

func pctFraction(pct string) float64 {
	f, err := strconv.ParseFloat(pct, 64)
	if err != nil {
		return 0
	}
	return f / 100.0
}

// Observe implements Study.
func (m *MeanPcts) Observe(arg *SelArg) error {
	for _, v := range m.sel(arg) {
		m.stream.Insert(v)
		m.data = append(m.data, v)
	}
	return nil
}

// Result returns the requested percentile set (DefaultPcts if pcts is
// nil), resolving "mean"/"stdev" directly and everything else via the
// quantile sketch.
func (m *MeanPcts) Result(pcts []string) map[string]float64 {
	if pcts == nil {
		pcts = DefaultPcts
	}
	out := make(map[string]float64, len(pcts))
	for _, p := range pcts {
		switch p {
		case "mean":
			if len(m.data) > 0 {
				out[p] = stat.Mean(m.data, nil)
			}
		case "stdev":
			if len(m.data) > 1 {
				out[p] = stat.StdDev(m.data, nil)
			}
		default:
			out[p] = m.stream.Query(pctFraction(p))
		}
	}
	return out
}
