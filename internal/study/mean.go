package study

import "gonum.org/v1/gonum/stat"

// Mean accumulates a running mean/stdev/min/max over a scalar selector.
type Mean struct {
	sel  Selector
	data []float64
}

// NewMean builds a Mean reducer over sel.
func NewMean(sel Selector) *Mean {
	return &Mean{sel: sel}
}

// Observe implements Study.
func (m *Mean) Observe(arg *SelArg) error {
	m.data = append(m.data, m.sel(arg)...)
	return nil
}

// Result returns (mean, stdev, min, max) over everything observed so far.
// stdev is 0 for fewer than two samples, matching a single-point sample
// having no meaningful spread.
func (m *Mean) Result() (mean, stdev, min, max float64) {
	if len(m.data) == 0 {
		return 0, 0, 0, 0
	}
	mean = stat.Mean(m.data, nil)
	if len(m.data) > 1 {
		stdev = stat.StdDev(m.data, nil)
	}
	min, max = m.data[0], m.data[0]
	for _, v := range m.data[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return mean, stdev, min, max
}
