package study

// IoLatencyPcts groups one IO direction's (read or write) per-sample
// per-latency-percentile seconds values into the double map
// lat_pct -> time_pct -> seconds: one MeanPcts per latency percentile,
// fed from that bucket's time series across the observed range.
type IoLatencyPcts struct {
	latPcts []string
	byLat   map[string]*MeanPcts
}

// IoDirection selects which half of Report.IOLat a study reads from.
type IoDirection int

const (
	IoRead IoDirection = iota
	IoWrite
)

// NewIoLatencyPcts builds one MeanPcts per entry in latPcts (e.g. the
// standard "50","90","99","100" set iocost tuning uses), sourcing values
// from dir's half of each report's IOLat.
func NewIoLatencyPcts(dir IoDirection, latPcts []string, timeError float64) *IoLatencyPcts {
	byLat := make(map[string]*MeanPcts, len(latPcts))
	for _, lp := range latPcts {
		lp := lp
		sel := func(arg *SelArg) []float64 {
			var m map[string]float64
			switch dir {
			case IoRead:
				m = arg.Rep.IOLat.Read
			case IoWrite:
				m = arg.Rep.IOLat.Write
			}
			if v, ok := m[lp]; ok {
				return []float64{v}
			}
			return nil
		}
		byLat[lp] = NewMeanPcts(sel, timeError)
	}
	return &IoLatencyPcts{latPcts: latPcts, byLat: byLat}
}

// Observe implements Study.
func (s *IoLatencyPcts) Observe(arg *SelArg) error {
	for _, lp := range s.latPcts {
		if err := s.byLat[lp].Observe(arg); err != nil {
			return err
		}
	}
	return nil
}

// Result returns lat_pct -> time_pct -> seconds for the requested
// time-percentile set (DefaultPcts if timePcts is nil).
func (s *IoLatencyPcts) Result(timePcts []string) map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(s.latPcts))
	for _, lp := range s.latPcts {
		out[lp] = s.byLat[lp].Result(timePcts)
	}
	return out
}
