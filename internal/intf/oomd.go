package intf

// OOMDSenpaiConfig drives the gradual memory.high ratchet oomd's senpai
// mode applies to a slice under sustained light memory pressure.
type OOMDSenpaiConfig struct {
	Enable      bool    `json:"enable"`
	MinBytes    uint64  `json:"min_bytes"`
	IntervalSec float64 `json:"interval_sec"`
	CoeffUp     float64 `json:"coeff_up"`
	CoeffDown   float64 `json:"coeff_down"`
	MaxProbePct float64 `json:"max_probe_pct"`
}

// OOMDPressureRule kills the lowest-ranked cgroup under a slice once
// memory pressure stays above Threshold for Duration.
type OOMDPressureRule struct {
	Threshold float64 `json:"threshold"`
	Duration  float64 `json:"duration_sec"`
}

// OOMDSliceRuleset is one slice's oomd configuration: a pressure-kill
// trip-wire, a swap-free floor, and an optional senpai ratchet.
type OOMDSliceRuleset struct {
	Slice        SliceName        `json:"slice"`
	MemPressure  OOMDPressureRule `json:"mem_pressure"`
	SwapFreePct  float64          `json:"swap_free_pct"`
	Senpai       OOMDSenpaiConfig `json:"senpai"`
}

// OOMDRuleset is the full oomd.json contents: one ruleset per slice that
// opts into oomd management.
type OOMDRuleset struct {
	Slices []OOMDSliceRuleset `json:"slices"`
}

// OomdDetector is one predicate line in a generated ruleset: a named
// plugin plus its arguments, the shape the userspace OOM daemon's config
// loader consumes.
type OomdDetector struct {
	Name string            `json:"name"`
	Args map[string]string `json:"args,omitempty"`
}

// OomdAction is what a tripped ruleset does.
type OomdAction struct {
	Name string            `json:"name"`
	Args map[string]string `json:"args,omitempty"`
}

// OomdRuntimeRuleset is one generated ruleset: detectors ANDed together,
// actions run in order once they all hold.
type OomdRuntimeRuleset struct {
	Name      string         `json:"name"`
	Detectors []OomdDetector `json:"detectors"`
	Actions   []OomdAction   `json:"actions"`
}

// OomdRuntimeConfig is the full generated config the OOM daemon loads:
// regenerated from OOMDRuleset (plus the current swap total) whenever
// oomd.json or bench.json changes.
type OomdRuntimeConfig struct {
	Rulesets []OomdRuntimeRuleset `json:"rulesets"`
}

// DefaultOOMDRuleset mirrors resctl-demo's stock policy: protect
// host-critical and workload from runaway sideloads via a tight pressure
// trip-wire, and let senpai tune workload.slice's memory.high down over
// time to reclaim headroom for sideloads.
func DefaultOOMDRuleset() *OOMDRuleset {
	return &OOMDRuleset{Slices: []OOMDSliceRuleset{
		{
			Slice:       SliceWorkload,
			MemPressure: OOMDPressureRule{Threshold: 0.8, Duration: 20},
			SwapFreePct: 10,
			Senpai: OOMDSenpaiConfig{
				Enable:      true,
				MinBytes:    128 << 20,
				IntervalSec: 6,
				CoeffUp:     0.2,
				CoeffDown:   0.1,
				MaxProbePct: 1,
			},
		},
		{
			Slice:       SliceSideload,
			MemPressure: OOMDPressureRule{Threshold: 0.5, Duration: 5},
			SwapFreePct: 20,
		},
	}}
}
