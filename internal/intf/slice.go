// Package intf defines the on-disk and in-memory data model shared by the
// agent runner, the reporter, and the benchmark orchestrator: slices,
// bench knobs, commands, reports, and hashd parameters. Everything here
// is serialized to JSON and lives under a TOPDIR named by index.json.
package intf

// SliceName identifies one of the fixed cgroup slices in the resource tree.
type SliceName string

const (
	SliceHostCritical SliceName = "hostcritical.slice"
	SliceWorkload      SliceName = "workload.slice"
	SliceSideload       SliceName = "sideload.slice"
	SliceSystem         SliceName = "system.slice"
	SliceUser           SliceName = "user.slice"
)

// AllSlices lists the fixed slice tree in parent-to-child application order.
var AllSlices = []SliceName{SliceHostCritical, SliceWorkload, SliceSideload, SliceSystem, SliceUser}

// DisableSeqs gates controller enforcement per resource, keyed against the
// running BenchKnobs' instance sequence (see SliceKnobs.NeedsCPUDisable).
type DisableSeqs struct {
	CPU uint64 `json:"cpu"`
	Mem uint64 `json:"mem"`
	IO  uint64 `json:"io"`
}

// Slice is one named cgroup's resource knobs. A nil MemMin/MemLow means
// "not set" (no protection requested); MemHigh/MemMax default to "max".
type Slice struct {
	CPUWeight   uint32 `json:"cpu_weight"`
	IOWeight    uint32 `json:"io_weight"`
	MemMin      *uint64 `json:"mem_min,omitempty"`
	MemLow      *uint64 `json:"mem_low,omitempty"`
	MemHigh     uint64 `json:"mem_high"` // MaxMemory sentinel == "max"
	MemMax      uint64 `json:"mem_max"`
	DisableSeqs DisableSeqs `json:"disable_seqs"`
}

// MaxMemory is the sentinel written as "max" to memory.high/memory.max.
const MaxMemory uint64 = 1<<63 - 1

// SliceKnobs is the full slice tree configuration, keyed by slice name.
type SliceKnobs struct {
	Slices map[SliceName]*Slice `json:"slices"`
}

// DefaultSliceKnobs returns the stock resctl-demo slice tree: host-critical
// and workload get protection and higher weights, side/system/user are left
// unprotected and lower-weighted.
func DefaultSliceKnobs() *SliceKnobs {
	mk := func(cpu, io uint32, min, low *uint64) *Slice {
		return &Slice{CPUWeight: cpu, IOWeight: io, MemMin: min, MemLow: low, MemHigh: MaxMemory, MemMax: MaxMemory}
	}
	return &SliceKnobs{Slices: map[SliceName]*Slice{
		SliceHostCritical: mk(1000, 1000, nil, nil),
		SliceWorkload:      mk(100, 100, nil, nil),
		SliceSideload:       mk(1, 1, nil, nil),
		SliceSystem:         mk(50, 50, nil, nil),
		SliceUser:           mk(50, 50, nil, nil),
	}}
}

// RecursiveMemProt reports whether the kernel's recursive memory-protection
// feature is available, in which case descendant mem_min/mem_low are
// explicitly zeroed rather than inherited/capped from the parent.
var RecursiveMemProt = false

// ClampChildProtection enforces the invariant that a descendant's mem_min/low
// never exceeds its parent's, unless RecursiveMemProt is active (in which
// case descendants are zeroed instead).
func ClampChildProtection(parent, child *Slice) {
	if RecursiveMemProt {
		zero := uint64(0)
		child.MemMin = &zero
		child.MemLow = &zero
		return
	}
	if parent.MemMin != nil {
		if child.MemMin == nil || *child.MemMin > *parent.MemMin {
			v := *parent.MemMin
			child.MemMin = &v
		}
	}
	if parent.MemLow != nil {
		if child.MemLow == nil || *child.MemLow > *parent.MemLow {
			v := *parent.MemLow
			child.MemLow = &v
		}
	}
}
