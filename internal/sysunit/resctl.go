package sysunit

import "math"

// MaxMemory mirrors systemd's convention that MemoryHigh/MemoryMax
// default to the architecture's maximum (i.e. "no limit").
const MaxMemory = math.MaxUint64

// ResCtl is one unit's resource-control knobs as reported by (or about
// to be written to) systemd. A nil field means "not set" for the
// protection knobs; the limit and weight knobs default to MaxMemory.
type ResCtl struct {
	CPUWeight *uint64
	IOWeight  *uint64
	MemMin    *uint64
	MemLow    *uint64
	MemHigh   *uint64
	MemMax    *uint64
}

func u64OrMax(v *uint64) uint64 {
	if v == nil {
		return MaxMemory
	}
	return *v
}

func u64OrZero(v *uint64) uint64 {
	if v == nil {
		return 0
	}
	return *v
}

// Properties returns the systemd unit property set equivalent to this
// ResCtl, suitable for SetUnitProperties/StartTransientUnit.
func (r ResCtl) Properties() []Property {
	return []Property{
		{Name: "CPUWeight", Value: u64OrMax(r.CPUWeight)},
		{Name: "IOWeight", Value: u64OrMax(r.IOWeight)},
		{Name: "MemoryMin", Value: u64OrZero(r.MemMin)},
		{Name: "MemoryLow", Value: u64OrZero(r.MemLow)},
		{Name: "MemoryHigh", Value: u64OrMax(r.MemHigh)},
		{Name: "MemoryMax", Value: u64OrMax(r.MemMax)},
	}
}

// FromProps decodes a ResCtl back out of the raw property values
// returned by GetUnitProperties; values at their "unset" sentinel
// (MaxMemory for limits, 0 for protections) come back as nil.
func FromProps(cpuWeight, ioWeight, memMin, memLow, memHigh, memMax uint64) ResCtl {
	r := ResCtl{}
	if cpuWeight < MaxMemory {
		r.CPUWeight = &cpuWeight
	}
	if ioWeight < MaxMemory {
		r.IOWeight = &ioWeight
	}
	if memMin > 0 {
		r.MemMin = &memMin
	}
	if memLow > 0 {
		r.MemLow = &memLow
	}
	if memHigh < MaxMemory {
		r.MemHigh = &memHigh
	}
	if memMax < MaxMemory {
		r.MemMax = &memMax
	}
	return r
}
