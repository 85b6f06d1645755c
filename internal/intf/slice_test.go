package intf

import "testing"

func u64(v uint64) *uint64 { return &v }

func TestClampChildProtectionCapsToParent(t *testing.T) {
	RecursiveMemProt = false
	parent := &Slice{MemMin: u64(1000), MemLow: u64(2000)}
	child := &Slice{MemMin: u64(5000), MemLow: u64(500)}

	ClampChildProtection(parent, child)

	if *child.MemMin != 1000 {
		t.Errorf("child.MemMin = %d, want capped to parent 1000", *child.MemMin)
	}
	if *child.MemLow != 500 {
		t.Errorf("child.MemLow = %d, want unchanged 500 (already below parent)", *child.MemLow)
	}
}

func TestClampChildProtectionNilChild(t *testing.T) {
	RecursiveMemProt = false
	parent := &Slice{MemMin: u64(1000)}
	child := &Slice{}

	ClampChildProtection(parent, child)

	if child.MemMin == nil || *child.MemMin != 1000 {
		t.Errorf("child.MemMin = %v, want inherited 1000", child.MemMin)
	}
}

func TestClampChildProtectionRecursive(t *testing.T) {
	RecursiveMemProt = true
	defer func() { RecursiveMemProt = false }()

	parent := &Slice{MemMin: u64(1000), MemLow: u64(2000)}
	child := &Slice{MemMin: u64(5000), MemLow: u64(5000)}

	ClampChildProtection(parent, child)

	if *child.MemMin != 0 || *child.MemLow != 0 {
		t.Errorf("child protection = (%d, %d), want zeroed under recursive mode", *child.MemMin, *child.MemLow)
	}
}

func TestDefaultSliceKnobsCoversAllSlices(t *testing.T) {
	sk := DefaultSliceKnobs()
	for _, name := range AllSlices {
		if _, ok := sk.Slices[name]; !ok {
			t.Errorf("DefaultSliceKnobs missing slice %s", name)
		}
	}
	if sk.Slices[SliceHostCritical].CPUWeight <= sk.Slices[SliceSideload].CPUWeight {
		t.Error("hostcritical.slice should outweigh sideload.slice on cpu.weight")
	}
}
