package sysunit

import "testing"

func TestResCtlPropertiesDefaults(t *testing.T) {
	props := ResCtl{}.Properties()
	want := map[string]uint64{
		"CPUWeight":  MaxMemory,
		"IOWeight":   MaxMemory,
		"MemoryMin":  0,
		"MemoryLow":  0,
		"MemoryHigh": MaxMemory,
		"MemoryMax":  MaxMemory,
	}
	for _, p := range props {
		v, ok := p.Value.(uint64)
		if !ok {
			t.Fatalf("property %s value is not uint64: %v", p.Name, p.Value)
		}
		if want[p.Name] != v {
			t.Errorf("property %s = %d, want %d", p.Name, v, want[p.Name])
		}
	}
}

func TestResCtlPropertiesSet(t *testing.T) {
	cpu := uint64(500)
	r := ResCtl{CPUWeight: &cpu}
	props := r.Properties()
	found := false
	for _, p := range props {
		if p.Name == "CPUWeight" {
			found = true
			if p.Value.(uint64) != 500 {
				t.Errorf("CPUWeight = %v, want 500", p.Value)
			}
		}
	}
	if !found {
		t.Fatal("CPUWeight property missing")
	}
}

func TestFromPropsRoundTrip(t *testing.T) {
	r := FromProps(500, 200, 1000, 2000, MaxMemory, MaxMemory)
	if r.CPUWeight == nil || *r.CPUWeight != 500 {
		t.Errorf("CPUWeight = %v, want 500", r.CPUWeight)
	}
	if r.MemHigh != nil {
		t.Errorf("MemHigh = %v, want nil (unset sentinel)", r.MemHigh)
	}
	if r.MemMin == nil || *r.MemMin != 1000 {
		t.Errorf("MemMin = %v, want 1000", r.MemMin)
	}
}

func TestFromPropsUnsetProtectionIsNil(t *testing.T) {
	r := FromProps(MaxMemory, MaxMemory, 0, 0, MaxMemory, MaxMemory)
	if r.MemMin != nil || r.MemLow != nil {
		t.Error("zero-value MemMin/MemLow should decode to nil (unset)")
	}
}
