package intf

import "testing"

func TestCheckDeviceIdentityFreshIsAlwaysOK(t *testing.T) {
	bk := &BenchKnobs{}
	if err := bk.CheckDeviceIdentity("WDC-1", "1.0", 1<<40); err != nil {
		t.Errorf("fresh BenchKnobs should match any device, got %v", err)
	}
}

func TestCheckDeviceIdentityMismatch(t *testing.T) {
	bk := &BenchKnobs{IOCostDevModel: "WDC-1", IOCostDevFWRev: "1.0", IOCostDevSize: 1 << 40}

	cases := []struct {
		name           string
		model, fwrev   string
		size           uint64
		wantField      string
	}{
		{"model", "SAMSUNG-2", "1.0", 1 << 40, "model"},
		{"fwrev", "WDC-1", "2.0", 1 << 40, "fwrev"},
		{"size", "WDC-1", "1.0", 1 << 41, "size"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := bk.CheckDeviceIdentity(c.model, c.fwrev, c.size)
			mismatch, ok := err.(*DeviceIdentityMismatch)
			if !ok {
				t.Fatalf("CheckDeviceIdentity() error = %v, want *DeviceIdentityMismatch", err)
			}
			if mismatch.Field != c.wantField {
				t.Errorf("mismatch.Field = %q, want %q", mismatch.Field, c.wantField)
			}
		})
	}
}

func TestCheckDeviceIdentityMatch(t *testing.T) {
	bk := &BenchKnobs{IOCostDevModel: "WDC-1", IOCostDevFWRev: "1.0", IOCostDevSize: 1 << 40}
	if err := bk.CheckDeviceIdentity("WDC-1", "1.0", 1<<40); err != nil {
		t.Errorf("matching device should not error, got %v", err)
	}
}
