package sysunit

import "testing"

func TestDeriveState(t *testing.T) {
	cases := []struct {
		name                       string
		load, active, sub         string
		wantKind                   Kind
	}{
		{"not found", "not-found", "", "", NotFound},
		{"running", "loaded", "active", "running", Running},
		{"exited", "loaded", "active", "exited", Exited},
		{"other active", "loaded", "active", "reloading", OtherActive},
		{"inactive", "loaded", "inactive", "dead", Inactive},
		{"failed", "loaded", "failed", "failed", Failed},
		{"masked load", "masked", "inactive", "dead", Other},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := DeriveState(c.load, c.active, c.sub)
			if got.Kind != c.wantKind {
				t.Errorf("DeriveState(%q,%q,%q) = %v, want kind %v", c.load, c.active, c.sub, got, c.wantKind)
			}
		})
	}
}

func TestStateSettled(t *testing.T) {
	if (State{Kind: OtherActive}).Settled() {
		t.Error("OtherActive should not be settled")
	}
	if (State{Kind: Other}).Settled() {
		t.Error("Other should not be settled")
	}
	if !(State{Kind: Running}).Settled() {
		t.Error("Running should be settled")
	}
	if !(State{Kind: NotFound}).Settled() {
		t.Error("NotFound should be settled")
	}
}

func TestStateString(t *testing.T) {
	if got := (State{Kind: Running}).String(); got != "Running" {
		t.Errorf("String() = %q, want Running", got)
	}
	if got := (State{Kind: Failed, Detail: "failed"}).String(); got != "Failed(failed)" {
		t.Errorf("String() = %q, want Failed(failed)", got)
	}
}
