package sliceconf

import (
	"testing"

	"github.com/resctlgo/cgdemo/internal/intf"
)

func TestParseKnobValueMax(t *testing.T) {
	v, ok := parseKnobValue("max")
	if !ok || v != intf.MaxMemory {
		t.Fatalf("parseKnobValue(\"max\") = %v,%v, want %v,true", v, ok, intf.MaxMemory)
	}
}

func TestParseKnobValueNumeric(t *testing.T) {
	v, ok := parseKnobValue("12345")
	if !ok || v != 12345 {
		t.Fatalf("parseKnobValue(\"12345\") = %v,%v, want 12345,true", v, ok)
	}
}

func TestParseKnobValueInvalid(t *testing.T) {
	if _, ok := parseKnobValue("not-a-number"); ok {
		t.Fatalf("parseKnobValue() on garbage = true, want false")
	}
}

func TestFormatKnobValueRoundTrip(t *testing.T) {
	if got := formatKnobValue(intf.MaxMemory); got != "max" {
		t.Fatalf("formatKnobValue(MaxMemory) = %q, want \"max\"", got)
	}
	if got := formatKnobValue(42); got != "42" {
		t.Fatalf("formatKnobValue(42) = %q, want \"42\"", got)
	}
}

func TestMemOutOfToleranceExactMatch(t *testing.T) {
	if memOutOfTolerance(1000, 1000) {
		t.Fatalf("memOutOfTolerance(1000,1000) = true, want false")
	}
}

func TestMemOutOfToleranceWithinBand(t *testing.T) {
	// 5% deviation, under the 10% tolerance.
	if memOutOfTolerance(1050, 1000) {
		t.Fatalf("memOutOfTolerance(1050,1000) = true, want false (within tolerance)")
	}
}

func TestMemOutOfToleranceBeyondBand(t *testing.T) {
	// 20% deviation, beyond the 10% tolerance.
	if !memOutOfTolerance(1200, 1000) {
		t.Fatalf("memOutOfTolerance(1200,1000) = false, want true (beyond tolerance)")
	}
}

func TestMemOutOfToleranceMaxIsAlwaysOut(t *testing.T) {
	if !memOutOfTolerance(intf.MaxMemory, 1000) {
		t.Fatalf("memOutOfTolerance(MaxMemory,1000) = false, want true")
	}
	if !memOutOfTolerance(1000, intf.MaxMemory) {
		t.Fatalf("memOutOfTolerance(1000,MaxMemory) = false, want true")
	}
}
