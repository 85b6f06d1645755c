package main

import (
	"os"
	"testing"
)

func TestParseBPSPlain(t *testing.T) {
	v, err := parseBPS("1000", "IO_WBPS")
	if err != nil || v != 1000 {
		t.Fatalf("parseBPS(\"1000\") = %v,%v, want 1000,nil", v, err)
	}
}

func TestParseBPSSuffixes(t *testing.T) {
	cases := map[string]uint64{
		"2K": 2 << 10,
		"3M": 3 << 20,
		"1G": 1 << 30,
	}
	for spec, want := range cases {
		got, err := parseBPS(spec, "IO_WBPS")
		if err != nil {
			t.Fatalf("parseBPS(%q) error = %v", spec, err)
		}
		if got != want {
			t.Fatalf("parseBPS(%q) = %d, want %d", spec, got, want)
		}
	}
}

func TestParseBPSEmpty(t *testing.T) {
	v, err := parseBPS("", "IO_WBPS")
	if err != nil || v != 0 {
		t.Fatalf("parseBPS(\"\") = %v,%v, want 0,nil", v, err)
	}
}

func TestParseBPSPercentOfEnv(t *testing.T) {
	os.Setenv("TEST_IO_WBPS", "1000")
	defer os.Unsetenv("TEST_IO_WBPS")

	v, err := parseBPS("50%", "TEST_IO_WBPS")
	if err != nil {
		t.Fatalf("parseBPS(\"50%%\") error = %v", err)
	}
	if v != 500 {
		t.Fatalf("parseBPS(\"50%%\") = %d, want 500", v)
	}
}

func TestParseBPSPercentWithoutEnvFails(t *testing.T) {
	os.Unsetenv("TEST_IO_WBPS_MISSING")
	if _, err := parseBPS("50%", "TEST_IO_WBPS_MISSING"); err == nil {
		t.Fatalf("parseBPS(\"50%%\") with no base env = nil error, want error")
	}
}

func TestParseBPSInvalid(t *testing.T) {
	if _, err := parseBPS("not-a-number", "IO_WBPS"); err == nil {
		t.Fatalf("parseBPS(\"not-a-number\") = nil error, want error")
	}
}
