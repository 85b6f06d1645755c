package main

import (
	"testing"

	"github.com/resctlgo/cgdemo/internal/tunesolver"
)

func TestClip01(t *testing.T) {
	cases := map[float64]float64{-0.5: 0, 0: 0, 0.3: 0.3, 1: 1, 2.7: 1}
	for in, want := range cases {
		if got := clip01(in); got != want {
			t.Errorf("clip01(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestProtectionReportSeriesKeys(t *testing.T) {
	p := &protectionReport{
		Isolation: map[string]float64{"10": 0.85},
		WorkCSV:   0.6,
	}
	s := p.series()

	iso, ok := s[string(tunesolver.SelIsolation)]
	if !ok || len(iso) != 1 || iso[0] != 0.85 {
		t.Errorf("isolation series = %v,%v, want [0.85] under %q", iso, ok, tunesolver.SelIsolation)
	}
	csv, ok := s[string(tunesolver.SelWorkCSV)]
	if !ok || len(csv) != 1 || csv[0] != 0.6 {
		t.Errorf("work-csv series = %v,%v, want [0.6] under %q", csv, ok, tunesolver.SelWorkCSV)
	}
}
