package intf

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveLoadJSONRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slices.json")

	want := DefaultSliceKnobs()
	if err := SaveJSON(path, want); err != nil {
		t.Fatalf("SaveJSON() error = %v", err)
	}

	got := &SliceKnobs{}
	if err := LoadJSON(path, got); err != nil {
		t.Fatalf("LoadJSON() error = %v", err)
	}
	if len(got.Slices) != len(want.Slices) {
		t.Fatalf("got %d slices, want %d", len(got.Slices), len(want.Slices))
	}
	for name, s := range want.Slices {
		gs, ok := got.Slices[name]
		if !ok {
			t.Fatalf("missing slice %s after round trip", name)
		}
		if gs.CPUWeight != s.CPUWeight || gs.IOWeight != s.IOWeight {
			t.Errorf("slice %s = %+v, want %+v", name, gs, s)
		}
	}
}

func TestSaveJSONLeavesNoStagingFileBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cmd.json")

	if err := SaveJSON(path, DefaultCmd()); err != nil {
		t.Fatalf("SaveJSON() error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "cmd.json" {
		t.Errorf("dir contents = %v, want exactly [cmd.json]", entries)
	}
}

func TestBenchKnobsRoundTripIsStable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bench-iocost.json")

	bk := &BenchKnobs{}
	bk.IOCost.Model.Model = "linear"
	bk.IOCost.Model.RBPS = 200 << 20
	bk.IOCostSeq = 3

	if err := SaveBenchKnobs(path, bk, "WDC-1", "1.0", 1<<40); err != nil {
		t.Fatalf("SaveBenchKnobs() error = %v", err)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	loaded, err := LoadBenchKnobs(path, "WDC-1", "1.0", 1<<40)
	if err != nil {
		t.Fatalf("LoadBenchKnobs() error = %v", err)
	}
	if err := SaveBenchKnobs(path, loaded, "WDC-1", "1.0", 1<<40); err != nil {
		t.Fatalf("second SaveBenchKnobs() error = %v", err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() second error = %v", err)
	}

	if string(first) != string(second) {
		t.Errorf("BenchKnobs round trip is not byte-stable:\nfirst:\n%s\nsecond:\n%s", first, second)
	}
}

func TestLoadBenchKnobsRejectsMismatchedDevice(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bench-iocost.json")

	bk := &BenchKnobs{}
	if err := SaveBenchKnobs(path, bk, "WDC-1", "1.0", 1<<40); err != nil {
		t.Fatalf("SaveBenchKnobs() error = %v", err)
	}

	if _, err := LoadBenchKnobs(path, "SAMSUNG-2", "1.0", 1<<40); err == nil {
		t.Error("expected device identity mismatch error")
	}
}

func TestNewPathsDerivesAllFiles(t *testing.T) {
	p := NewPaths("/var/lib/cgdemo")
	if p.Cmd != "/var/lib/cgdemo/cmd.json" {
		t.Errorf("Cmd = %s, want /var/lib/cgdemo/cmd.json", p.Cmd)
	}
	if p.Report1Min != "/var/lib/cgdemo/report-1min.json" {
		t.Errorf("Report1Min = %s", p.Report1Min)
	}
	if p.Hashd[0].Args != "/var/lib/cgdemo/hashd-A/args.json" {
		t.Errorf("Hashd[0].Args = %s", p.Hashd[0].Args)
	}
	if p.Hashd[1].Report != "/var/lib/cgdemo/hashd-B/report.json" {
		t.Errorf("Hashd[1].Report = %s", p.Hashd[1].Report)
	}
}

func TestWriteIndex(t *testing.T) {
	dir := t.TempDir()
	p := NewPaths(dir)
	if err := p.WriteIndex(); err != nil {
		t.Fatalf("WriteIndex() error = %v", err)
	}

	for i := range p.Hashd {
		if st, err := os.Stat(p.Hashd[i].Dir); err != nil || !st.IsDir() {
			t.Errorf("instance dir %s not created: %v", p.Hashd[i].Dir, err)
		}
	}

	var idx map[string]string
	if err := LoadJSON(p.Index, &idx); err != nil {
		t.Fatalf("LoadJSON(index) error = %v", err)
	}
	for _, key := range []string{"cmd", "cmd-ack", "report", "bench", "oomd-runtime", "hashd-A-params"} {
		path, ok := idx[key]
		if !ok {
			t.Errorf("index.json missing key %q", key)
			continue
		}
		if !filepath.IsAbs(path) {
			t.Errorf("index entry %q = %q, want absolute path", key, path)
		}
	}
}
