package sliceconf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/resctlgo/cgdemo/internal/intf"
)

func TestFormatIOCostModel(t *testing.T) {
	m := intf.IOCostModelParams{
		RBPS: 100, RSeqIOPS: 200, RRandIOPS: 300,
		WBPS: 400, WSeqIOPS: 500, WRandIOPS: 600,
	}
	got := FormatIOCostModel("8:0", m)
	want := "8:0 model=linear rbps=100 rseqiops=200 rrandiops=300 wbps=400 wseqiops=500 wrandiops=600"
	if got != want {
		t.Errorf("FormatIOCostModel =\n%q, want\n%q", got, want)
	}
}

func TestFormatIOCostQoS(t *testing.T) {
	q := intf.IOCostQoSParams{
		Enable: true, RPct: 95, RLat: 25000, WPct: 95, WLat: 50000, Min: 50, Max: 150,
	}
	got := FormatIOCostQoS("8:0", q)
	want := "8:0 enable=1 ctrl=user rpct=95.00 rlat=25000 wpct=95.00 wlat=50000 min=50.00 max=150.00"
	if got != want {
		t.Errorf("FormatIOCostQoS =\n%q, want\n%q", got, want)
	}

	q.Enable = false
	if got := FormatIOCostQoS("8:0", q); got[:12] != "8:0 enable=0" {
		t.Errorf("disabled QoS line = %q, want enable=0 prefix", got)
	}
}

func TestApplyIOCostWritesModelAndQoS(t *testing.T) {
	root := t.TempDir()
	k := intf.IOCostKnobs{
		Model: intf.IOCostModelParams{RBPS: 1},
		QoS:   intf.IOCostQoSParams{Enable: true, Min: 100, Max: 100},
	}
	if err := ApplyIOCost(root, "259:0", k); err != nil {
		t.Fatalf("ApplyIOCost() error = %v", err)
	}
	model, err := os.ReadFile(filepath.Join(root, "io.cost.model"))
	if err != nil {
		t.Fatalf("io.cost.model not written: %v", err)
	}
	if string(model) != FormatIOCostModel("259:0", k.Model) {
		t.Errorf("io.cost.model = %q", model)
	}
	if _, err := os.ReadFile(filepath.Join(root, "io.cost.qos")); err != nil {
		t.Fatalf("io.cost.qos not written: %v", err)
	}
}

func TestDevNr(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "nvme0n1"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "nvme0n1", "dev"), []byte("259:0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	nr, err := DevNr(root, "nvme0n1")
	if err != nil {
		t.Fatalf("DevNr() error = %v", err)
	}
	if nr != "259:0" {
		t.Errorf("DevNr = %q, want 259:0", nr)
	}
	if _, err := DevNr(root, "sdz"); err == nil {
		t.Error("DevNr for a missing device should fail")
	}
}
