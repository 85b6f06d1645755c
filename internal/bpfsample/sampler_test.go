package bpfsample

import (
	"strings"
	"testing"

	"github.com/resctlgo/cgdemo/internal/ebpf"
)

func TestProcessScanIOLat(t *testing.T) {
	p := &Process{name: "biolatpcts.py", loader: ebpf.NewLoader(false)}
	p.scan(strings.NewReader(`{"read":{"50":0.001,"99":0.010},"write":{"50":0.002}}` + "\n"))

	got := p.IOLat()
	if got.Read["99"] != 0.010 {
		t.Errorf("Read[99] = %v, want 0.010", got.Read["99"])
	}
	if got.Write["50"] != 0.002 {
		t.Errorf("Write[50] = %v, want 0.002", got.Write["50"])
	}
}

func TestProcessScanIOCost(t *testing.T) {
	p := &Process{name: "iocost_monitor.py", loader: ebpf.NewLoader(false)}
	p.scan(strings.NewReader(`{"device":"259:0","vrate_pct":105.5,"busy_level":1}` + "\n"))

	got := p.IOCost()
	if got.VRate != 105.5 {
		t.Errorf("VRate = %v, want 105.5", got.VRate)
	}
	if got.Busy != "1" {
		t.Errorf("Busy = %q, want %q", got.Busy, "1")
	}
}

func TestProcessScanIOCostIgnoresNullDevice(t *testing.T) {
	p := &Process{name: "iocost_monitor.py", loader: ebpf.NewLoader(false)}
	p.scan(strings.NewReader(`{"device":null,"vrate_pct":50.0,"busy_level":0}` + "\n"))

	if got := p.IOCost(); got.VRate != 0 {
		t.Errorf("null-device line should be dropped, got VRate=%v", got.VRate)
	}
}

func TestNewSamplersConstructCorrectArgs(t *testing.T) {
	iolat := NewIOLatSampler("/dev/sda")
	if iolat.name != "biolatpcts.py" || len(iolat.args) != 3 || iolat.args[2] != "/dev/sda" {
		t.Errorf("NewIOLatSampler(/dev/sda) = %q %v, want biolatpcts.py [-j 1 /dev/sda]", iolat.name, iolat.args)
	}

	iocost := NewIOCostMonitor("/dev/sda")
	if iocost.name != "iocost_monitor.py" || len(iocost.args) != 3 || iocost.args[2] != "/dev/sda" {
		t.Errorf("NewIOCostMonitor(/dev/sda) = %q %v, want iocost_monitor.py [-j 1 /dev/sda]", iocost.name, iocost.args)
	}

	if iolat.FallbackReason() != "" {
		t.Errorf("FallbackReason before Run() = %q, want empty", iolat.FallbackReason())
	}
}
