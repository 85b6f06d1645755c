package sliceconf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/resctlgo/cgdemo/internal/intf"
)

// DevNr resolves a block device name ("sda", "nvme0n1") to the "MAJ:MIN"
// string the root cgroup's io.cost.* files key their lines by.
func DevNr(sysBlockRoot, dev string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(sysBlockRoot, dev, "dev"))
	if err != nil {
		return "", fmt.Errorf("sliceconf: read devnr for %s: %w", dev, err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// FormatIOCostModel renders one io.cost.model line for devnr.
func FormatIOCostModel(devnr string, m intf.IOCostModelParams) string {
	model := m.Model
	if model == "" {
		model = "linear"
	}
	return fmt.Sprintf("%s model=%s rbps=%d rseqiops=%d rrandiops=%d wbps=%d wseqiops=%d wrandiops=%d",
		devnr, model, m.RBPS, m.RSeqIOPS, m.RRandIOPS, m.WBPS, m.WSeqIOPS, m.WRandIOPS)
}

// FormatIOCostQoS renders one io.cost.qos line for devnr. Latencies are
// in microseconds, min/max are vrate percentages.
func FormatIOCostQoS(devnr string, q intf.IOCostQoSParams) string {
	enable := 0
	if q.Enable {
		enable = 1
	}
	return fmt.Sprintf("%s enable=%d ctrl=user rpct=%.2f rlat=%d wpct=%.2f wlat=%d min=%.2f max=%.2f",
		devnr, enable, q.RPct, q.RLat, q.WPct, q.WLat, q.Min, q.Max)
}

// ApplyIOCost writes the model and QoS lines to the root cgroup's
// io.cost.model/io.cost.qos. The model must land before the QoS enable
// since enabling iocost with no model configured rejects the write.
func ApplyIOCost(cgroupRoot, devnr string, k intf.IOCostKnobs) error {
	modelPath := filepath.Join(cgroupRoot, "io.cost.model")
	qosPath := filepath.Join(cgroupRoot, "io.cost.qos")

	if err := os.WriteFile(modelPath, []byte(FormatIOCostModel(devnr, k.Model)), 0o644); err != nil {
		return fmt.Errorf("sliceconf: write io.cost.model: %w", err)
	}
	if err := os.WriteFile(qosPath, []byte(FormatIOCostQoS(devnr, k.QoS)), 0o644); err != nil {
		return fmt.Errorf("sliceconf: write io.cost.qos: %w", err)
	}
	return nil
}

// DisableIOCost turns the controller off for devnr without touching the
// configured model.
func DisableIOCost(cgroupRoot, devnr string) error {
	qosPath := filepath.Join(cgroupRoot, "io.cost.qos")
	if err := os.WriteFile(qosPath, []byte(devnr+" enable=0"), 0o644); err != nil {
		return fmt.Errorf("sliceconf: disable iocost: %w", err)
	}
	return nil
}
