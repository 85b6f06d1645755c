// Package sliceconf renders and reconciles the fixed cgroup slice tree:
// systemd drop-ins for resctl properties, cgroupfs verify-and-fix,
// subtree_control toggling, propagation to descendant units, and the
// competing-IO-controller scan.
package sliceconf

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/resctlgo/cgdemo/internal/intf"
	"github.com/resctlgo/cgdemo/internal/sysunit"
)

// Manager owns the paths and current instance sequence the slice
// configurator's operations are applied against.
type Manager struct {
	SystemdConfigDir string // e.g. /etc/systemd/system
	CgroupRoot       string // e.g. /sys/fs/cgroup
	DropInName       string // configlet filename, e.g. "resctl.conf" base
	CurrentSeq       uint64
	SkipVerify       bool
}

// NewManager builds a Manager with the conventional paths.
func NewManager(systemdConfigDir, cgroupRoot string) *Manager {
	return &Manager{
		SystemdConfigDir: systemdConfigDir,
		CgroupRoot:       cgroupRoot,
		DropInName:       "resctl",
	}
}

// ApplyResult summarizes one full Apply pass.
type ApplyResult struct {
	DropInsChanged  bool
	VerifyFix       *VerifyAndFixResult
	CompetingIOCtrl []string
}

// Apply renders drop-ins for every slice (writing only those that
// changed), reloads the systemd daemon if anything changed, verifies and
// fixes live cgroupfs knobs, toggles the CPU subtree_control, propagates
// to already-running descendants flagged in needs, and scans for
// competing IO controllers. This is the full reconciliation pass the runner calls
// every 10s (or on config change).
func (m *Manager) Apply(ctx context.Context, bus *sysunit.Bus, knobs *intf.SliceKnobs, needs NeedsPropagation) (*ApplyResult, error) {
	res := &ApplyResult{}

	for _, name := range intf.AllSlices {
		s, ok := knobs.Slices[name]
		if !ok {
			continue
		}
		zeroMemLow := s.DisableSeqs.Mem >= m.CurrentSeq
		content := Render(name, s, zeroMemLow)
		path := DropInPath(m.SystemdConfigDir, string(name), m.DropInName)
		changed, err := WriteIfChanged(path, content)
		if err != nil {
			return nil, err
		}
		if changed {
			res.DropInsChanged = true
		}
	}

	if res.DropInsChanged {
		if err := bus.DaemonReload(ctx); err != nil {
			return nil, fmt.Errorf("sliceconf: daemon-reload: %w", err)
		}
	}

	if !m.SkipVerify {
		res.VerifyFix = VerifyAndFix(m.CgroupRoot, knobs)
	}

	if ws, ok := knobs.Slices[intf.SliceWorkload]; ok {
		if err := ApplyCPUSubtreeControl(m.CgroupRoot, ws.DisableSeqs.CPU, m.CurrentSeq); err != nil {
			return nil, err
		}
	}

	if err := Propagate(ctx, bus, knobs, needs); err != nil {
		return nil, err
	}

	hits, err := ScanCompetingIOControllers(m.CgroupRoot)
	if err != nil {
		return nil, err
	}
	res.CompetingIOCtrl = hits

	return res, nil
}

// SlicePath returns the cgroupfs directory for a named slice.
func (m *Manager) SlicePath(name intf.SliceName) string {
	return filepath.Join(m.CgroupRoot, string(name))
}
