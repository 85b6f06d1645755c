package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Overridable roots so tests can run against a temp directory instead of
// the live sysfs/procfs.
var (
	sysBlockRoot = "/sys/block"
	procSysVM    = "/proc/sys/vm"
)

const defaultSwappiness = "60"

func readTrimmed(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func wbtPath(dev string) string {
	return filepath.Join(sysBlockRoot, dev, "queue", "wbt_lat_usec")
}

func schedulerPath(dev string) string {
	return filepath.Join(sysBlockRoot, dev, "queue", "scheduler")
}

func rotationalPath(dev string) string {
	return filepath.Join(sysBlockRoot, dev, "queue", "rotational")
}

func swappinessPath() string {
	return filepath.Join(procSysVM, "swappiness")
}

// currentScheduler parses the active scheduler out of the
// "none [mq-deadline] kyber bfq" bracket notation.
func currentScheduler(raw string) string {
	for _, f := range strings.Fields(raw) {
		if strings.HasPrefix(f, "[") && strings.HasSuffix(f, "]") {
			return f[1 : len(f)-1]
		}
	}
	return strings.TrimSpace(raw)
}

// setIOScheduler selects the named elevator on dev, a no-op when it is
// already active.
func setIOScheduler(dev, sched string) error {
	if dev == "" {
		return nil
	}
	raw, err := readTrimmed(schedulerPath(dev))
	if err != nil {
		return fmt.Errorf("runner: read scheduler for %s: %w", dev, err)
	}
	if currentScheduler(raw) == sched {
		return nil
	}
	if err := os.WriteFile(schedulerPath(dev), []byte(sched), 0o644); err != nil {
		return fmt.Errorf("runner: set scheduler %s on %s: %w", sched, dev, err)
	}
	return nil
}

// sysfsSaved remembers the writeback-throttling and swappiness values in
// effect before the runner changed them, so shutdown can restore them.
type sysfsSaved struct {
	dev        string
	wbtLatUsec string
	swappiness string
}

// takeoverSysfs records the current wbt/swappiness values, then disables
// writeback throttling (it arbitrates against iocost) and pins
// swappiness to the stock value the calibrated knobs assume. Read
// failures leave the corresponding restore a no-op.
func takeoverSysfs(dev string) *sysfsSaved {
	s := &sysfsSaved{dev: dev}
	if dev != "" {
		if v, err := readTrimmed(wbtPath(dev)); err == nil {
			s.wbtLatUsec = v
			_ = os.WriteFile(wbtPath(dev), []byte("0"), 0o644)
		}
	}
	if v, err := readTrimmed(swappinessPath()); err == nil {
		s.swappiness = v
		_ = os.WriteFile(swappinessPath(), []byte(defaultSwappiness), 0o644)
	}
	return s
}

// restore puts back whatever takeoverSysfs recorded. Idempotent.
func (s *sysfsSaved) restore() {
	if s == nil {
		return
	}
	if s.dev != "" && s.wbtLatUsec != "" {
		_ = os.WriteFile(wbtPath(s.dev), []byte(s.wbtLatUsec), 0o644)
	}
	if s.swappiness != "" {
		_ = os.WriteFile(swappinessPath(), []byte(s.swappiness), 0o644)
	}
}
