package sliceconf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/resctlgo/cgdemo/internal/intf"
)

// memString renders a memory knob the way systemd unit files expect:
// "infinity" for the MaxMemory sentinel, a plain decimal otherwise.
func memString(v uint64) string {
	if v == intf.MaxMemory {
		return "infinity"
	}
	return fmt.Sprintf("%d", v)
}

func memStringPtr(v *uint64) string {
	if v == nil {
		return "0"
	}
	return memString(*v)
}

// sectionFor returns the systemd unit-file section a drop-in targets:
// slices get [Slice], everything else (scopes) gets [Scope].
func sectionFor(name string) string {
	if strings.HasSuffix(string(name), ".slice") {
		return "Slice"
	}
	return "Scope"
}

// Render produces the resctl drop-in content for one slice. zeroMemLow
// forces MemoryLow to 0 regardless of the configured value, used when
// the slice's memory controller is administratively disabled for this
// instance sequence.
func Render(name intf.SliceName, s *intf.Slice, zeroMemLow bool) string {
	memLow := memStringPtr(s.MemLow)
	if zeroMemLow {
		memLow = "0"
	}
	return fmt.Sprintf(
		"# Generated. Do not edit directly.\n"+
			"[%s]\n"+
			"CPUWeight=%d\n"+
			"IOWeight=%d\n"+
			"MemoryMin=%s\n"+
			"MemoryLow=%s\n"+
			"MemoryHigh=%s\n"+
			"MemoryMax=infinity\n"+
			"MemorySwapMax=infinity\n",
		sectionFor(string(name)), s.CPUWeight, s.IOWeight,
		memStringPtr(s.MemMin), memLow, memString(s.MemHigh),
	)
}

// DropInPath is where a named unit's "resctl" drop-in configlet lives,
// under systemd's standard <unit>.d/ convention.
func DropInPath(configDir string, unitName, configletName string) string {
	return filepath.Join(configDir, unitName+".d", configletName+".conf")
}

// WriteIfChanged writes content to path only if the file doesn't already
// hold it byte-for-byte, returning whether a write happened.
func WriteIfChanged(path, content string) (bool, error) {
	if existing, err := os.ReadFile(path); err == nil && string(existing) == content {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("sliceconf: create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("sliceconf: write %s: %w", path, err)
	}
	return true, nil
}
