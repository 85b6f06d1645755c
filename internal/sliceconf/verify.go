package sliceconf

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/resctlgo/cgdemo/internal/intf"
)

// tolerance is the allowed fractional deviation before a non-zero memory
// knob is considered out of sync and rewritten.
const tolerance = 0.10

func readCgroupValue(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func parseKnobValue(s string) (uint64, bool) {
	if s == "max" {
		return intf.MaxMemory, true
	}
	v, err := strconv.ParseUint(s, 10, 64)
	return v, err == nil
}

func formatKnobValue(v uint64) string {
	if v == intf.MaxMemory {
		return "max"
	}
	return strconv.FormatUint(v, 10)
}

func memOutOfTolerance(have, want uint64) bool {
	if have == want {
		return false
	}
	if want == 0 || want == intf.MaxMemory || have == intf.MaxMemory {
		return true
	}
	diff := float64(have) - float64(want)
	if diff < 0 {
		diff = -diff
	}
	return diff/float64(want) > tolerance
}

// writeIfOutOfSync rewrites a single cgroupfs knob file if its value
// deviates from want, applying a 10% tolerance to non-zero memory knobs
//.
func writeIfOutOfSync(path string, want uint64, memKnob bool) (bool, error) {
	have, err := readCgroupValue(path)
	if err != nil {
		return false, fmt.Errorf("sliceconf: read %s: %w", path, err)
	}
	haveV, ok := parseKnobValue(have)
	if !ok {
		haveV = 0
	}
	outOfSync := haveV != want
	if memKnob && haveV != 0 && want != 0 {
		outOfSync = memOutOfTolerance(haveV, want)
	}
	if !outOfSync {
		return false, nil
	}
	if err := os.WriteFile(path, []byte(formatKnobValue(want)), 0o644); err != nil {
		return false, fmt.Errorf("sliceconf: write %s: %w", path, err)
	}
	return true, nil
}

// VerifyAndFixResult summarizes one pass of verify-and-fix over the slice
// tree: which slices had knobs rewritten, and any non-fatal read/write
// errors encountered (errors here are logged by the caller, never fatal).
type VerifyAndFixResult struct {
	Fixed  map[intf.SliceName][]string
	Errors []error
}

// VerifyAndFix walks cgroupPath/<slice>, reading cpu.weight, io.weight,
// and memory.{min,low,high,max}, rewriting any that differ from knobs
// (within tolerance for non-zero memory values). Errors for one slice
// don't stop the pass over the rest.
func VerifyAndFix(cgroupRoot string, knobs *intf.SliceKnobs) *VerifyAndFixResult {
	res := &VerifyAndFixResult{Fixed: map[intf.SliceName][]string{}}
	for _, name := range intf.AllSlices {
		s, ok := knobs.Slices[name]
		if !ok {
			continue
		}
		dir := filepath.Join(cgroupRoot, string(name))
		if _, err := os.Stat(dir); err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("sliceconf: slice dir %s: %w", dir, err))
			continue
		}

		type knob struct {
			file string
			want uint64
			mem  bool
		}
		knobsToCheck := []knob{
			{"cpu.weight", uint64(s.CPUWeight), false},
			{"io.weight", uint64(s.IOWeight), false},
			{"memory.min", memPtrOr0(s.MemMin), true},
			{"memory.low", memPtrOr0(s.MemLow), true},
			{"memory.high", s.MemHigh, true},
			{"memory.max", s.MemMax, true},
		}
		for _, k := range knobsToCheck {
			changed, err := writeIfOutOfSync(filepath.Join(dir, k.file), k.want, k.mem)
			if err != nil {
				res.Errors = append(res.Errors, err)
				continue
			}
			if changed {
				res.Fixed[name] = append(res.Fixed[name], k.file)
			}
		}
	}
	return res
}

func memPtrOr0(v *uint64) uint64 {
	if v == nil {
		return 0
	}
	return *v
}

// competingControllerFiles are the IO controller knobs that, if set
// anywhere outside our own management, arbitrate against iocost and
// must be flagged.
var competingControllerFiles = []string{"io.latency", "io.low", "io.max"}

// ScanCompetingIOControllers walks cgroupRoot looking for io.latency,
// io.low, or io.max files with non-empty content anywhere in the tree;
// any hit is recorded as a missed requirement since a second IO
// controller active alongside iocost breaks its arbitration.
func ScanCompetingIOControllers(cgroupRoot string) ([]string, error) {
	var hits []string
	err := filepath.WalkDir(cgroupRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // tolerate races with disappearing cgroups
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		for _, f := range competingControllerFiles {
			if name != f {
				continue
			}
			content, rerr := readCgroupValue(path)
			if rerr != nil || content == "" {
				continue
			}
			if !hasActiveControllerSetting(content) {
				continue
			}
			hits = append(hits, path)
		}
		return nil
	})
	return hits, err
}

// hasActiveControllerSetting reports whether an io.latency/io.low/io.max
// file has a real per-device override configured, as opposed to the
// kernel's "nothing configured" default (empty, or every value "max").
func hasActiveControllerSetting(content string) bool {
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		for _, kv := range strings.Fields(line) {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				continue
			}
			if v != "max" && v != "0" {
				return true
			}
		}
	}
	return false
}
