// Package reporter samples per-slice cgroup usage and PSI stall ratios
// once a second, merges in the dispatch/iolat/iocost streams, and writes
// the periodic report.json/report-1min.json pair the rest of the
// toolchain reads.
package reporter

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/resctlgo/cgdemo/internal/intf"
)

// CgroupRoot is the default cgroup2 mount point; overridable for tests.
const CgroupRoot = "/sys/fs/cgroup"

// Sampler reads cgroupfs usage/stall stats for one slice.
type Sampler struct {
	CgroupRoot string
}

// NewSampler builds a Sampler rooted at root (defaulting to CgroupRoot).
func NewSampler(root string) *Sampler {
	if root == "" {
		root = CgroupRoot
	}
	return &Sampler{CgroupRoot: root}
}

func readKeyedInt(path, key string) (uint64, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) >= 2 && fields[0] == key {
			v, err := strconv.ParseUint(fields[1], 10, 64)
			return v, err == nil
		}
	}
	return 0, false
}

func readSingleInt(path string) (uint64, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
	return v, err == nil
}

// parsePSI reads one line kind ("some" or "full") out of a pressure file
// and returns its avg10 fraction as a percentage. CPU stall uses the
// some line; memory and IO use full — full is what actually stalls the
// whole cgroup for those two, and the two kinds are deliberately not
// unified.
func parsePSI(path, kind string) float64 {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, kind+" ") {
			continue
		}
		for _, tok := range strings.Fields(line)[1:] {
			kv := strings.SplitN(tok, "=", 2)
			if len(kv) == 2 && kv[0] == "avg10" {
				v, _ := strconv.ParseFloat(kv[1], 64)
				return v
			}
		}
	}
	return 0
}

// cpuUsageUsec reads cpu.stat's usage_usec field.
func cpuUsageUsec(slicePath string) (uint64, bool) {
	return readKeyedInt(filepath.Join(slicePath, "cpu.stat"), "usage_usec")
}

// memCurrent reads memory.current.
func memCurrent(slicePath string) (uint64, bool) {
	return readSingleInt(filepath.Join(slicePath, "memory.current"))
}

// swapCurrent reads memory.swap.current.
func swapCurrent(slicePath string) (uint64, bool) {
	return readSingleInt(filepath.Join(slicePath, "memory.swap.current"))
}

// ioStat reads io.stat's rbytes/wbytes totals summed across devices.
func ioStat(slicePath string) (rbytes, wbytes uint64) {
	f, err := os.Open(filepath.Join(slicePath, "io.stat"))
	if err != nil {
		return 0, 0
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		for _, tok := range fields[1:] {
			kv := strings.SplitN(tok, "=", 2)
			if len(kv) != 2 {
				continue
			}
			v, _ := strconv.ParseUint(kv[1], 10, 64)
			switch kv[0] {
			case "rbytes":
				rbytes += v
			case "wbytes":
				wbytes += v
			}
		}
	}
	return rbytes, wbytes
}

// sliceSample is one raw cgroupfs reading, pre-delta.
type sliceSample struct {
	cpuUsec     uint64
	memBytes    uint64
	swapBytes   uint64
	rbytes      uint64
	wbytes      uint64
	cpuStallPct float64
	memStallPct float64
	ioStallPct  float64
}

// Sample reads one raw snapshot for a slice's cgroupfs directory.
func (s *Sampler) Sample(slicePath string) sliceSample {
	cpu, _ := cpuUsageUsec(slicePath)
	mem, _ := memCurrent(slicePath)
	swap, _ := swapCurrent(slicePath)
	rb, wb := ioStat(slicePath)
	return sliceSample{
		cpuUsec:     cpu,
		memBytes:    mem,
		swapBytes:   swap,
		rbytes:      rb,
		wbytes:      wb,
		cpuStallPct: parsePSI(filepath.Join(slicePath, "cpu.pressure"), "some"),
		memStallPct: parsePSI(filepath.Join(slicePath, "memory.pressure"), "full"),
		ioStallPct:  parsePSI(filepath.Join(slicePath, "io.pressure"), "full"),
	}
}

// Delta turns two raw samples taken dur seconds apart into a
// UsageReport, converting cumulative counters to rates.
func Delta(prev, cur sliceSample, dur float64) intf.UsageReport {
	if dur <= 0 {
		dur = 1
	}
	cpuDeltaUsec := float64(cur.cpuUsec - prev.cpuUsec)
	rbDelta := float64(cur.rbytes - prev.rbytes)
	wbDelta := float64(cur.wbytes - prev.wbytes)
	return intf.UsageReport{
		CPUUsagePct: cpuDeltaUsec / (dur * 1e6) * 100,
		MemBytes:    cur.memBytes,
		SwapBytes:   cur.swapBytes,
		IORBPS:      rbDelta / dur,
		IOWBPS:      wbDelta / dur,
		CPUStallPct: cur.cpuStallPct,
		MemStallPct: cur.memStallPct,
		IOStallPct:  cur.ioStallPct,
	}
}
