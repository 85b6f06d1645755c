package reporter

import (
	"time"

	"github.com/resctlgo/cgdemo/internal/intf"
)

// minuteAgg accumulates one minute's worth of per-second reports and
// produces a single averaged report on each minute boundary. Gauges and
// rates are arithmetic means over the samples actually seen; the state
// and service maps are taken from the last sample of the minute.
type minuteAgg struct {
	minute int64
	nr     int
	last   *intf.Report

	usageSums map[intf.SliceName]*usageSum
	rpsSum    [intf.NrHashdInstances]float64
	latSum    [intf.NrHashdInstances]float64
	loadSum   [intf.NrHashdInstances]float64
	vrateSum  float64
}

type usageSum struct {
	cpuPct, rbps, wbps          float64
	memBytes, swapBytes         float64
	cpuStall, memStall, ioStall float64
}

func newMinuteAgg() *minuteAgg {
	return &minuteAgg{minute: -1, usageSums: map[intf.SliceName]*usageSum{}}
}

// Add folds one per-second report in. If rep starts a new minute, the
// previous minute's averaged report is returned first (nil otherwise).
func (a *minuteAgg) Add(rep *intf.Report) *intf.Report {
	minute := rep.Timestamp.Unix() / 60
	var flushed *intf.Report
	if a.minute >= 0 && minute != a.minute {
		flushed = a.flush()
	}
	if a.minute != minute {
		a.reset(minute)
	}

	a.nr++
	a.last = rep
	for name, u := range rep.Usages {
		s, ok := a.usageSums[name]
		if !ok {
			s = &usageSum{}
			a.usageSums[name] = s
		}
		s.cpuPct += u.CPUUsagePct
		s.rbps += u.IORBPS
		s.wbps += u.IOWBPS
		s.memBytes += float64(u.MemBytes)
		s.swapBytes += float64(u.SwapBytes)
		s.cpuStall += u.CPUStallPct
		s.memStall += u.MemStallPct
		s.ioStall += u.IOStallPct
	}
	for i := range rep.Hashd {
		a.rpsSum[i] += rep.Hashd[i].RPS
		a.latSum[i] += rep.Hashd[i].Lat
		a.loadSum[i] += rep.Hashd[i].Load
	}
	a.vrateSum += rep.IOCost.VRate
	return flushed
}

func (a *minuteAgg) reset(minute int64) {
	a.minute = minute
	a.nr = 0
	a.last = nil
	a.usageSums = map[intf.SliceName]*usageSum{}
	for i := range a.rpsSum {
		a.rpsSum[i] = 0
		a.latSum[i] = 0
		a.loadSum[i] = 0
	}
	a.vrateSum = 0
}

// flush produces the averaged report for the accumulated minute.
func (a *minuteAgg) flush() *intf.Report {
	if a.nr == 0 || a.last == nil {
		return nil
	}
	n := float64(a.nr)
	out := *a.last
	out.Timestamp = time.Unix(a.minute*60, 0)
	out.Usages = make(map[intf.SliceName]intf.UsageReport, len(a.usageSums))
	for name, s := range a.usageSums {
		out.Usages[name] = intf.UsageReport{
			CPUUsagePct: s.cpuPct / n,
			MemBytes:    uint64(s.memBytes / n),
			SwapBytes:   uint64(s.swapBytes / n),
			IORBPS:      s.rbps / n,
			IOWBPS:      s.wbps / n,
			CPUStallPct: s.cpuStall / n,
			MemStallPct: s.memStall / n,
			IOStallPct:  s.ioStall / n,
		}
	}
	for i := range out.Hashd {
		out.Hashd[i].RPS = a.rpsSum[i] / n
		out.Hashd[i].Lat = a.latSum[i] / n
		out.Hashd[i].Load = a.loadSum[i] / n
	}
	out.IOCost.VRate = a.vrateSum / n
	return &out
}
