package reporter

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/resctlgo/cgdemo/internal/dispatch"
	"github.com/resctlgo/cgdemo/internal/intf"
	"github.com/resctlgo/cgdemo/internal/progstate"
	"github.com/resctlgo/cgdemo/internal/reportring"
)

// AgentSource is the subset of the runner's state the reporter needs to
// read each second; implemented by *runner.Runner but kept as an
// interface here so the two packages don't import each other.
type AgentSource interface {
	View() intf.AgentView
}

// Reporter drives the per-second sampling loop: read every slice's
// cgroup usage, fold in the latest hashd/iolat/iocost samples and the
// runner's view, append the result to the report ring, and roll
// completed minutes into the per-minute archive.
type Reporter struct {
	paths   *intf.Paths
	sampler *Sampler
	rings   *reportring.Set
	agent   AgentSource
	progst  *progstate.State

	seq uint64

	prevSamples map[intf.SliceName]sliceSample
	prevAt      time.Time

	agg *minuteAgg

	hashdMu      sync.Mutex
	hashdSamples [intf.NrHashdInstances]<-chan dispatch.Sample
	lastHashd    [intf.NrHashdInstances]dispatch.Sample

	IOLat  func() intf.IOLatReport
	IOCost func() intf.IOCostReport
}

// New builds a Reporter writing into paths.Report/Report1Min via rings.
func New(paths *intf.Paths, sampler *Sampler, rings *reportring.Set, agent AgentSource, progst *progstate.State) *Reporter {
	return &Reporter{
		paths:       paths,
		sampler:     sampler,
		rings:       rings,
		agent:       agent,
		progst:      progst,
		prevSamples: map[intf.SliceName]sliceSample{},
		agg:         newMinuteAgg(),
	}
}

// AttachHashd wires instance idx's live dispatch sample stream in. Safe
// to call from the runner's goroutine while the sampling loop runs.
func (r *Reporter) AttachHashd(idx int, ch <-chan dispatch.Sample) {
	if idx < 0 || idx >= intf.NrHashdInstances {
		return
	}
	r.hashdMu.Lock()
	r.hashdSamples[idx] = ch
	r.hashdMu.Unlock()
}

// Run samples once a second until progstate signals Exiting.
func (r *Reporter) Run() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	r.prevAt = time.Now()

	for {
		if r.progst.IsExiting() {
			return
		}
		select {
		case now := <-ticker.C:
			r.tick(now)
		}
	}
}

func (r *Reporter) tick(now time.Time) {
	r.seq++
	dur := now.Sub(r.prevAt).Seconds()
	r.prevAt = now

	view := r.agent.View()

	rep := intf.NewReport(r.seq, view.State)
	rep.Timestamp = now
	rep.Resctl = view.Resctl
	rep.OOMD = view.OOMD
	rep.Sideloader = view.Sideloader
	rep.BenchIOCost = view.State == intf.StateBenchIOCost
	rep.Sysloads = view.Sysloads
	rep.Sideloads = view.Sideloads

	for _, name := range intf.AllSlices {
		slicePath := filepath.Join(r.sampler.CgroupRoot, string(name))
		cur := r.sampler.Sample(slicePath)
		prev, ok := r.prevSamples[name]
		if !ok {
			prev = cur
		}
		rep.Usages[name] = Delta(prev, cur, dur)
		r.prevSamples[name] = cur
	}

	r.hashdMu.Lock()
	hashdChans := r.hashdSamples
	r.hashdMu.Unlock()

	for i := range hashdChans {
		if ch := hashdChans[i]; ch != nil {
			select {
			case s, open := <-ch:
				if open {
					r.lastHashd[i] = s
				}
			default:
			}
		}
		rep.Hashd[i] = intf.HashdReport{
			Phase:  intf.PhaseRunning,
			RPS:    r.lastHashd[i].RPS,
			Load:   r.lastHashd[i].Concurrency,
			LatPct: r.lastHashd[i].LatPct,
			Lat:    r.lastHashd[i].LatPct["99"],
		}
		if hashdChans[i] != nil {
			_ = intf.SaveJSON(r.paths.Hashd[i].Report, rep.Hashd[i])
		}
	}

	if r.IOLat != nil {
		rep.IOLat = r.IOLat()
	}
	if r.IOCost != nil {
		rep.IOCost = r.IOCost()
	}

	if err := r.rings.Sec.Append(rep); err != nil {
		return
	}
	_ = intf.SaveJSON(r.paths.Report, rep)

	if minRep := r.agg.Add(rep); minRep != nil {
		if err := r.rings.Min.Append(minRep); err == nil {
			_ = intf.SaveJSON(r.paths.Report1Min, minRep)
		}
	}
}
