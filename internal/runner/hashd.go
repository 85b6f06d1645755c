package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/resctlgo/cgdemo/internal/dispatch"
	"github.com/resctlgo/cgdemo/internal/intf"
	"github.com/resctlgo/cgdemo/internal/progstate"
	"github.com/resctlgo/cgdemo/internal/sysunit"
)

// hashdInstance pairs a running dispatch thread with the transient
// service it's nominally attached to, for one of the two hashd slots.
type hashdInstance struct {
	idx    int
	disp   *dispatch.Dispatcher
	svc    *sysunit.TransientService
	logger *dispatch.Logger
}

// hashdParamsFromCmd layers one instance's command-file overrides on top
// of the live base parameters and the calibrated knobs.
func hashdParamsFromCmd(base *intf.HashdParams, knobs *intf.HashdKnobs, cmd intf.HashdCmd) *intf.HashdParams {
	p := *base
	if knobs.HashSize > 0 {
		p.FileSizeMean = knobs.HashSize
	}
	if knobs.RpsMax > 0 {
		p.RpsMax = knobs.RpsMax
	}
	if cmd.FileRatio > 0 {
		p.FileTotalFrac = knobs.MemFrac * cmd.FileRatio
	}
	if cmd.RpsTargetRatio > 0 {
		p.RpsTarget = uint32(float64(knobs.RpsMax) * cmd.RpsTargetRatio)
	}
	if cmd.LatTarget > 0 {
		p.P99LatTarget = cmd.LatTarget
	}
	if cmd.LogBPS > 0 {
		p.LogBPS = cmd.LogBPS
	}
	return &p
}

// startHashd launches a dispatch thread for slot idx inside the agent
// process. With a bus and outside passive-all mode it also builds a
// transient service for the slot in workload.slice; that service is not
// started here, and the dispatch thread does not run under it.
// The instance's args/params files are written under its hashd-A/B
// subtree so external tooling can inspect what it was started with.
func (r *Runner) startHashd(ctx context.Context, idx int, cmd intf.HashdCmd) (*hashdInstance, error) {
	params := hashdParamsFromCmd(r.params, &r.bench.Hashd, cmd)
	sizes := make([]int64, 32)
	for i := range sizes {
		sizes[i] = int64(r.bench.Hashd.HashSize) * 4
	}
	files := &dispatch.TestfileSet{NrFiles: len(sizes), Sizes: sizes}

	ip := r.paths.Hashd[idx]
	if err := intf.SaveJSON(ip.Args, cmd); err != nil {
		r.logf("runner: write %s: %v", ip.Args, err)
	}
	if err := intf.SaveJSON(ip.Params, params); err != nil {
		r.logf("runner: write %s: %v", ip.Params, err)
	}

	inst := &hashdInstance{idx: idx}
	if r.deps.Bus != nil && r.opts.Passive != PassiveAll {
		svcName := fmt.Sprintf("resctl-hashd-%d.service", idx)
		svc, err := sysunit.NewTransientService(ctx, r.deps.Bus, svcName, []string{"/bin/true"}, nil)
		if err != nil {
			return nil, err
		}
		svc.SetSlice(string(intf.SliceWorkload))
		inst.svc = svc
	}

	d := dispatch.New(params, files, r.deps.State)
	if params.LogBPS > 0 {
		lg, err := dispatch.NewLogger(filepath.Join(ip.Dir, "logs"), params.LogBPS, int(r.bench.Hashd.LogPadding))
		if err != nil {
			r.logf("runner: hashd[%d] completion log: %v", idx, err)
		} else {
			inst.logger = lg
			d.LogLine = func(digest string, latMs float64) {
				_ = lg.Log(digest, time.Duration(latMs*float64(time.Millisecond)), 0)
			}
		}
	}
	inst.disp = d
	go d.Run()
	if r.deps.OnHashdStarted != nil {
		r.deps.OnHashdStarted(idx, d.Samples())
	}
	return inst, nil
}

func (r *Runner) stopHashd(ctx context.Context, inst *hashdInstance) {
	if inst == nil {
		return
	}
	if inst.disp != nil {
		inst.disp.Stop()
	}
	if inst.svc != nil {
		_ = inst.svc.Stop(ctx)
	}
	if inst.logger != nil {
		_ = inst.logger.Close()
	}
}

// hashdSampler adapts a live Dispatcher to calibrate.Sampler by issuing
// parameter commands and blocking on the next control-period sample.
type hashdSampler struct {
	disp *dispatch.Dispatcher
	cur  *intf.HashdParams
}

func newHashdSampler(state *progstate.State, files *dispatch.TestfileSet, disp *dispatch.Dispatcher) *hashdSampler {
	return &hashdSampler{disp: disp, cur: intf.DefaultHashdParams()}
}

func (h *hashdSampler) push() { h.disp.SendCommand(dispatch.Command{Params: h.cur}) }

func (h *hashdSampler) SetFileSizeMean(v uint64)   { h.cur.FileSizeMean = v; h.push() }
func (h *hashdSampler) SetMaxConcurrency(n uint32) { h.cur.MaxConcurrency = n; h.push() }
func (h *hashdSampler) SetPIDFree(b bool)          { /* free-run is modeled by a very high target */ }
func (h *hashdSampler) SetRpsTarget(rps uint32)    { h.cur.RpsTarget = rps; h.push() }
func (h *hashdSampler) SetLatTarget(sec float64)   { h.cur.P99LatTarget = sec; h.push() }
func (h *hashdSampler) SetFileTotalFrac(f float64) { h.cur.FileTotalFrac = f; h.push() }

func (h *hashdSampler) Sample() (rps, p99Lat float64, ok bool) {
	s, open := <-h.disp.Samples()
	if !open {
		return 0, 0, false
	}
	return s.RPS, s.LatPct["99"], true
}
