package runner

import (
	"context"

	"github.com/resctlgo/cgdemo/internal/calibrate"
	"github.com/resctlgo/cgdemo/internal/dispatch"
	"github.com/resctlgo/cgdemo/internal/intf"
)

// hashdSlots holds the two hashd instances' runtime state, nil when a
// slot isn't active.
type hashdSlots [intf.NrHashdInstances]*hashdInstance

// stepStateLocked runs one state-machine step. It only ever moves one
// transition per tick, leaving the next tick to notice the new state and
// act on it.
func (r *Runner) stepStateLocked(ctx context.Context) {
	switch r.state {
	case intf.StateIdle:
		r.stepIdleLocked(ctx)
	case intf.StateRunning:
		r.stepRunningLocked(ctx)
	case intf.StateBenchHashd:
		// Benchmark runs to completion on its own goroutine; nothing to
		// reconcile here beyond waiting for it to flip the state back.
	case intf.StateBenchIOCost:
	}
}

func (r *Runner) stepIdleLocked(ctx context.Context) {
	if r.cmd.BenchHashdSeq > r.bench.HashdSeq {
		r.transitionLocked(intf.StateBenchHashd)
		go r.runBenchHashd(ctx, r.cmd.BenchHashdSeq)
		return
	}
	if r.cmd.BenchIOCostSeq > r.bench.IOCostSeq {
		r.transitionLocked(intf.StateBenchIOCost)
		go r.runBenchIOCost(ctx, r.cmd.BenchIOCostSeq)
		return
	}
	if r.bench.HashdSeq > 0 || r.opts.ForceRunning {
		r.transitionLocked(intf.StateRunning)
	}
}

func (r *Runner) stepRunningLocked(ctx context.Context) {
	if r.cmd.BenchHashdSeq > r.bench.HashdSeq || r.cmd.BenchIOCostSeq > r.bench.IOCostSeq {
		for i, inst := range r.hashdInstances {
			if inst != nil {
				r.stopHashd(ctx, inst)
				r.hashdInstances[i] = nil
			}
		}
		r.stopAllSideJobsLocked(ctx)
		r.transitionLocked(intf.StateIdle)
		return
	}

	for i, hc := range r.cmd.Hashd {
		inst := r.hashdInstances[i]
		switch {
		case hc.Active && inst == nil:
			newInst, err := r.startHashd(ctx, i, hc)
			if err != nil {
				r.logf("runner: start hashd[%d]: %v", i, err)
				continue
			}
			r.hashdInstances[i] = newInst
		case hc.Active && inst != nil:
			inst.disp.SendCommand(dispatch.Command{Params: hashdParamsFromCmd(r.params, &r.bench.Hashd, hc)})
		case !hc.Active && inst != nil:
			r.stopHashd(ctx, inst)
			r.hashdInstances[i] = nil
		}
	}

	r.syncSideJobsLocked(ctx)
}

// runBenchHashd drives the full hashd calibration against a fresh
// dispatch instance, then persists the result and returns to Idle.
func (r *Runner) runBenchHashd(ctx context.Context, seq uint64) {
	files := &dispatch.TestfileSet{NrFiles: 32, Sizes: make([]int64, 32)}
	for i := range files.Sizes {
		files.Sizes[i] = 1 << 20
	}
	d := dispatch.New(intf.DefaultHashdParams(), files, r.deps.State)
	go d.Run()

	sampler := newHashdSampler(r.deps.State, files, d)
	knobs, warnings := calibrate.RunHashdBench(sampler, r.isRotationalDevice())
	d.Stop()
	for _, w := range warnings {
		r.logf("bench-hashd: %s", w)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.bench.Hashd = *knobs
	r.bench.HashdSeq = seq
	if err := intf.SaveJSON(r.paths.BenchHashd, r.bench); err != nil {
		r.logf("bench-hashd: save: %v", err)
	}
	r.transitionLocked(intf.StateIdle)
}

// isRotationalDevice reads the managed device's rotational queue flag;
// false (SSD timings) when no device is configured.
func (r *Runner) isRotationalDevice() bool {
	if r.opts.Dev == "" {
		return false
	}
	v, err := readTrimmed(rotationalPath(r.opts.Dev))
	if err != nil {
		return false
	}
	return v == "1"
}

// Shutdown stops every running hashd instance, side job, and transient
// unit the runner owns, then restores the sysfs knobs recorded at
// startup. Idempotent; tolerates already-stopped units.
func (r *Runner) Shutdown(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, inst := range r.hashdInstances {
		if inst != nil {
			r.stopHashd(ctx, inst)
			r.hashdInstances[i] = nil
		}
	}
	r.stopAllSideJobsLocked(ctx)
	r.saved.restore()
	r.saved = nil
	r.logf("runner: shutdown complete")
}
