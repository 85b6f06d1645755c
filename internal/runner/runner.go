// Package runner implements the agent's reconciliation state machine:
// the single-threaded loop that owns command/bench/slice in-memory state
// and drives the slice configurator, service supervisor, dispatch
// instances, and nested bench calibrations.
package runner

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/resctlgo/cgdemo/internal/dispatch"
	"github.com/resctlgo/cgdemo/internal/intf"
	"github.com/resctlgo/cgdemo/internal/progstate"
	"github.com/resctlgo/cgdemo/internal/sliceconf"
	"github.com/resctlgo/cgdemo/internal/sysunit"
)

// TickInterval is the reconciliation loop's nominal period.
const TickInterval = 100 * time.Millisecond

// VerifyInterval is how often (absent a triggering config change) the
// runner re-runs slice verify-and-fix and re-checks the IO scheduler.
const VerifyInterval = 10 * time.Second

// fileWatch tracks one config file's last-seen mtime for change
// detection.
type fileWatch struct {
	path    string
	modTime time.Time
}

func (w *fileWatch) changed() bool {
	st, err := os.Stat(w.path)
	if err != nil {
		return false
	}
	if st.ModTime().After(w.modTime) {
		w.modTime = st.ModTime()
		return true
	}
	return false
}

// Deps bundles every collaborator the runner drives, so construction
// stays a single literal and tests can substitute fakes.
type Deps struct {
	Bus    *sysunit.Bus
	Slices *sliceconf.Manager
	State  *progstate.State
	Logger *log.Logger

	// OnHashdStarted is invoked whenever a hashd slot's dispatch thread
	// comes up, handing its live sample stream to whoever wants it (the
	// reporter, in the agent's wiring).
	OnHashdStarted func(idx int, samples <-chan dispatch.Sample)
}

// Runner is the agent state machine: the sole writer of Cmd/BenchKnobs/
// SliceKnobs in-memory state, guarded by mu. The reporter takes the lock
// only for brief View snapshots.
type Runner struct {
	mu sync.Mutex

	paths *intf.Paths
	deps  Deps
	opts  Options

	state    intf.RunnerState
	cmd      *intf.Cmd
	bench    *intf.BenchKnobs
	slices   *intf.SliceKnobs
	oomd     *intf.OOMDRuleset
	sideDefs *intf.SideDefs
	params   *intf.HashdParams

	instanceSeq uint64
	cmdAckSeq   uint64

	watches map[string]*fileWatch

	hashdInstances hashdSlots

	sysloads     map[string]*sideJob
	sideloads    map[string]*sideJob
	sideloaderOn bool
	oomdActive   bool

	devnr string
	saved *sysfsSaved

	lastVerify time.Time
}

// New builds a Runner rooted at paths, loading whatever command/bench/
// slice/oomd state already exists on disk, with defaults substituted for
// anything missing or malformed (bad user files are logged and replaced,
// never fatal).
func New(paths *intf.Paths, deps Deps, opts Options) *Runner {
	r := &Runner{
		paths:       paths,
		deps:        deps,
		opts:        opts,
		state:       intf.StateIdle,
		instanceSeq: uint64(time.Now().Unix()),
		watches:     map[string]*fileWatch{},
		sysloads:    map[string]*sideJob{},
		sideloads:   map[string]*sideJob{},
	}
	r.cmd = r.loadCmdOrDefault()
	r.bench = r.loadBenchOrDefault()
	r.slices = r.loadSliceKnobsOrDefault()
	r.oomd = r.loadOomdOrDefault()
	r.sideDefs = r.loadSideDefsOrDefault()
	r.params = r.loadParamsOrDefault()
	r.sideloaderOn = r.sideloaderEnabledLocked()
	for _, p := range []string{
		paths.Cmd, paths.BenchHashd, paths.SliceKnobs,
		paths.OOMDRuleset, paths.SideDefs, paths.HashdParams,
	} {
		r.watches[p] = &fileWatch{path: p}
	}
	if opts.Dev != "" {
		if nr, err := sliceconf.DevNr("/sys/block", opts.Dev); err == nil {
			r.devnr = nr
		} else {
			r.logf("runner: %v", err)
		}
		r.saved = takeoverSysfs(opts.Dev)
	}
	_ = r.persistDefaultOomd()
	if opts.ForceRunning {
		r.state = intf.StateRunning
	}
	return r
}

func (r *Runner) loadCmdOrDefault() *intf.Cmd {
	c := &intf.Cmd{}
	if err := intf.LoadJSON(r.paths.Cmd, c); err != nil {
		return intf.DefaultCmd()
	}
	if c.Sysloads == nil {
		c.Sysloads = map[string]string{}
	}
	if c.Sideloads == nil {
		c.Sideloads = map[string]string{}
	}
	return c
}

func (r *Runner) loadBenchOrDefault() *intf.BenchKnobs {
	b := &intf.BenchKnobs{}
	if err := intf.LoadJSON(r.paths.BenchHashd, b); err != nil {
		return &intf.BenchKnobs{}
	}
	return b
}

func (r *Runner) loadSliceKnobsOrDefault() *intf.SliceKnobs {
	sk := &intf.SliceKnobs{}
	if err := intf.LoadJSON(r.paths.SliceKnobs, sk); err != nil {
		return intf.DefaultSliceKnobs()
	}
	return sk
}

func (r *Runner) loadSideDefsOrDefault() *intf.SideDefs {
	sd := &intf.SideDefs{}
	if err := intf.LoadJSON(r.paths.SideDefs, sd); err != nil {
		return intf.DefaultSideDefs()
	}
	if sd.Defs == nil {
		sd.Defs = map[string]intf.SideDef{}
	}
	return sd
}

func (r *Runner) loadParamsOrDefault() *intf.HashdParams {
	p := &intf.HashdParams{}
	if err := intf.LoadJSON(r.paths.HashdParams, p); err != nil {
		return intf.DefaultHashdParams()
	}
	return p
}

// State returns the current state machine state.
func (r *Runner) State() intf.RunnerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// View snapshots the fields the reporter folds into each report, under
// the runner's lock.
func (r *Runner) View() intf.AgentView {
	r.mu.Lock()
	defer r.mu.Unlock()
	enforced := r.opts.Passive != PassiveAll
	return intf.AgentView{
		State: r.state,
		Resctl: intf.ResctlEnabled{
			CPU: enforced && r.sideloaderOn,
			Mem: enforced,
			IO:  enforced,
		},
		OOMD:           r.oomdActive,
		Sideloader:     r.sideloaderOn,
		BenchHashdSeq:  r.bench.HashdSeq,
		BenchIOCostSeq: r.bench.IOCostSeq,
		Sysloads:       svcStatesLocked(r.sysloads),
		Sideloads:      svcStatesLocked(r.sideloads),
	}
}

// BenchKnobs returns a copy of the current calibrated bench knobs.
func (r *Runner) BenchKnobs() intf.BenchKnobs {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.bench
}

// Cmd returns a copy of the current command state.
func (r *Runner) Cmd() intf.Cmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.cmd
}

// RequestBenchHashd bumps the command's bench_hashd_seq so the next tick
// enters the BenchHashd state, and persists the command file.
func (r *Runner) RequestBenchHashd() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmd.BenchHashdSeq++
	r.cmd.CmdSeq++
	return intf.SaveJSON(r.paths.Cmd, r.cmd)
}

// RequestBenchIOCost bumps the command's bench_iocost_seq so the next
// tick enters the BenchIOCost state, and persists the command file.
func (r *Runner) RequestBenchIOCost() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmd.BenchIOCostSeq++
	r.cmd.CmdSeq++
	return intf.SaveJSON(r.paths.Cmd, r.cmd)
}

// SetHashdActive flips hashd slot idx's Active flag and persists the
// command file; the reconciliation loop picks up the change on its next
// tick (or immediately, via cmd file mtime change detection).
func (r *Runner) SetHashdActive(idx int, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx < 0 || idx >= intf.NrHashdInstances {
		return fmt.Errorf("runner: hashd index %d out of range", idx)
	}
	r.cmd.Hashd[idx].Active = active
	r.cmd.CmdSeq++
	return intf.SaveJSON(r.paths.Cmd, r.cmd)
}

// Run drives the reconciliation loop until progstate signals Exiting,
// then calls Shutdown.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		if r.deps.State.IsExiting() {
			r.Shutdown(ctx)
			return
		}
		select {
		case <-ctx.Done():
			r.Shutdown(ctx)
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick runs one reconciliation cycle: reload changed files, run the
// per-state transition logic, acknowledge processed commands, and
// periodically verify-and-fix.
func (r *Runner) tick(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	benchChanged := r.watches[r.paths.BenchHashd].changed()
	sliceChanged := r.watches[r.paths.SliceKnobs].changed()
	cmdChanged := r.watches[r.paths.Cmd].changed()
	oomdChanged := r.watches[r.paths.OOMDRuleset].changed()
	sideDefsChanged := r.watches[r.paths.SideDefs].changed()
	paramsChanged := r.watches[r.paths.HashdParams].changed()

	if cmdChanged {
		r.cmd = r.loadCmdOrDefault()
	}
	if sideDefsChanged {
		r.sideDefs = r.loadSideDefsOrDefault()
	}
	if paramsChanged {
		r.params = r.loadParamsOrDefault()
		r.pushParamsLocked()
	}
	if benchChanged {
		r.bench = r.loadBenchOrDefault()
		r.applyIOCostLocked()
	}
	if benchChanged || sliceChanged {
		if sliceChanged {
			r.slices = r.loadSliceKnobsOrDefault()
		}
		r.applySlicesLocked(ctx)
	}
	if benchChanged || oomdChanged {
		if oomdChanged {
			r.oomd = r.loadOomdOrDefault()
		}
		r.regenerateOOMDLocked(ctx)
	}
	if sliceChanged {
		wasOn := r.sideloaderOn
		r.sideloaderOn = r.sideloaderEnabledLocked()
		if wasOn != r.sideloaderOn {
			r.logf("runner: sideloader %v", r.sideloaderOn)
		}
	}

	r.stepStateLocked(ctx)

	if r.cmd.CmdSeq > r.cmdAckSeq {
		r.cmdAckSeq = r.cmd.CmdSeq
		if err := intf.SaveJSON(r.paths.CmdAck, &intf.CmdAck{CmdAckSeq: r.cmdAckSeq}); err != nil {
			r.logf("runner: write cmd ack: %v", err)
		}
	}

	if sliceChanged || time.Since(r.lastVerify) >= VerifyInterval {
		r.applySlicesLocked(ctx)
		r.adjustIOSchedulerLocked()
		r.lastVerify = time.Now()
	}
}

// pushParamsLocked delivers freshly reloaded hashd parameters to every
// running dispatch instance; they apply on the instance's next control
// cycle.
func (r *Runner) pushParamsLocked() {
	for _, inst := range r.hashdInstances {
		if inst != nil {
			inst.disp.SendCommand(dispatch.Command{Params: r.params})
		}
	}
}

// passiveSliceKnobs reduces the slice tree to only host-critical memory
// protection, the one thing keep-crit-mem-prot mode is still allowed to
// enforce.
func passiveSliceKnobs(full *intf.SliceKnobs) *intf.SliceKnobs {
	out := &intf.SliceKnobs{Slices: map[intf.SliceName]*intf.Slice{}}
	if s, ok := full.Slices[intf.SliceHostCritical]; ok {
		cp := *s
		out.Slices[intf.SliceHostCritical] = &cp
	}
	return out
}

func (r *Runner) applySlicesLocked(ctx context.Context) {
	if r.opts.Passive == PassiveAll || r.deps.Bus == nil {
		return
	}
	knobs := r.slices
	if r.opts.Passive == PassiveKeepCritMemProt {
		knobs = passiveSliceKnobs(r.slices)
	}
	needs := sliceconf.NeedsPropagation{}
	for name := range knobs.Slices {
		needs[name] = true
	}
	r.deps.Slices.CurrentSeq = r.instanceSeq
	r.deps.Slices.SkipVerify = r.opts.Bypass
	if _, err := r.deps.Slices.Apply(ctx, r.deps.Bus, knobs, needs); err != nil {
		r.logf("slice apply: %v", err)
	}
}

// applyIOCostLocked pushes the calibrated iocost model/QoS to the
// kernel whenever bench.json changes. Without a managed device or in
// passive mode this is a no-op.
func (r *Runner) applyIOCostLocked() {
	if r.devnr == "" || r.opts.Passive == PassiveAll {
		return
	}
	if !r.bench.IOCost.QoS.Enable {
		if err := sliceconf.DisableIOCost(r.deps.Slices.CgroupRoot, r.devnr); err != nil {
			r.logf("iocost: %v", err)
		}
		return
	}
	if err := sliceconf.ApplyIOCost(r.deps.Slices.CgroupRoot, r.devnr, r.bench.IOCost); err != nil {
		r.logf("iocost: %v", err)
		return
	}
	r.logf("iocost params applied: seq=%d", r.bench.IOCostSeq)
}

// adjustIOSchedulerLocked keeps the managed device on mq-deadline, except
// during an iocost bench where the elevator must be out of the way
// entirely.
func (r *Runner) adjustIOSchedulerLocked() {
	if r.opts.Dev == "" || r.opts.Passive == PassiveAll {
		return
	}
	want := "mq-deadline"
	if r.state == intf.StateBenchIOCost {
		want = "none"
	}
	if err := setIOScheduler(r.opts.Dev, want); err != nil {
		r.logf("runner: %v", err)
	}
}

func (r *Runner) logf(format string, args ...any) {
	if r.deps.Logger != nil {
		r.deps.Logger.Printf(format, args...)
	}
}

func (r *Runner) transitionLocked(to intf.RunnerState) {
	r.logf("state %s -> %s", r.state, to)
	r.state = to
}
