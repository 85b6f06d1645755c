package runner

import (
	"context"
	"fmt"
	"sort"

	"github.com/resctlgo/cgdemo/internal/intf"
	"github.com/resctlgo/cgdemo/internal/sysunit"
)

// sideKind distinguishes the two flavors of secondary job: sysloads run
// under system.slice and always run when requested; sideloads run under
// sideload.slice and only while the sideloader is enabled.
type sideKind int

const (
	kindSysload sideKind = iota
	kindSideload
)

func (k sideKind) slice() intf.SliceName {
	if k == kindSysload {
		return intf.SliceSystem
	}
	return intf.SliceSideload
}

func (k sideKind) unitName(tag string) string {
	if k == kindSysload {
		return fmt.Sprintf("resctl-sysload-%s.service", tag)
	}
	return fmt.Sprintf("resctl-sideload-%s.service", tag)
}

// sideJob is one running side/sys-load: the definition id it was started
// from (so an id change under the same tag restarts it) and its unit.
type sideJob struct {
	tag  string
	id   string
	kind sideKind
	svc  *sysunit.TransientService
}

// diffSideJobs computes which tags must be started and which stopped to
// make have match want. A tag whose definition id changed appears in
// both lists (stop the old instance, start the new one).
func diffSideJobs(want map[string]string, have map[string]*sideJob) (toStart, toStop []string) {
	for tag, id := range want {
		j, ok := have[tag]
		if !ok || j.id != id {
			toStart = append(toStart, tag)
		}
	}
	for tag, j := range have {
		if id, ok := want[tag]; !ok || j.id != id {
			toStop = append(toStop, tag)
		}
	}
	sort.Strings(toStart)
	sort.Strings(toStop)
	return toStart, toStop
}

func (r *Runner) startSideJob(ctx context.Context, kind sideKind, tag, id string) (*sideJob, error) {
	def, ok := r.sideDefs.Defs[id]
	if !ok {
		return nil, fmt.Errorf("runner: unknown side definition %q for tag %q", id, tag)
	}
	if len(def.Args) == 0 {
		return nil, fmt.Errorf("runner: side definition %q has no command", id)
	}
	svc, err := sysunit.NewTransientService(ctx, r.deps.Bus, kind.unitName(tag), def.Args, def.Envs)
	if err != nil {
		return nil, err
	}
	svc.SetSlice(string(kind.slice()))
	if err := svc.Start(ctx); err != nil {
		return nil, err
	}
	return &sideJob{tag: tag, id: id, kind: kind, svc: svc}, nil
}

func (r *Runner) stopSideJob(ctx context.Context, j *sideJob) {
	if j == nil || j.svc == nil {
		return
	}
	if err := j.svc.Stop(ctx); err != nil {
		r.logf("runner: stop %s: %v", j.kind.unitName(j.tag), err)
	}
}

// syncOneKindLocked reconciles one jobs map against its desired tag->id
// set, starting and stopping transient units as needed.
func (r *Runner) syncOneKindLocked(ctx context.Context, kind sideKind, want map[string]string, have map[string]*sideJob) {
	toStart, toStop := diffSideJobs(want, have)
	for _, tag := range toStop {
		r.stopSideJob(ctx, have[tag])
		delete(have, tag)
	}
	for _, tag := range toStart {
		j, err := r.startSideJob(ctx, kind, tag, want[tag])
		if err != nil {
			r.logf("runner: start %s %q: %v", kind.unitName(tag), want[tag], err)
			continue
		}
		have[tag] = j
	}
}

// syncSideJobsLocked brings running sysloads/sideloads in line with the
// command file. When the sideloader is off (slice controllers
// administratively disabled), all sideloads are stopped regardless of
// what the command requests; sysloads are unaffected.
func (r *Runner) syncSideJobsLocked(ctx context.Context) {
	if r.deps.Bus == nil || r.opts.Passive == PassiveAll {
		return
	}
	r.syncOneKindLocked(ctx, kindSysload, r.cmd.Sysloads, r.sysloads)

	wantSide := r.cmd.Sideloads
	if !r.sideloaderOn {
		wantSide = nil
	}
	r.syncOneKindLocked(ctx, kindSideload, wantSide, r.sideloads)
}

// stopAllSideJobsLocked tears down every running side/sys-load, used on
// the Running -> Idle transition and at shutdown.
func (r *Runner) stopAllSideJobsLocked(ctx context.Context) {
	for tag, j := range r.sysloads {
		r.stopSideJob(ctx, j)
		delete(r.sysloads, tag)
	}
	for tag, j := range r.sideloads {
		r.stopSideJob(ctx, j)
		delete(r.sideloads, tag)
	}
}

// svcStatesLocked snapshots the coarse unit state of every running job of
// one kind for the report.
func svcStatesLocked(jobs map[string]*sideJob) map[string]intf.SvcState {
	out := make(map[string]intf.SvcState, len(jobs))
	for tag, j := range jobs {
		st := "unknown"
		if j.svc != nil {
			st = j.svc.Unit.State.String()
		}
		out[tag] = intf.SvcState{Name: j.kind.unitName(tag), State: st}
	}
	return out
}

// sideloaderEnabledLocked reports whether the slice controllers the
// sideloader depends on are all currently enforced for this instance:
// any disable_seq at or above the instance sequence turns it off.
func (r *Runner) sideloaderEnabledLocked() bool {
	ws, ok := r.slices.Slices[intf.SliceWorkload]
	if !ok {
		return false
	}
	seqs := ws.DisableSeqs
	return seqs.CPU < r.instanceSeq && seqs.Mem < r.instanceSeq && seqs.IO < r.instanceSeq
}
