package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/resctlgo/cgdemo/internal/intf"
	"github.com/resctlgo/cgdemo/internal/progstate"
	"github.com/resctlgo/cgdemo/internal/qossweep"
	"github.com/resctlgo/cgdemo/internal/sliceconf"
	"github.com/resctlgo/cgdemo/internal/tunesolver"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	dir := t.TempDir()
	paths := intf.NewPaths(dir)
	if err := paths.WriteIndex(); err != nil {
		t.Fatalf("WriteIndex() error = %v", err)
	}
	deps := Deps{
		Slices: sliceconf.NewManager(filepath.Join(dir, "systemd"), filepath.Join(dir, "cgroup")),
		State:  progstate.New(),
	}
	return New(paths, deps, Options{})
}

func TestNewPersistsDefaultOomdConfig(t *testing.T) {
	r := newTestRunner(t)
	o := &intf.OOMDRuleset{}
	if err := intf.LoadJSON(r.paths.OOMDRuleset, o); err != nil {
		t.Fatalf("oomd.json not written: %v", err)
	}
	if len(o.Slices) == 0 {
		t.Error("persisted oomd config has no slice rulesets")
	}
}

func TestGenerateOomdRuntime(t *testing.T) {
	cfg := GenerateOomdRuntime(intf.DefaultOOMDRuleset())

	// workload: pressure + swap + senpai; sideload: pressure + swap.
	if len(cfg.Rulesets) != 5 {
		t.Fatalf("got %d rulesets, want 5", len(cfg.Rulesets))
	}

	var senpai *intf.OomdRuntimeRuleset
	for i := range cfg.Rulesets {
		for _, a := range cfg.Rulesets[i].Actions {
			if a.Name == "senpai_poking" {
				senpai = &cfg.Rulesets[i]
			}
		}
	}
	if senpai == nil {
		t.Fatal("no senpai ruleset generated for workload.slice")
	}
	args := senpai.Actions[0].Args
	if args["cgroup"] != string(intf.SliceWorkload) {
		t.Errorf("senpai cgroup = %q, want %q", args["cgroup"], intf.SliceWorkload)
	}
	if args["limit_min_bytes"] != "134217728" {
		t.Errorf("senpai limit_min_bytes = %q, want 134217728", args["limit_min_bytes"])
	}
}

func TestGenerateOomdRuntimeSkipsDisabledRules(t *testing.T) {
	rules := &intf.OOMDRuleset{Slices: []intf.OOMDSliceRuleset{
		{Slice: intf.SliceSideload}, // everything zeroed/off
	}}
	cfg := GenerateOomdRuntime(rules)
	if len(cfg.Rulesets) != 0 {
		t.Errorf("got %d rulesets for an all-disabled slice, want 0", len(cfg.Rulesets))
	}
}

func TestDiffSideJobs(t *testing.T) {
	have := map[string]*sideJob{
		"keep":    {tag: "keep", id: "def-1"},
		"stale":   {tag: "stale", id: "def-2"},
		"changed": {tag: "changed", id: "old-def"},
	}
	want := map[string]string{
		"keep":    "def-1",
		"changed": "new-def",
		"fresh":   "def-3",
	}

	toStart, toStop := diffSideJobs(want, have)

	if len(toStart) != 2 || toStart[0] != "changed" || toStart[1] != "fresh" {
		t.Errorf("toStart = %v, want [changed fresh]", toStart)
	}
	if len(toStop) != 2 || toStop[0] != "changed" || toStop[1] != "stale" {
		t.Errorf("toStop = %v, want [changed stale]", toStop)
	}
}

func TestParsePassiveMode(t *testing.T) {
	if m, err := ParsePassiveMode(""); err != nil || m != PassiveNone {
		t.Errorf("ParsePassiveMode(\"\") = %v, %v", m, err)
	}
	if m, err := ParsePassiveMode("all"); err != nil || m != PassiveAll {
		t.Errorf("ParsePassiveMode(all) = %v, %v", m, err)
	}
	if m, err := ParsePassiveMode("keep-crit-mem-prot"); err != nil || m != PassiveKeepCritMemProt {
		t.Errorf("ParsePassiveMode(keep-crit-mem-prot) = %v, %v", m, err)
	}
	if _, err := ParsePassiveMode("bogus"); err == nil {
		t.Error("ParsePassiveMode(bogus) should fail")
	}
}

func TestPassiveSliceKnobsKeepsOnlyHostCritical(t *testing.T) {
	reduced := passiveSliceKnobs(intf.DefaultSliceKnobs())
	if len(reduced.Slices) != 1 {
		t.Fatalf("got %d slices, want 1", len(reduced.Slices))
	}
	if _, ok := reduced.Slices[intf.SliceHostCritical]; !ok {
		t.Error("host-critical slice missing from passive knob set")
	}
}

func TestHashdParamsFromCmd(t *testing.T) {
	base := intf.DefaultHashdParams()
	knobs := &intf.HashdKnobs{HashSize: 256 << 10, RpsMax: 2000, MemFrac: 0.5}
	cmd := intf.HashdCmd{RpsTargetRatio: 0.5, FileRatio: 0.8, LatTarget: 0.05}

	p := hashdParamsFromCmd(base, knobs, cmd)
	if p.FileSizeMean != 256<<10 {
		t.Errorf("FileSizeMean = %d, want %d", p.FileSizeMean, 256<<10)
	}
	if p.RpsTarget != 1000 {
		t.Errorf("RpsTarget = %d, want 1000", p.RpsTarget)
	}
	if p.FileTotalFrac != 0.4 {
		t.Errorf("FileTotalFrac = %v, want 0.4", p.FileTotalFrac)
	}
	if p.P99LatTarget != 0.05 {
		t.Errorf("P99LatTarget = %v, want 0.05", p.P99LatTarget)
	}
	if base.RpsTarget == p.RpsTarget {
		t.Error("base params mutated by override layering")
	}
}

func TestCurrentScheduler(t *testing.T) {
	if got := currentScheduler("none [mq-deadline] kyber bfq"); got != "mq-deadline" {
		t.Errorf("currentScheduler = %q, want mq-deadline", got)
	}
	if got := currentScheduler("none"); got != "none" {
		t.Errorf("currentScheduler bare = %q, want none", got)
	}
}

func TestSetIOSchedulerSkipsWhenAlreadyActive(t *testing.T) {
	oldRoot := sysBlockRoot
	sysBlockRoot = t.TempDir()
	defer func() { sysBlockRoot = oldRoot }()

	qdir := filepath.Join(sysBlockRoot, "sda", "queue")
	if err := os.MkdirAll(qdir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(qdir, "scheduler")
	if err := os.WriteFile(path, []byte("none [mq-deadline] kyber"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := setIOScheduler("sda", "mq-deadline"); err != nil {
		t.Fatalf("setIOScheduler() error = %v", err)
	}
	b, _ := os.ReadFile(path)
	if string(b) != "none [mq-deadline] kyber" {
		t.Errorf("scheduler file rewritten despite already matching: %q", b)
	}

	if err := setIOScheduler("sda", "none"); err != nil {
		t.Fatalf("setIOScheduler() error = %v", err)
	}
	b, _ = os.ReadFile(path)
	if string(b) != "none" {
		t.Errorf("scheduler = %q after switch, want none", b)
	}
}

func TestTickAcksProcessedCommands(t *testing.T) {
	r := newTestRunner(t)
	if err := r.SetHashdActive(0, true); err != nil {
		t.Fatalf("SetHashdActive() error = %v", err)
	}

	r.tick(context.Background())

	ack := &intf.CmdAck{}
	if err := intf.LoadJSON(r.paths.CmdAck, ack); err != nil {
		t.Fatalf("cmd-ack.json not written: %v", err)
	}
	if ack.CmdAckSeq != r.Cmd().CmdSeq {
		t.Errorf("CmdAckSeq = %d, want %d", ack.CmdAckSeq, r.Cmd().CmdSeq)
	}
}

func TestViewSnapshotsRunnerState(t *testing.T) {
	r := newTestRunner(t)
	v := r.View()
	if v.State != intf.StateIdle {
		t.Errorf("State = %s, want Idle", v.State)
	}
	if !v.Resctl.Mem || !v.Resctl.IO {
		t.Error("mem/io resctl should be reported enabled outside passive mode")
	}
	if v.Sysloads == nil || v.Sideloads == nil {
		t.Error("View must always carry non-nil service maps")
	}
}

func TestIdleEntersRunningOnceCalibrated(t *testing.T) {
	r := newTestRunner(t)
	r.mu.Lock()
	r.bench.HashdSeq = 1
	r.stepStateLocked(context.Background())
	state := r.state
	r.mu.Unlock()
	if state != intf.StateRunning {
		t.Errorf("state = %s after calibrated idle step, want Running", state)
	}
}

func TestSolveIOCostPinsInflectionVRate(t *testing.T) {
	model := defaultIOCostModel()
	res := &qossweep.SweepResult{Grid: qossweep.Grid{VRateMin: 50, VRateMax: 100}}
	// MOF rises until ~80 then flattens: the inflection the solver should pin.
	for _, p := range []struct{ v, mof float64 }{
		{50, 0.5}, {60, 0.7}, {70, 0.9}, {80, 1.1}, {90, 1.1}, {100, 1.1},
	} {
		res.Results = append(res.Results, qossweep.RunResult{
			VRate:  p.v,
			Series: map[string][]float64{string(tunesolver.SelMOF): {p.mof}},
		})
	}

	knobs, err := solveIOCost(res, model)
	if err != nil {
		t.Fatalf("solveIOCost() error = %v", err)
	}
	if !knobs.QoS.Enable || knobs.QoS.Min != 100 || knobs.QoS.Max != 100 {
		t.Errorf("QoS = %+v, want enabled with min=max=100", knobs.QoS)
	}
	if knobs.Model.RBPS == 0 || knobs.Model.RBPS > model.RBPS {
		t.Errorf("scaled RBPS = %d, want in (0, %d]", knobs.Model.RBPS, model.RBPS)
	}
}

func TestSolveIOCostRejectsEmptySweep(t *testing.T) {
	res := &qossweep.SweepResult{Grid: qossweep.Grid{VRateMin: 50, VRateMax: 100}}
	res.Results = append(res.Results, qossweep.RunResult{VRate: 50, Skipped: true})
	if _, err := solveIOCost(res, defaultIOCostModel()); err == nil {
		t.Error("expected an error for a sweep with no usable points")
	}
}

func TestRunningReturnsToIdleWhenBenchRequested(t *testing.T) {
	r := newTestRunner(t)
	r.mu.Lock()
	r.bench.HashdSeq = 1
	r.state = intf.StateRunning
	r.cmd.BenchHashdSeq = 2
	r.stepStateLocked(context.Background())
	state := r.state
	r.mu.Unlock()
	if state != intf.StateIdle {
		t.Errorf("state = %s, want Idle when a newer bench is requested", state)
	}
}
