// Command agent is the resource-control demo's always-on control plane:
// it reconciles on-disk command/bench/slice state against live systemd
// units and cgroup2 knobs, drives the reporter, and hosts the
// `bandit-mem-hog` standalone subcommand.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/resctlgo/cgdemo/internal/bpfsample"
	"github.com/resctlgo/cgdemo/internal/dispatch"
	"github.com/resctlgo/cgdemo/internal/intf"
	"github.com/resctlgo/cgdemo/internal/mcpapi"
	"github.com/resctlgo/cgdemo/internal/memhog"
	"github.com/resctlgo/cgdemo/internal/progstate"
	"github.com/resctlgo/cgdemo/internal/reportring"
	"github.com/resctlgo/cgdemo/internal/reporter"
	"github.com/resctlgo/cgdemo/internal/runner"
	"github.com/resctlgo/cgdemo/internal/sliceconf"
	"github.com/resctlgo/cgdemo/internal/sysunit"
)

var version = "0.1.0"

// agentFlags is the agent CLI surface. Most of the behavioral flags are
// threaded through as runner.Options rather than acted on directly here.
type agentFlags struct {
	dir             string
	scratch         string
	dev             string
	repRetention    int64
	rep1MinRet      int64
	argsFile        string
	noIOLat         bool
	force           bool
	forceRunning    bool
	prepare         bool
	linuxTar        string
	benchFile       string
	reset           bool
	keepReports     bool
	bypass          bool
	passive         string
	verbose         int
	userBus         bool
	mcp             bool
}

func main() {
	flags := &agentFlags{}

	root := &cobra.Command{
		Use:     "agent",
		Short:   "Reconcile cgroup2 resource control against on-disk command/bench/slice state",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(flags)
		},
	}

	root.Flags().StringVar(&flags.dir, "dir", "td", "TOPDIR holding cmd.json/bench.json/report.d/...")
	root.Flags().StringVar(&flags.scratch, "scratch", "", "scratch directory for bench storage probes")
	root.Flags().StringVar(&flags.dev, "dev", "", "block device to operate iocost on")
	root.Flags().Int64Var(&flags.repRetention, "rep-retention", reportring.DefaultRetentionSec, "per-second report retention, seconds")
	root.Flags().Int64Var(&flags.rep1MinRet, "rep-1min-retention", reportring.Default1MinRetentionSec, "per-minute report retention, seconds")
	root.Flags().StringVar(&flags.argsFile, "args", "", "hashd args override file (accepted; not read)")
	root.Flags().BoolVar(&flags.noIOLat, "no-iolat", false, "disable the external IO-latency sampler child")
	root.Flags().BoolVar(&flags.force, "force", false, "proceed despite failed sysreq checks")
	root.Flags().BoolVar(&flags.forceRunning, "force-running", false, "start directly in Running state")
	root.Flags().BoolVar(&flags.prepare, "prepare", false, "prepare the topdir layout and exit without starting the loops")
	root.Flags().StringVar(&flags.linuxTar, "linux-tar", "", "path to a prepared linux source tarball (accepted; not read)")
	root.Flags().StringVar(&flags.benchFile, "bench-file", "", "override bench.json path")
	root.Flags().BoolVar(&flags.reset, "reset", false, "clear cmd/bench files on startup")
	root.Flags().BoolVar(&flags.keepReports, "keep-reports", false, "disable retention pruning of the report rings for the whole run")
	root.Flags().BoolVar(&flags.bypass, "bypass", false, "skip slice verify-and-fix pass")
	root.Flags().StringVar(&flags.passive, "passive", "", "passive mode: all|keep-crit-mem-prot")
	root.Flags().CountVarP(&flags.verbose, "verbose", "v", "increase log verbosity (repeatable)")
	root.Flags().BoolVar(&flags.userBus, "user-bus", false, "use the session D-Bus instead of the system bus")
	root.Flags().BoolVar(&flags.mcp, "mcp", false, "expose the MCP tool surface over stdio alongside the reconciliation/reporter loops")

	root.AddCommand(memHogCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(verbose int) (*zap.Logger, *log.Logger) {
	level := zapcore.WarnLevel
	switch {
	case verbose >= 2:
		level = zapcore.DebugLevel
	case verbose == 1:
		level = zapcore.InfoLevel
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	zl, err := cfg.Build()
	if err != nil {
		zl = zap.NewNop()
	}
	std, err := zap.NewStdLogAt(zl, level)
	if err != nil {
		std = log.New(os.Stderr, "", log.LstdFlags)
	}
	return zl, std
}

// checkSysReqs probes the preconditions the agent can verify cheaply and
// persists the result to sysreqs.json. The full set the original design
// names (filesystem type, swap sizing, kernel feature flags) is probed
// by external tooling; here only what the agent itself depends on
// operationally is checked for real.
func checkSysReqs(paths *intf.Paths, dev string) (*intf.SysReqReport, error) {
	var states []intf.SysReqState

	cg2, err := sliceconf.IsCgroup2Mounted("/sys/fs/cgroup")
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	states = append(states, intf.SysReqState{ID: intf.SysReqCgroup2Mounted, Met: cg2 && err == nil, Detail: detail})

	iocostMet := dev != ""
	iocostDetail := ""
	if !iocostMet {
		iocostDetail = "--dev not set"
	}
	states = append(states, intf.SysReqState{ID: intf.SysReqIOCostDevice, Met: iocostMet, Detail: iocostDetail})

	rep := intf.NewSysReqReport(states)
	if err := intf.SaveJSON(paths.SysReq, rep); err != nil {
		return rep, err
	}
	return rep, nil
}

func runAgent(flags *agentFlags) error {
	zl, stdLogger := newLogger(flags.verbose)
	defer zl.Sync()

	if err := os.MkdirAll(flags.dir, 0o755); err != nil {
		return fmt.Errorf("agent: create topdir: %w", err)
	}
	paths := intf.NewPaths(flags.dir)
	if flags.benchFile != "" {
		paths.BenchHashd = flags.benchFile
		paths.BenchIOCost = flags.benchFile
	}
	if err := paths.WriteIndex(); err != nil {
		return fmt.Errorf("agent: write index: %w", err)
	}

	if flags.reset {
		_ = os.Remove(paths.Cmd)
		_ = os.Remove(paths.BenchHashd)
	}

	sysreqs, err := checkSysReqs(paths, flags.dev)
	if err != nil {
		zl.Warn("sysreqs not persisted", zap.Error(err))
	}
	if sysreqs != nil && !sysreqs.Satisfied && !flags.force {
		return fmt.Errorf("agent: mandatory system requirements missing (see %s); re-run with --force to override", paths.SysReq)
	}

	passive, err := runner.ParsePassiveMode(flags.passive)
	if err != nil {
		return err
	}

	if flags.prepare {
		zl.Info("topdir prepared", zap.String("dir", flags.dir))
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	state := progstate.New()
	go func() {
		<-ctx.Done()
		state.Exit()
	}()

	var bus *sysunit.Bus
	if flags.userBus {
		bus, err = sysunit.NewUserBus(ctx)
	} else {
		bus, err = sysunit.NewSystemBus(ctx)
	}
	if err != nil {
		zl.Warn("systemd bus unavailable, slice/unit control disabled", zap.Error(err))
		bus = nil
	} else {
		defer bus.Close()
	}

	slices := sliceconf.NewManager("/etc/systemd/system", "/sys/fs/cgroup")

	rings, err := reportring.NewSet(flags.dir)
	if err != nil {
		return fmt.Errorf("agent: open report rings: %w", err)
	}
	if flags.repRetention > 0 {
		rings.Sec.SetRetention(flags.repRetention)
	}
	if flags.rep1MinRet > 0 {
		rings.Min.SetRetention(flags.rep1MinRet)
	}
	if flags.keepReports {
		rings.Sec.SetKeepAll(true)
		rings.Min.SetKeepAll(true)
	}

	deps := runner.Deps{
		Bus:    bus,
		Slices: slices,
		State:  state,
		Logger: stdLogger,
	}
	opts := runner.Options{
		Dev:          flags.dev,
		Scratch:      flags.scratch,
		Passive:      passive,
		Bypass:       flags.bypass,
		ForceRunning: flags.forceRunning,
	}
	sampler := reporter.NewSampler("/sys/fs/cgroup")
	var rep *reporter.Reporter
	deps.OnHashdStarted = func(idx int, samples <-chan dispatch.Sample) {
		if rep != nil {
			rep.AttachHashd(idx, samples)
		}
	}
	rn := runner.New(paths, deps, opts)
	rep = reporter.New(paths, sampler, rings, rn, state)

	done := make(chan struct{}, 5)
	nrLoops := 2
	if flags.dev != "" {
		if !flags.noIOLat {
			iolat := bpfsample.NewIOLatSampler(flags.dev)
			rep.IOLat = iolat.IOLat
			nrLoops++
			go func() {
				if err := iolat.Run(ctx); err != nil && ctx.Err() == nil {
					zl.Warn("iolat sampler exited", zap.Error(err))
				}
				done <- struct{}{}
			}()
		}
		iocost := bpfsample.NewIOCostMonitor(flags.dev)
		rep.IOCost = iocost.IOCost
		nrLoops++
		go func() {
			if err := iocost.Run(ctx); err != nil && ctx.Err() == nil {
				zl.Warn("iocost monitor exited", zap.Error(err))
			}
			done <- struct{}{}
		}()
	} else if !flags.noIOLat {
		zl.Warn("--dev not set, iolat/iocost samplers disabled")
	}

	mcpSrv := mcpapi.NewServer(version, paths, rn)
	if flags.mcp {
		nrLoops++
		go func() {
			if err := mcpSrv.Start(ctx); err != nil && ctx.Err() == nil {
				zl.Warn("mcp server exited", zap.Error(err))
			}
			done <- struct{}{}
		}()
	}

	zl.Info("agent starting", zap.String("dir", flags.dir), zap.String("dev", flags.dev))

	go func() { rn.Run(ctx); done <- struct{}{} }()
	go func() { rep.Run(); done <- struct{}{} }()

	for i := 0; i < nrLoops; i++ {
		<-done
	}
	zl.Info("agent exited")
	return nil
}

func memHogCmd() *cobra.Command {
	var (
		wbps            string
		rbps            string
		readers         int
		debt            string
		compressibility float64
		reportPath      string
	)

	cmd := &cobra.Command{
		Use:   "bandit-mem-hog",
		Short: "Standalone memory-hog helper: grows anonymous memory and re-reads it at a configured rate",
		RunE: func(cmd *cobra.Command, args []string) error {
			wb, err := parseBPS(wbps, "IO_WBPS")
			if err != nil {
				return fmt.Errorf("--wbps: %w", err)
			}
			rb, err := parseBPS(rbps, "IO_RBPS")
			if err != nil {
				return fmt.Errorf("--rbps: %w", err)
			}
			maxDebt, err := time.ParseDuration(debt)
			if err != nil {
				return fmt.Errorf("--debt: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			state := progstate.New()
			go func() {
				<-ctx.Done()
				state.Exit()
			}()

			d := memhog.New(memhog.Config{
				WriteBPS:        wb,
				ReadBPS:         rb,
				NrReaders:       readers,
				MaxDebt:         maxDebt,
				Compressibility: compressibility,
			}, state)

			if reportPath != "" {
				go reportMemHogStatus(state, d, reportPath)
			}

			d.Run()
			return nil
		},
	}

	cmd.Flags().StringVar(&wbps, "wbps", "0", "write rate, bytes/sec (suffix K/M/G, or N%% of IO_WBPS env)")
	cmd.Flags().StringVar(&rbps, "rbps", "0", "read rate, bytes/sec (suffix K/M/G, or N%% of IO_RBPS env)")
	cmd.Flags().IntVar(&readers, "readers", 1, "number of reader goroutines")
	cmd.Flags().StringVar(&debt, "debt", "1s", "max accrued debt before overflow is counted as loss")
	cmd.Flags().Float64Var(&compressibility, "compressibility", 0, "fraction of written pages that compress to zero")
	cmd.Flags().StringVar(&reportPath, "report", "", "periodically write status JSON to this path")

	return cmd
}

// parseBPS parses a bytes-per-second spec: a plain byte count (with
// optional K/M/G suffix) or "N%", which is interpreted against the named
// environment variable.
func parseBPS(spec, envVar string) (uint64, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return 0, nil
	}
	if strings.HasSuffix(spec, "%") {
		pctStr := strings.TrimSuffix(spec, "%")
		pct, err := strconv.ParseFloat(pctStr, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid percentage %q: %w", spec, err)
		}
		base, err := parseBPS(os.Getenv(envVar), envVar)
		if err != nil || base == 0 {
			return 0, fmt.Errorf("percentage bps spec requires numeric %s", envVar)
		}
		return uint64(float64(base) * pct / 100), nil
	}

	mult := uint64(1)
	switch {
	case strings.HasSuffix(spec, "G"):
		mult = 1 << 30
		spec = strings.TrimSuffix(spec, "G")
	case strings.HasSuffix(spec, "M"):
		mult = 1 << 20
		spec = strings.TrimSuffix(spec, "M")
	case strings.HasSuffix(spec, "K"):
		mult = 1 << 10
		spec = strings.TrimSuffix(spec, "K")
	}
	n, err := strconv.ParseFloat(spec, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid bps %q: %w", spec, err)
	}
	return uint64(n * float64(mult)), nil
}

func reportMemHogStatus(state *progstate.State, d *memhog.Driver, path string) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		if state.IsExiting() {
			return
		}
		<-ticker.C
		st := d.Status()
		_ = intf.SaveJSON(path, map[string]any{
			"wbytes": st.BytesWritten.Load(),
			"rbytes": st.BytesRead.Load(),
			"loss_ns": st.LossNanos.Load(),
			"cursor": st.Cursor.Load(),
		})
	}
}
