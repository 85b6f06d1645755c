// Command bench is the benchmark orchestrator: it drives
// component G (self-calibration) to produce a storage bench result,
// component J (the iocost QoS sweep) over a vrate grid, and component K
// (the tune solver) to derive device-specific QoS solutions from a
// sweep's output.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/resctlgo/cgdemo/internal/calibrate"
	"github.com/resctlgo/cgdemo/internal/dispatch"
	"github.com/resctlgo/cgdemo/internal/intf"
	"github.com/resctlgo/cgdemo/internal/output"
	"github.com/resctlgo/cgdemo/internal/progstate"
	"github.com/resctlgo/cgdemo/internal/qossweep"
	"github.com/resctlgo/cgdemo/internal/reportring"
	"github.com/resctlgo/cgdemo/internal/study"
)

var version = "0.1.0"

// benchFlags is the bench-driver CLI surface.
type benchFlags struct {
	dir            string
	dev            string
	linux          string
	repRetention   int64
	iocostFromSys  bool
	keepReports    bool
	clearReports   bool
	test           bool
	verbose        int
}

func main() {
	flags := &benchFlags{}

	root := &cobra.Command{
		Use:     "bench",
		Short:   "Sweep iocost parameters and fit device-specific QoS solutions",
		Version: version,
	}
	root.PersistentFlags().StringVar(&flags.dir, "dir", "td", "TOPDIR for nested bench runs and result files")
	root.PersistentFlags().StringVar(&flags.dev, "dev", "", "block device under test")
	root.PersistentFlags().StringVar(&flags.linux, "linux", "", "prepared linux source tree (accepted; no job reads it)")
	root.PersistentFlags().Int64Var(&flags.repRetention, "rep-retention", reportring.DefaultRetentionSec, "report retention, seconds")
	root.PersistentFlags().BoolVar(&flags.iocostFromSys, "iocost-from-sys", false, "accepted; no job reads it, the iocost model comes from the job spec")
	root.PersistentFlags().BoolVar(&flags.keepReports, "keep-reports", false, "accepted; no effect, per-run report archives are always left in place")
	root.PersistentFlags().BoolVar(&flags.clearReports, "clear-reports", false, "accepted; no effect, existing report archives are not cleared")
	root.PersistentFlags().BoolVar(&flags.test, "test", false, "use reduced durations/grid for a fast smoke run")
	root.PersistentFlags().CountVarP(&flags.verbose, "verbose", "v", "increase log verbosity (repeatable)")

	root.AddCommand(runCmd(flags), formatCmd(), summaryCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(verbose int) *zap.Logger {
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
		return zap.NewNop()
	}
	return zl
}

func runCmd(flags *benchFlags) *cobra.Command {
	var outFile string
	cmd := &cobra.Command{
		Use:   "run SPEC...",
		Short: "Run one or more job specs: BENCH_TYPE[:k=v,...]",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			zl := newLogger(flags.verbose)
			defer zl.Sync()

			specs, err := intf.ParseJobSpecs(args)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(flags.dir, 0o755); err != nil {
				return fmt.Errorf("bench: create dir: %w", err)
			}

			var lastResult any
			for _, spec := range specs {
				zl.Info("running job", zap.String("type", spec.Type))
				var err error
				lastResult, err = runJob(flags, spec, zl)
				if err != nil {
					return fmt.Errorf("bench: job %s: %w", spec.Type, err)
				}
			}
			if outFile != "" {
				return output.WriteJSON(lastResult, outFile)
			}
			return output.WriteJSON(lastResult, "-")
		},
	}
	cmd.Flags().StringVarP(&outFile, "file", "f", "", "write the final job's result to FILE instead of stdout")
	return cmd
}

func formatCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "format",
		Short: "Render a persisted result file as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			var v map[string]any
			if err := intf.LoadJSON(file, &v); err != nil {
				return fmt.Errorf("bench: load %s: %w", file, err)
			}
			return output.WriteJSON(v, "-")
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "result file to format")
	cmd.MarkFlagRequired("file")
	return cmd
}

func summaryCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print a one-line-per-metric human-readable summary of a sweep result",
		RunE: func(cmd *cobra.Command, args []string) error {
			var sweep qossweep.SweepResult
			if err := intf.LoadJSON(file, &sweep); err != nil {
				return fmt.Errorf("bench: load %s: %w", file, err)
			}
			p := output.NewProgress(true)
			p.Log("run %s: %d points", sweep.RunID, len(sweep.Results))
			for _, r := range sweep.Results {
				switch {
				case r.Skipped:
					p.Log("vrate=%.1f skipped (below floor)", r.VRate)
				case r.Failed:
					p.Log("vrate=%.1f failed (retries=%d)", r.VRate, r.Retries)
				default:
					p.Log("vrate=%.1f ok (%d metrics)", r.VRate, len(r.Series))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "sweep result file to summarize")
	cmd.MarkFlagRequired("file")
	return cmd
}

func runJob(flags *benchFlags, spec *intf.JobSpec, zl *zap.Logger) (any, error) {
	switch spec.Type {
	case "storage":
		return runStorageJob(flags, spec)
	case "iocost-qos":
		return runIOCostQoSJob(flags, spec, zl)
	case "iocost-tune":
		return runTuneJob(flags, spec)
	case "protection":
		return runProtectionJob(flags, spec)
	default:
		return nil, fmt.Errorf("unknown job type %q", spec.Type)
	}
}

// storageBenchReport is the "storage" job's summarized result.
type storageBenchReport struct {
	HashdKnobs       *intf.HashdKnobs             `json:"hashd_knobs"`
	Warnings         []string                     `json:"warnings"`
	MemOffloadFactor float64                      `json:"mem_offload_factor"`
	ReadLatPcts      map[string]map[string]float64 `json:"read_lat_pcts"`
	WriteLatPcts     map[string]map[string]float64 `json:"write_lat_pcts"`
	NrReports        int                          `json:"nr_reports"`
}

// runStorageJob drives the calibration phases against a freshly
// constructed dispatcher, then runs the study pipeline over the reports
// collected during the run to populate the latency percentile tables
// and the memory-offloading estimate.
func runStorageJob(flags *benchFlags, spec *intf.JobSpec) (any, error) {
	loops, _ := spec.Uint("loops", 1)
	memAvail, _ := spec.Uint("mem-avail", 1<<30)
	_ = loops

	state := progstate.New()
	params := intf.DefaultHashdParams()
	sizes := make([]int64, 32)
	for i := range sizes {
		sizes[i] = 64 << 10
	}
	files := &dispatch.TestfileSet{NrFiles: len(sizes), Sizes: sizes}
	disp := dispatch.New(params, files, state)
	go disp.Run()
	defer state.Exit()

	sampler := newDispatchSampler(disp)

	ringDir, err := os.MkdirTemp(flags.dir, "storage-bench-*")
	if err != nil {
		return nil, fmt.Errorf("temp report dir: %w", err)
	}
	ring, err := reportring.New(ringDir, 1, reportring.DefaultRetentionSec)
	if err != nil {
		return nil, err
	}

	stopCollect, collectDone := startReportCollector(ring, disp)

	knobs, warnings := calibrate.RunHashdBench(sampler, false)
	knobs.MemSize = memAvail

	close(stopCollect)
	<-collectDone
	now := time.Now().Unix()
	meanPcts := []string{"50", "90", "99", "100"}
	readStudy := study.NewIoLatencyPcts(study.IoRead, meanPcts, 0.001)
	writeStudy := study.NewIoLatencyPcts(study.IoWrite, meanPcts, 0.001)
	runner := study.NewRunner(readStudy, writeStudy)
	nrReports, _, err := runner.Run(ring, now-int64(reportring.DefaultRetentionSec), now+1)
	if err != nil {
		nrReports = 0
	}

	mof := 0.0
	if knobs.MemFrac > 0 {
		mof = 1.0 / knobs.MemFrac
	}

	return &storageBenchReport{
		HashdKnobs:       knobs,
		Warnings:         warnings,
		MemOffloadFactor: mof,
		ReadLatPcts:      readStudy.Result(meanPcts),
		WriteLatPcts:     writeStudy.Result(meanPcts),
		NrReports:        nrReports,
	}, nil
}

// dispatchSampler adapts a live *dispatch.Dispatcher to calibrate.Sampler,
// the same shape runner/hashd.go's hashdSampler uses, kept separate here
// since the bench driver constructs its own nested dispatch instance
// rather than going through the agent runner's state machine.
type dispatchSampler struct {
	disp *dispatch.Dispatcher
	cur  *intf.HashdParams
}

func newDispatchSampler(disp *dispatch.Dispatcher) *dispatchSampler {
	return &dispatchSampler{disp: disp, cur: intf.DefaultHashdParams()}
}

func (s *dispatchSampler) push() { s.disp.SendCommand(dispatch.Command{Params: s.cur}) }

func (s *dispatchSampler) SetFileSizeMean(v uint64)   { s.cur.FileSizeMean = v; s.push() }
func (s *dispatchSampler) SetMaxConcurrency(n uint32) { s.cur.MaxConcurrency = n; s.push() }
func (s *dispatchSampler) SetPIDFree(bool)            {}
func (s *dispatchSampler) SetRpsTarget(rps uint32)    { s.cur.RpsTarget = rps; s.push() }
func (s *dispatchSampler) SetLatTarget(sec float64)   { s.cur.P99LatTarget = sec; s.push() }
func (s *dispatchSampler) SetFileTotalFrac(f float64) { s.cur.FileTotalFrac = f; s.push() }

func (s *dispatchSampler) Sample() (rps, p99Lat float64, ok bool) {
	sample, open := <-s.disp.Samples()
	if !open {
		return 0, 0, false
	}
	return sample.RPS, sample.LatPct["99"], true
}
