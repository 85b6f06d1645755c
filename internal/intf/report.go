package intf

import "time"

// RunnerState is the agent runner's state machine state.
type RunnerState string

const (
	StateIdle        RunnerState = "Idle"
	StateRunning     RunnerState = "Running"
	StateBenchHashd  RunnerState = "BenchHashd"
	StateBenchIOCost RunnerState = "BenchIOCost"
)

// ResctlEnabled reports whether each controller is currently enforced.
type ResctlEnabled struct {
	CPU bool `json:"cpu"`
	Mem bool `json:"mem"`
	IO  bool `json:"io"`
}

// HashdPhase tracks a bench-hashd run's sub-phase for progress reporting.
type HashdPhase string

const (
	PhaseRunning        HashdPhase = "Running"
	PhaseBenchCPU1      HashdPhase = "BenchCPU1"
	PhaseBenchRPS       HashdPhase = "BenchRPS"
	PhaseBenchMemBisect HashdPhase = "BenchMemBisect"
	PhaseBenchRefine    HashdPhase = "BenchRefine"
)

// HashdReport is one workload instance's live status.
type HashdReport struct {
	Svc         string     `json:"svc"`
	Phase       HashdPhase `json:"phase"`
	Load        float64    `json:"load"`
	RPS         float64    `json:"rps"`
	LatPct      map[string]float64 `json:"lat_pct"`
	Lat         float64    `json:"lat"`
	MemProbeFrac float64   `json:"mem_probe_frac"`
	MemProbeAt  time.Time  `json:"mem_probe_at"`
}

// SvcState is a running/side/sys-load service's coarse status.
type SvcState struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// IOLatReport carries the IO-latency-sampler percentile tables for the
// most recent second, per IO type.
type IOLatReport struct {
	Read    map[string]float64 `json:"read"`
	Write   map[string]float64 `json:"write"`
	Discard map[string]float64 `json:"discard"`
	Flush   map[string]float64 `json:"flush"`
}

// IOCostReport is the iocost controller's last observed vrate/busy-level.
type IOCostReport struct {
	VRate float64 `json:"vrate"`
	Busy  string  `json:"busy"`
}

// UsageReport is one slice's resource usage for the sampling interval.
type UsageReport struct {
	CPUUsagePct float64 `json:"cpu_usage_pct"`
	MemBytes    uint64  `json:"mem_bytes"`
	SwapBytes   uint64  `json:"swap_bytes"`
	IORBPS      float64 `json:"io_rbps"`
	IOWBPS      float64 `json:"io_wbps"`

	CPUStallPct float64 `json:"cpu_stall_pct"`
	MemStallPct float64 `json:"mem_stall_pct"`
	IOStallPct  float64 `json:"io_stall_pct"`
}

// Report is the periodic snapshot the reporter writes.
type Report struct {
	Timestamp time.Time   `json:"timestamp"`
	Seq       uint64      `json:"seq"`
	State     RunnerState `json:"state"`

	Resctl ResctlEnabled `json:"resctl"`

	OOMD       bool `json:"oomd"`
	Sideloader bool `json:"sideloader"`

	BenchHashd  HashdReport `json:"bench_hashd"`
	BenchIOCost bool        `json:"bench_iocost"`

	Hashd [NrHashdInstances]HashdReport `json:"hashd"`

	Sysloads  map[string]SvcState `json:"sysloads"`
	Sideloads map[string]SvcState `json:"sideloads"`

	Usages map[SliceName]UsageReport `json:"usages"`

	IOLat   IOLatReport  `json:"iolat"`
	IOCost  IOCostReport `json:"iocost"`
}

// AgentView is the runner-owned snapshot the reporter folds into each
// report: only the fields the reporter needs, copied out under the
// runner's lock so the reporter never reaches back into runner state.
type AgentView struct {
	State      RunnerState
	Resctl     ResctlEnabled
	OOMD       bool
	Sideloader bool

	BenchHashdSeq  uint64
	BenchIOCostSeq uint64

	Sysloads  map[string]SvcState
	Sideloads map[string]SvcState
}

// NewReport builds an empty report for the given instance sequence.
func NewReport(seq uint64, state RunnerState) *Report {
	return &Report{
		Timestamp: time.Now(),
		Seq:       seq,
		State:     state,
		Sysloads:  map[string]SvcState{},
		Sideloads: map[string]SvcState{},
		Usages:    map[SliceName]UsageReport{},
	}
}
