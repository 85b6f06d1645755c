package intf

// HashdCmd is the per-workload-instance override set the runner applies
// on top of BenchKnobs.Hashd while in the Running state.
type HashdCmd struct {
	Active          bool    `json:"active"`
	RpsTargetRatio  float64 `json:"rps_target_ratio"`
	MemRatio        float64 `json:"mem_ratio"`
	FileRatio       float64 `json:"file_ratio"`
	FileMaxRatio    float64 `json:"file_max_ratio"`
	WriteRatio      float64 `json:"write_ratio"`
	Weight          float64 `json:"weight"`
	LatTarget       float64 `json:"lat_target"`
	LatTargetPct    float64 `json:"lat_target_pct"`
	LogBPS          uint64  `json:"log_bps"`
}

// SideloaderCmd carries the sideloader's own high-level knobs (the exact
// shape of which is sideloader-defined; we only need to pass it through).
type SideloaderCmd struct {
	Args map[string]string `json:"args,omitempty"`
}

// NrHashdInstances is the fixed number of concurrently driven hashd
// instances (A/B), each with its own hashd-A/hashd-B file subtree.
const NrHashdInstances = 2

// Cmd is the command file the runner reconciles against on every tick.
type Cmd struct {
	BenchHashdSeq  uint64 `json:"bench_hashd_seq"`
	BenchIOCostSeq uint64 `json:"bench_iocost_seq"`

	Hashd [NrHashdInstances]HashdCmd `json:"hashd"`

	Sysloads  map[string]string `json:"sysloads"`
	Sideloads map[string]string `json:"sideloads"`

	Sideloader SideloaderCmd `json:"sideloader"`

	CmdSeq uint64 `json:"cmd_seq"`
}

// CmdAck is written by the runner after fully processing a Cmd whose
// CmdSeq it has observed; callers poll until CmdAckSeq >= the CmdSeq they
// wrote.
type CmdAck struct {
	CmdAckSeq uint64 `json:"cmd_ack_seq"`
}

// DefaultCmd returns an all-idle command: no bench requested, no hashd
// instances active, no side/sys-loads.
func DefaultCmd() *Cmd {
	return &Cmd{
		Sysloads:  map[string]string{},
		Sideloads: map[string]string{},
	}
}
