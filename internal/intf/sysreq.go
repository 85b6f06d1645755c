package intf

// SysReqID names one precondition the agent checks before it will run
// unsupervised (cgroup2-only mount, iocost-capable block device, absence
// of swap-less configuration, and so on).
type SysReqID string

const (
	SysReqCgroup2Mounted SysReqID = "cgroup2_mounted"
	SysReqCgroup2AllCtrl SysReqID = "cgroup2_all_controllers"
	SysReqNoOtherCtrl    SysReqID = "no_other_cgroup_controller"
	SysReqIOCostDevice   SysReqID = "iocost_capable_device"
	SysReqSwapEnabled    SysReqID = "swap_enabled"
	SysReqBTF            SysReqID = "btf_available"
)

// SysReqState is the sampled result of checking one SysReqID.
type SysReqState struct {
	ID    SysReqID `json:"id"`
	Met   bool     `json:"met"`
	Detail string  `json:"detail,omitempty"`
}

// SysReqReport is the full sysreqs.json contents: the satisfied/missing
// state of every precondition, plus whether the overall set is
// "satisfiable" (every mandatory req met; BTF/swap are advisory only).
type SysReqReport struct {
	States    []SysReqState `json:"states"`
	Satisfied bool          `json:"satisfied"`
}

var mandatorySysReqs = map[SysReqID]bool{
	SysReqCgroup2Mounted: true,
	SysReqCgroup2AllCtrl: true,
	SysReqNoOtherCtrl:    true,
	SysReqIOCostDevice:   true,
}

// NewSysReqReport derives Satisfied from the mandatory subset of states;
// advisory reqs (swap, BTF) may be unmet without blocking startup.
func NewSysReqReport(states []SysReqState) *SysReqReport {
	ok := true
	for _, s := range states {
		if mandatorySysReqs[s.ID] && !s.Met {
			ok = false
		}
	}
	return &SysReqReport{States: states, Satisfied: ok}
}
