package intf

import "testing"

func TestNewSysReqReportSatisfiedWhenMandatoryMet(t *testing.T) {
	r := NewSysReqReport([]SysReqState{
		{ID: SysReqCgroup2Mounted, Met: true},
		{ID: SysReqCgroup2AllCtrl, Met: true},
		{ID: SysReqNoOtherCtrl, Met: true},
		{ID: SysReqIOCostDevice, Met: true},
		{ID: SysReqBTF, Met: false, Detail: "no BTF on this kernel"},
	})
	if !r.Satisfied {
		t.Error("Satisfied = false, want true (BTF is advisory)")
	}
}

func TestNewSysReqReportUnsatisfiedOnMandatoryMiss(t *testing.T) {
	r := NewSysReqReport([]SysReqState{
		{ID: SysReqCgroup2Mounted, Met: true},
		{ID: SysReqIOCostDevice, Met: false, Detail: "no iocost-capable block device"},
	})
	if r.Satisfied {
		t.Error("Satisfied = true, want false (iocost device is mandatory)")
	}
}
