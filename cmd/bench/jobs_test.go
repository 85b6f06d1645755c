package main

import (
	"testing"

	"github.com/resctlgo/cgdemo/internal/intf"
)

func TestResultFilePath(t *testing.T) {
	flags := &benchFlags{dir: "/tmp/td"}
	got := resultFilePath(flags, "iocost-qos")
	want := "/tmp/td/iocost-qos-result.json"
	if got != want {
		t.Fatalf("resultFilePath() = %q, want %q", got, want)
	}
}

func TestIOCostModelFromSpecDefaults(t *testing.T) {
	spec := &intf.JobSpec{Type: "iocost-qos", Props: map[string]string{}}
	m := iocostModelFromSpec(spec)
	if m.RBPS == 0 || m.WBPS == 0 {
		t.Fatalf("iocostModelFromSpec() defaults = %+v, want non-zero rbps/wbps", m)
	}
}

func TestIOCostModelFromSpecOverrides(t *testing.T) {
	spec := &intf.JobSpec{Type: "iocost-qos", Props: map[string]string{
		"rbps": "104857600",
		"wbps": "52428800",
	}}
	m := iocostModelFromSpec(spec)
	if m.RBPS != 104857600 || m.WBPS != 52428800 {
		t.Fatalf("iocostModelFromSpec() = %+v, want rbps=104857600 wbps=52428800", m)
	}
}
