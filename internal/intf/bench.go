package intf

import "strconv"

// HashdKnobs is the calibrated outcome for the primary workload driver.
type HashdKnobs struct {
	MemSize      uint64  `json:"mem_size"`
	MemFrac      float64 `json:"mem_frac"`
	RpsMax       uint32  `json:"rps_max"`
	HashSize     uint64  `json:"hash_size"`
	ChunkPages   uint32  `json:"chunk_pages"`
	LogPadding   uint64  `json:"log_padding"`
	FakeCPULoad  bool    `json:"fake_cpu_load"`
}

// IOCostModelParams is the linear cost model iocost uses to map IO
// size/type to virtual time: cost = base + seqio*size + randio.
type IOCostModelParams struct {
	Model      string  `json:"model"`
	RBPS       uint64  `json:"rbps"`
	RSeqIOPS   uint64  `json:"rseqiops"`
	RRandIOPS  uint64  `json:"rrandiops"`
	WBPS       uint64  `json:"wbps"`
	WSeqIOPS   uint64  `json:"wseqiops"`
	WRandIOPS  uint64  `json:"wrandiops"`
}

// IOCostQoSParams are the per-percentile-target QoS knobs that, combined
// with a model, determine the vrate the kernel's iocost controller runs at.
type IOCostQoSParams struct {
	Enable bool    `json:"enable"`
	RPct   float64 `json:"rpct"`
	RLat   uint64  `json:"rlat"` // usec
	WPct   float64 `json:"wpct"`
	WLat   uint64  `json:"wlat"` // usec
	Min    float64 `json:"min"`  // vrate pct
	Max    float64 `json:"max"`  // vrate pct
}

// IOCostKnobs bundles the model and QoS iocost configures the kernel with.
type IOCostKnobs struct {
	Model IOCostModelParams `json:"model"`
	QoS   IOCostQoSParams   `json:"qos"`
}

// BenchKnobs is the device-keyed outcome of calibration. Device identity
// fields, once written, must match the currently detected device or the
// file fails to load (see LoadBenchKnobs).
type BenchKnobs struct {
	Hashd    HashdKnobs  `json:"hashd"`
	HashdSeq uint64      `json:"hashd_seq"`

	IOCost    IOCostKnobs `json:"iocost"`
	IOCostSeq uint64      `json:"iocost_seq"`

	IOCostDevModel string `json:"iocost_dev_model"`
	IOCostDevFWRev string `json:"iocost_dev_fwrev"`
	IOCostDevSize  uint64 `json:"iocost_dev_size"`
}

// DeviceIdentityMismatch is returned by LoadBenchKnobs when the on-disk
// device identity doesn't match the currently probed device.
type DeviceIdentityMismatch struct {
	Field    string
	OnDisk   string
	Detected string
}

func (e *DeviceIdentityMismatch) Error() string {
	return "bench knobs device " + e.Field + " mismatch: on-disk=" + e.OnDisk + " detected=" + e.Detected
}

// CheckDeviceIdentity enforces the BenchKnobs invariant: once a device
// identity field is non-empty/non-zero it must match the detected device.
func (b *BenchKnobs) CheckDeviceIdentity(model, fwrev string, size uint64) error {
	if b.IOCostDevModel != "" && b.IOCostDevModel != model {
		return &DeviceIdentityMismatch{"model", b.IOCostDevModel, model}
	}
	if b.IOCostDevFWRev != "" && b.IOCostDevFWRev != fwrev {
		return &DeviceIdentityMismatch{"fwrev", b.IOCostDevFWRev, fwrev}
	}
	if b.IOCostDevSize != 0 && b.IOCostDevSize != size {
		return &DeviceIdentityMismatch{"size", strconv.FormatUint(b.IOCostDevSize, 10), strconv.FormatUint(size, 10)}
	}
	return nil
}
