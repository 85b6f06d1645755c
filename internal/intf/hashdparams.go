package intf

// PIDParams is the gain set for one PID controller.
type PIDParams struct {
	Kp float64 `json:"kp"`
	Ki float64 `json:"ki"`
	Kd float64 `json:"kd"`
}

// HashdParams are the dispatch thread's live-reloadable runtime
// parameters. They are read from params.json and re-applied to the
// running dispatch thread whenever the file's mtime changes.
type HashdParams struct {
	P99LatTarget float64 `json:"p99_lat_target"`
	RpsTarget    uint32  `json:"rps_target"`
	RpsMax       uint32  `json:"rps_max"`

	MaxConcurrency uint32 `json:"max_concurrency"`

	FileSizeMean         uint64  `json:"file_size_mean"`
	FileSizeStdevRatio    float64 `json:"file_size_stdev_ratio"`
	FileAddrStdevRatio    float64 `json:"file_addr_stdev_ratio"`
	FileAddrRpsBaseFrac   float64 `json:"file_addr_rps_base_frac"`
	FileTotalFrac         float64 `json:"file_total_frac"`
	FileFrac              float64 `json:"file_frac"`

	AnonTotalRatio        float64 `json:"anon_total_ratio"`
	AnonSizeRatio         float64 `json:"anon_size_ratio"`
	AnonSizeStdevRatio    float64 `json:"anon_size_stdev_ratio"`
	AnonAddrStdevRatio    float64 `json:"anon_addr_stdev_ratio"`
	AnonAddrRpsBaseFrac   float64 `json:"anon_addr_rps_base_frac"`

	SleepMean       float64 `json:"sleep_mean"`
	SleepStdevRatio float64 `json:"sleep_stdev_ratio"`

	CPURatio float64 `json:"cpu_ratio"`
	LogBPS   uint64  `json:"log_bps"`

	ControlPeriod float64 `json:"control_period"`

	LatPID PIDParams `json:"lat_pid"`
	RPSPID PIDParams `json:"rps_pid"`
}

// DefaultHashdParams mirrors the original's defaults closely enough to
// drive a believable workload out of the box; calibration overwrites the
// size/rps-derived fields.
func DefaultHashdParams() *HashdParams {
	return &HashdParams{
		P99LatTarget: 0.1,
		RpsTarget:    0,
		RpsMax:       1000,

		MaxConcurrency: 4096,

		FileSizeMean:       128 << 10,
		FileSizeStdevRatio: 1.0,
		FileAddrStdevRatio: 1.0,
		FileAddrRpsBaseFrac: 0.1,
		FileTotalFrac:       0.1,
		FileFrac:            1.0,

		AnonTotalRatio:      0.2,
		AnonSizeRatio:       1.0,
		AnonSizeStdevRatio:  1.0,
		AnonAddrStdevRatio:  1.0,
		AnonAddrRpsBaseFrac: 0.1,

		SleepMean:       0.01,
		SleepStdevRatio: 1.0,

		CPURatio: 1.0,
		LogBPS:   1 << 20,

		ControlPeriod: 1.0,

		LatPID: PIDParams{Kp: 0.2, Ki: 0.05, Kd: 0.1},
		RPSPID: PIDParams{Kp: 0.2, Ki: 0.05, Kd: 0.1},
	}
}
