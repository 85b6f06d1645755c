package calibrate

import (
	"github.com/resctlgo/cgdemo/internal/intf"
)

// RotationalFactor multiplies min/max convergence durations for rotational
// storage, which settles far more slowly than flash.
const RotationalFactor = 3.0

// RunHashdBench drives all four calibration phases against sampler in
// order and returns the resulting HashdKnobs.
func RunHashdBench(s Sampler, rotational bool) (*intf.HashdKnobs, []string) {
	cfg := DefaultConvergeConfig()
	if rotational {
		cfg.WindowSec *= RotationalFactor
		cfg.MaxDurationSec *= RotationalFactor
	}
	budget := DefaultBudget()

	var warnings []string

	fileSizeMean, w1 := Phase1(s, cfg, budget)
	warnings = append(warnings, w1...)

	rpsMax, w2 := Phase2(s, cfg)
	warnings = append(warnings, w2...)

	bisected, w3 := Phase3(s, cfg, rpsMax)
	warnings = append(warnings, w3...)

	fileTotalFrac, w4 := Phase4(s, cfg, rpsMax, bisected)
	warnings = append(warnings, w4...)

	return &intf.HashdKnobs{
		MemSize:     0, // filled in by the caller from the probed device/mem size
		MemFrac:     fileTotalFrac,
		RpsMax:      rpsMax,
		HashSize:    fileSizeMean,
		ChunkPages:  16,
		LogPadding:  512,
		FakeCPULoad: false,
	}, warnings
}
