package runner

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/resctlgo/cgdemo/internal/intf"
	"github.com/resctlgo/cgdemo/internal/sysunit"
)

// oomdUnitName is the userspace OOM daemon's unit; after regenerating its
// config the runner restarts it so the new rulesets take effect.
const oomdUnitName = "oomd.service"

// GenerateOomdRuntime expands the high-level per-slice toggles into the
// ruleset list the OOM daemon loads: a memory-pressure kill rule and a
// swap-protection kill rule per slice, plus a senpai poking rule for
// slices that opt into it.
func GenerateOomdRuntime(rules *intf.OOMDRuleset) *intf.OomdRuntimeConfig {
	cfg := &intf.OomdRuntimeConfig{}
	for _, sr := range rules.Slices {
		slice := string(sr.Slice)

		if sr.MemPressure.Threshold > 0 {
			cfg.Rulesets = append(cfg.Rulesets, intf.OomdRuntimeRuleset{
				Name: slice + " memory pressure protection",
				Detectors: []intf.OomdDetector{
					{Name: "pressure_above", Args: map[string]string{
						"cgroup":   slice,
						"resource": "memory",
						"threshold": strconv.FormatFloat(sr.MemPressure.Threshold*100, 'f', 0, 64),
						"duration":  strconv.FormatFloat(sr.MemPressure.Duration, 'f', 0, 64),
					}},
					{Name: "memory_reclaim", Args: map[string]string{
						"cgroup":   slice,
						"duration": "10",
					}},
				},
				Actions: []intf.OomdAction{
					{Name: "kill_by_memory_size_or_growth", Args: map[string]string{
						"cgroup":  slice + "/*",
						"recursive": "true",
					}},
				},
			})
		}

		if sr.SwapFreePct > 0 {
			cfg.Rulesets = append(cfg.Rulesets, intf.OomdRuntimeRuleset{
				Name: slice + " swap protection",
				Detectors: []intf.OomdDetector{
					{Name: "swap_free_below", Args: map[string]string{
						"threshold_pct": strconv.FormatFloat(sr.SwapFreePct, 'f', 0, 64),
					}},
				},
				Actions: []intf.OomdAction{
					{Name: "kill_by_swap_usage", Args: map[string]string{
						"cgroup":  slice + "/*",
						"recursive": "true",
					}},
				},
			})
		}

		if sr.Senpai.Enable {
			cfg.Rulesets = append(cfg.Rulesets, intf.OomdRuntimeRuleset{
				Name: slice + " senpai",
				Detectors: []intf.OomdDetector{
					{Name: "continue"},
				},
				Actions: []intf.OomdAction{
					{Name: "senpai_poking", Args: map[string]string{
						"cgroup":          slice,
						"limit_min_bytes": strconv.FormatUint(sr.Senpai.MinBytes, 10),
						"interval":        strconv.FormatFloat(sr.Senpai.IntervalSec, 'f', 0, 64),
						"max_probe":       strconv.FormatFloat(sr.Senpai.MaxProbePct/100, 'f', 4, 64),
						"coeff_probe":     strconv.FormatFloat(sr.Senpai.CoeffUp, 'f', 4, 64),
						"coeff_backoff":   strconv.FormatFloat(sr.Senpai.CoeffDown, 'f', 4, 64),
					}},
				},
			})
		}
	}
	return cfg
}

// regenerateOOMDLocked rewrites the generated config and bounces the OOM
// daemon so it reloads. The daemon being absent is tolerated: the rest
// of the agent works without it, just with no userspace kill policy.
func (r *Runner) regenerateOOMDLocked(ctx context.Context) {
	cfg := GenerateOomdRuntime(r.oomd)
	if err := intf.SaveJSON(r.paths.OOMDRuntime, cfg); err != nil {
		r.logf("oomd: write runtime config: %v", err)
		return
	}
	r.oomdActive = len(cfg.Rulesets) > 0

	if r.deps.Bus == nil || r.opts.Passive == PassiveAll {
		return
	}
	u, err := sysunit.NewUnit(ctx, r.deps.Bus, oomdUnitName)
	if err != nil {
		r.oomdActive = false
		return
	}
	if u.State.Kind == sysunit.NotFound {
		r.oomdActive = false
		return
	}
	if err := u.Restart(ctx); err != nil {
		r.logf("oomd: restart: %v", err)
	}
}

// loadOomdOrDefault reads oomd.json, substituting the stock policy when
// the file is missing or malformed.
func (r *Runner) loadOomdOrDefault() *intf.OOMDRuleset {
	o := &intf.OOMDRuleset{}
	if err := intf.LoadJSON(r.paths.OOMDRuleset, o); err != nil {
		return intf.DefaultOOMDRuleset()
	}
	if len(o.Slices) == 0 {
		return intf.DefaultOOMDRuleset()
	}
	return o
}

// persistDefaultOomd writes the stock policy out when no oomd.json exists
// yet, so operators have a concrete file to edit.
func (r *Runner) persistDefaultOomd() error {
	if _, err := os.Stat(r.paths.OOMDRuleset); err == nil {
		return nil
	}
	if err := intf.SaveJSON(r.paths.OOMDRuleset, r.oomd); err != nil {
		return fmt.Errorf("runner: persist default oomd config: %w", err)
	}
	return nil
}
