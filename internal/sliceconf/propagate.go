package sliceconf

import (
	"context"
	"fmt"
	"strings"

	"github.com/resctlgo/cgdemo/internal/intf"
	"github.com/resctlgo/cgdemo/internal/sysunit"
)

// NeedsPropagation reports whether a slice's resctl properties must be
// re-pushed to its already-running descendant units this reconciliation
// pass — the slice configurator's caller sets this whenever the slice's
// knobs changed or a propagation was otherwise requested.
type NeedsPropagation map[intf.SliceName]bool

// Propagate walks every unit systemd currently knows about and, for each
// slice flagged in needs, pushes that slice's resctl properties to any
// active descendant whose ControlGroup falls under the slice's
// discovered cgroup path. Units that disappear mid-walk are tolerated
// (ListDescendantUnits already drops them).
func Propagate(ctx context.Context, bus *sysunit.Bus, knobs *intf.SliceKnobs, needs NeedsPropagation) error {
	var toPropagate []intf.SliceName
	for name, want := range needs {
		if want {
			toPropagate = append(toPropagate, name)
		}
	}
	if len(toPropagate) == 0 {
		return nil
	}

	units, err := bus.ListDescendantUnits(ctx)
	if err != nil {
		return err
	}

	var firstErr error
	for _, name := range toPropagate {
		s, ok := knobs.Slices[name]
		if !ok {
			continue
		}
		prefix := "/" + string(name) + "/"
		resctl := sliceResCtl(s)
		for _, u := range units {
			if !u.Active {
				continue
			}
			if !strings.HasPrefix(u.ControlGroup+"/", prefix) && u.ControlGroup != "/"+string(name) {
				continue
			}
			unit := &sysunit.Unit{Bus: bus, Name: u.Name, ResCtl: resctl}
			if err := unit.Apply(ctx); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("sliceconf: propagate to %s: %w", u.Name, err)
			}
		}
	}
	return firstErr
}

func sliceResCtl(s *intf.Slice) sysunit.ResCtl {
	cpu := uint64(s.CPUWeight)
	io := uint64(s.IOWeight)
	r := sysunit.ResCtl{CPUWeight: &cpu, IOWeight: &io, MemHigh: &s.MemHigh, MemMax: &s.MemMax}
	if s.MemMin != nil {
		r.MemMin = s.MemMin
	}
	if s.MemLow != nil {
		r.MemLow = s.MemLow
	}
	return r
}
