package sysunit

import (
	"context"
	"fmt"
	"strings"
)

// execStart is the (path, argv, ignore-failure) triple systemd's
// ExecStart property expects, one entry per command to run.
type execStart struct {
	Path          string
	Argv          []string
	IgnoreFailure bool
}

// TransientService is a one-shot or long-running unit created with
// StartTransientUnit rather than a unit file on disk — the mechanism
// the agent uses to launch sideloads and sysloads under a named
// slice with resctl properties attached at creation time.
type TransientService struct {
	Unit       *Unit
	Args       []string
	Envs       []string
	ExtraProps map[string]Property
	Keep       bool
}

// NewTransientService builds (but does not start) a transient service
// named name, which must end in ".service". RemainAfterExit is set by
// default so a one-shot command's exit status stays inspectable.
func NewTransientService(ctx context.Context, bus *Bus, name string, args, envs []string) (*TransientService, error) {
	if !strings.HasSuffix(name, ".service") {
		return nil, fmt.Errorf("sysunit: invalid service name %q, must end in .service", name)
	}
	u := &Unit{Bus: bus, Name: name, State: State{Kind: NotFound}}

	ts := &TransientService{
		Unit:       u,
		Args:       args,
		Envs:       envs,
		ExtraProps: map[string]Property{},
	}
	ts.AddProp("RemainAfterExit", true)
	return ts, nil
}

// AddProp sets an extra unit property applied at (re)start time.
func (ts *TransientService) AddProp(key string, value any) *TransientService {
	ts.ExtraProps[key] = Property{Name: key, Value: value}
	return ts
}

// DelProp removes a previously added extra property.
func (ts *TransientService) DelProp(key string) {
	delete(ts.ExtraProps, key)
}

// SetSlice assigns the unit to slice (e.g. "workload.slice").
func (ts *TransientService) SetSlice(slice string) *TransientService {
	return ts.AddProp("Slice", slice)
}

// SetWorkingDir sets the unit's working directory.
func (ts *TransientService) SetWorkingDir(dir string) *TransientService {
	return ts.AddProp("WorkingDirectory", dir)
}

// SetRestartAlways makes the unit auto-restart on exit.
func (ts *TransientService) SetRestartAlways() *TransientService {
	return ts.AddProp("Restart", "always")
}

// SetQuiet suppresses the Unit's own start/stop logging (the caller logs
// instead).
func (ts *TransientService) SetQuiet() *TransientService {
	ts.Unit.Quiet = true
	return ts
}

func (ts *TransientService) properties() []Property {
	props := ts.Unit.ResCtl.Properties()
	props = append(props,
		Property{Name: "Description", Value: strings.Join(append([]string{ts.Unit.Name}, ts.Args...), " ")},
		Property{Name: "Environment", Value: ts.Envs},
		Property{Name: "ExecStart", Value: []execStart{{Path: ts.Args[0], Argv: ts.Args, IgnoreFailure: false}}},
	)
	for _, p := range ts.ExtraProps {
		props = append(props, p)
	}
	return props
}

func (ts *TransientService) tryStart(ctx context.Context) (bool, error) {
	if _, err := ts.Unit.Bus.conn.StartTransientUnitContext(ctx, ts.Unit.Name, "fail", toDbusProps(ts.properties()), nil); err != nil {
		return false, fmt.Errorf("sysunit: start transient unit %s: %w", ts.Unit.Name, err)
	}
	ts.Unit.waitTransition(ctx, func(s State) bool {
		return s.Kind == Running || s.Kind == Exited || s.Kind == Failed
	}, ts.Unit.Bus.timeout)
	return ts.Unit.State.Kind == Running || ts.Unit.State.Kind == Exited, nil
}

// Start stops and resets any stale unit of the same name, then creates
// the transient unit fresh, preserving the ResCtl knobs set on ts.Unit
// across the reset.
func (ts *TransientService) Start(ctx context.Context) error {
	resctl := ts.Unit.ResCtl
	if err := ts.Unit.StopAndReset(ctx); err != nil {
		return err
	}
	ts.Unit.ResCtl = resctl

	ok, err := ts.tryStart(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("sysunit: invalid service state %s for %s", ts.Unit.State, ts.Unit.Name)
	}
	return nil
}

// Stop tears down the transient unit unless Keep is set, retrying a
// handful of times the way the original's Drop handler did — Go has no
// destructor, so callers must defer this explicitly.
func (ts *TransientService) Stop(ctx context.Context) error {
	if ts.Keep {
		return nil
	}
	var lastErr error
	for tries := 5; tries > 0; tries-- {
		if err := ts.Unit.StopAndReset(ctx); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("sysunit: failed to stop %s after retries: %w", ts.Unit.Name, lastErr)
}
