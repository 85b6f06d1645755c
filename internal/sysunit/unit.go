package sysunit

import (
	"context"
	"fmt"
	"time"
)

// Unit tracks one systemd unit's state and resctl knobs, refreshed from
// live D-Bus properties on demand.
type Unit struct {
	Bus          *Bus
	Name         string
	Quiet        bool
	State        State
	ResCtl       ResCtl
	ControlGroup string
}

// NewUnit fetches a unit's current properties and builds a Unit around
// them.
func NewUnit(ctx context.Context, bus *Bus, name string) (*Unit, error) {
	u := &Unit{Bus: bus, Name: name}
	if err := u.Refresh(ctx); err != nil {
		return nil, err
	}
	return u, nil
}

func asUint64(props map[string]interface{}, key string) uint64 {
	switch v := props[key].(type) {
	case uint64:
		return v
	case uint32:
		return uint64(v)
	default:
		return 0
	}
}

func asString(props map[string]interface{}, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

// Refresh re-reads the unit's properties from D-Bus and recomputes State
// and ResCtl. A unit that has disappeared reports State{Kind: NotFound}
// rather than an error.
func (u *Unit) Refresh(ctx context.Context) error {
	props, err := u.Bus.conn.GetUnitPropertiesContext(ctx, u.Name)
	if err != nil {
		u.State = State{Kind: NotFound}
		return fmt.Errorf("sysunit: get properties for %s: %w", u.Name, err)
	}

	u.State = DeriveState(asString(props, "LoadState"), asString(props, "ActiveState"), asString(props, "SubState"))
	u.ControlGroup = asString(props, "ControlGroup")
	u.ResCtl = FromProps(
		asUint64(props, "CPUWeight"),
		asUint64(props, "IOWeight"),
		asUint64(props, "MemoryMin"),
		asUint64(props, "MemoryLow"),
		asUint64(props, "MemoryHigh"),
		asUint64(props, "MemoryMax"),
	)
	return nil
}

// Apply writes u.ResCtl to the live unit via SetUnitProperties, then
// refreshes to confirm.
func (u *Unit) Apply(ctx context.Context) error {
	if err := u.Bus.conn.SetUnitPropertiesContext(ctx, u.Name, true, toDbusProps(u.ResCtl.Properties())...); err != nil {
		return fmt.Errorf("sysunit: set properties for %s: %w", u.Name, err)
	}
	return u.Refresh(ctx)
}

// waitTransition polls Refresh every PollInterval until settled reports
// true for the current state, or timeout elapses.
func (u *Unit) waitTransition(ctx context.Context, settled func(State) bool, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for {
		if err := u.Refresh(ctx); err == nil && u.State.Settled() && settled(u.State) {
			return
		}
		if time.Now().After(deadline) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(PollInterval):
		}
	}
}

// Stop stops the unit and waits for it to leave Running, returning true
// if it ends up NotFound or Failed (systemd's definition of "fully
// stopped" for a transient unit).
func (u *Unit) Stop(ctx context.Context) (bool, error) {
	if err := u.Refresh(ctx); err != nil {
		return false, err
	}
	if u.State.Kind == NotFound || u.State.Kind == Failed {
		return true, nil
	}

	if _, err := u.Bus.conn.StopUnitContext(ctx, u.Name, "fail", nil); err != nil {
		return false, fmt.Errorf("sysunit: stop %s: %w", u.Name, err)
	}
	u.waitTransition(ctx, func(s State) bool { return s.Kind != Running }, u.Bus.timeout)
	return u.State.Kind == NotFound || u.State.Kind == Failed, nil
}

// StopAndReset stops the unit and, if it ends up Failed, resets it so a
// subsequent start isn't blocked by the old failure.
func (u *Unit) StopAndReset(ctx context.Context) error {
	if _, err := u.Stop(ctx); err != nil {
		return err
	}
	if u.State.Kind == Failed {
		if err := u.Bus.conn.ResetFailedUnitContext(ctx, u.Name); err != nil {
			return fmt.Errorf("sysunit: reset failed unit %s: %w", u.Name, err)
		}
		u.waitTransition(ctx, func(s State) bool { return s.Kind == NotFound }, u.Bus.timeout)
	}
	if u.State.Kind != NotFound {
		return fmt.Errorf("sysunit: invalid post-reset state %s for %s", u.State, u.Name)
	}
	return nil
}

// TryStart starts the unit and waits for it to reach a settled state,
// returning true if that state is Running or Exited.
func (u *Unit) TryStart(ctx context.Context) (bool, error) {
	if _, err := u.Bus.conn.StartUnitContext(ctx, u.Name, "fail", nil); err != nil {
		return false, fmt.Errorf("sysunit: start %s: %w", u.Name, err)
	}
	u.waitTransition(ctx, func(s State) bool {
		return s.Kind == Running || s.Kind == Exited || s.Kind == Failed
	}, u.Bus.timeout)
	return u.State.Kind == Running || u.State.Kind == Exited, nil
}

// Restart restarts the unit without waiting for a settled state.
func (u *Unit) Restart(ctx context.Context) error {
	if _, err := u.Bus.conn.RestartUnitContext(ctx, u.Name, "fail", nil); err != nil {
		return fmt.Errorf("sysunit: restart %s: %w", u.Name, err)
	}
	return nil
}
