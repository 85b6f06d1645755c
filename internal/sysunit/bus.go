package sysunit

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"
	godbus "github.com/godbus/dbus/v5"
)

// DefaultTimeout is the default operation timeout for unit transitions,
// matching the systemd control plane's own default.
const DefaultTimeout = 15 * time.Second

// PollInterval is how often a wait loop re-checks unit state.
const PollInterval = 100 * time.Millisecond

// Property is one systemd unit property name/value pair, decoupled from
// the go-systemd dbus package's own Property type so callers outside
// this package don't need to import godbus directly.
type Property struct {
	Name  string
	Value any
}

func (p Property) toDbus() dbus.Property {
	return dbus.Property{Name: p.Name, Value: godbus.MakeVariant(p.Value)}
}

func toDbusProps(props []Property) []dbus.Property {
	out := make([]dbus.Property, len(props))
	for i, p := range props {
		out[i] = p.toDbus()
	}
	return out
}

// Bus wraps one system or session D-Bus connection to systemd.
type Bus struct {
	conn    *dbus.Conn
	user    bool
	timeout time.Duration
}

// NewSystemBus connects to the system bus (PID 1's systemd).
func NewSystemBus(ctx context.Context) (*Bus, error) {
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("sysunit: connect to system bus: %w", err)
	}
	return &Bus{conn: conn, user: false, timeout: DefaultTimeout}, nil
}

// NewUserBus connects to the caller's session bus (systemd --user).
func NewUserBus(ctx context.Context) (*Bus, error) {
	conn, err := dbus.NewUserConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("sysunit: connect to session bus: %w", err)
	}
	return &Bus{conn: conn, user: true, timeout: DefaultTimeout}, nil
}

// SetTimeout overrides the default 15s operation timeout.
func (b *Bus) SetTimeout(d time.Duration) { b.timeout = d }

// Close releases the underlying D-Bus connection.
func (b *Bus) Close() { b.conn.Close() }

// DaemonReload issues systemd's daemon-reload.
func (b *Bus) DaemonReload(ctx context.Context) error {
	return b.conn.ReloadContext(ctx)
}

// DescendantUnit is one unit discovered under a slice's cgroup path,
// with just enough state to decide whether to push resctl properties:
// its ControlGroup (for the path-prefix match) and whether it's active.
type DescendantUnit struct {
	Name         string
	ControlGroup string
	Active       bool
}

// ListDescendantUnits enumerates every .service/.scope/.slice unit known
// to systemd along with its ControlGroup and active state, for the
// slice-configurator's propagation pass. Units that vanish while
// being queried are simply omitted rather than erroring the whole call.
func (b *Bus) ListDescendantUnits(ctx context.Context) ([]DescendantUnit, error) {
	units, err := b.conn.ListUnitsContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("sysunit: list units: %w", err)
	}
	out := make([]DescendantUnit, 0, len(units))
	for _, u := range units {
		if !hasPropagatableSuffix(u.Name) {
			continue
		}
		props, err := b.conn.GetUnitPropertiesContext(ctx, u.Name)
		if err != nil {
			continue
		}
		cg, _ := props["ControlGroup"].(string)
		out = append(out, DescendantUnit{
			Name:         u.Name,
			ControlGroup: cg,
			Active:       u.ActiveState == "active",
		})
	}
	return out, nil
}

func hasPropagatableSuffix(name string) bool {
	for _, suf := range []string{".service", ".scope", ".slice"} {
		if len(name) > len(suf) && name[len(name)-len(suf):] == suf {
			return true
		}
	}
	return false
}
