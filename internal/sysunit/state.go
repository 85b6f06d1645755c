// Package sysunit is a thin facade over systemd's D-Bus control plane:
// unit state derivation, resctl property reads/writes, transient unit
// creation, and waited state transitions.
package sysunit

import "fmt"

// Kind is the coarse unit-state bucket derived from
// (LoadState, ActiveState, SubState).
type Kind string

const (
	NotFound    Kind = "NotFound"
	Running     Kind = "Running"
	Exited      Kind = "Exited"
	OtherActive Kind = "OtherActive"
	Inactive    Kind = "Inactive"
	Failed      Kind = "Failed"
	Other       Kind = "Other"
)

// State is one unit's derived state: a Kind plus the SubState/ActiveState
// detail that produced it, for logging and the Other/OtherActive cases.
type State struct {
	Kind   Kind
	Detail string
}

func (s State) String() string {
	if s.Detail == "" {
		return string(s.Kind)
	}
	return fmt.Sprintf("%s(%s)", s.Kind, s.Detail)
}

// DeriveState maps the three systemd unit properties every unit exposes
// into one State, the same three-property decision table the original
// agent used.
func DeriveState(loadState, activeState, subState string) State {
	switch loadState {
	case "loaded":
	case "not-found":
		return State{Kind: NotFound}
	default:
		return State{Kind: Other, Detail: loadState}
	}

	if subState == "" {
		subState = "no-sub-state"
	}

	switch activeState {
	case "active":
		switch subState {
		case "running":
			return State{Kind: Running}
		case "exited":
			return State{Kind: Exited}
		default:
			return State{Kind: OtherActive, Detail: subState}
		}
	case "inactive":
		return State{Kind: Inactive, Detail: subState}
	case "failed":
		return State{Kind: Failed, Detail: subState}
	case "":
		return State{Kind: Other, Detail: "no-active-state"}
	default:
		return State{Kind: Other, Detail: activeState + ":" + subState}
	}
}

// Settled reports whether a state is one a wait loop should treat as a
// terminal outcome of a start/stop transition (as opposed to a
// still-transitioning OtherActive/Other).
func (s State) Settled() bool {
	switch s.Kind {
	case OtherActive, Other:
		return false
	default:
		return true
	}
}
