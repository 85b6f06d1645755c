package runner

import "fmt"

// PassiveMode controls how much of the system the runner is allowed to
// touch: everything (the default), nothing at all, or nothing except the
// memory protection already configured on host-critical slices.
type PassiveMode int

const (
	PassiveNone PassiveMode = iota
	PassiveAll
	PassiveKeepCritMemProt
)

// ParsePassiveMode parses the --passive flag value.
func ParsePassiveMode(s string) (PassiveMode, error) {
	switch s {
	case "":
		return PassiveNone, nil
	case "all":
		return PassiveAll, nil
	case "keep-crit-mem-prot":
		return PassiveKeepCritMemProt, nil
	default:
		return PassiveNone, fmt.Errorf("runner: invalid passive mode %q (want all or keep-crit-mem-prot)", s)
	}
}

// Options carries the agent CLI knobs the runner acts on directly.
type Options struct {
	// Dev is the block device iocost and the IO scheduler are managed on;
	// empty disables both.
	Dev string
	// Scratch records the --scratch flag value; nothing in the runner
	// reads it.
	Scratch string

	Passive PassiveMode
	// Bypass skips the slice verify-and-fix pass while still rendering
	// drop-ins and reconciling units.
	Bypass bool
	// ForceRunning enters the Running state immediately even before any
	// calibration has produced bench knobs.
	ForceRunning bool
}
