package intf

// SideDef is one side/sys-load job definition: the command to run inside
// a transient unit and the environment it needs. Definitions are keyed by
// id in side-defs.json; Cmd.Sysloads/Sideloads reference them by that id.
type SideDef struct {
	Args []string `json:"args"`
	Envs []string `json:"envs,omitempty"`

	// Frozen side jobs are started with the sideloader expected to
	// freeze/thaw them based on system pressure; sysloads ignore this.
	Frozen bool `json:"frozen,omitempty"`
}

// SideDefs is the full side-defs.json contents.
type SideDefs struct {
	Defs map[string]SideDef `json:"defs"`
}

// DefaultSideDefs ships a small set of stock antagonists, enough to
// demonstrate contention: a shell CPU spinner, a memory hog run through
// the agent binary's bandit-mem-hog subcommand, and a shell read-IO hog.
func DefaultSideDefs() *SideDefs {
	return &SideDefs{Defs: map[string]SideDef{
		"build-linux": {
			Args: []string{"/bin/sh", "-c", "while true; do sha1sum /dev/zero & sleep 1; kill %1; done"},
		},
		"mem-hog": {
			Args: []string{"/usr/local/bin/agent", "bandit-mem-hog", "--wbps=10M", "--rbps=10M", "--readers=2"},
			Envs: []string{"IO_WBPS=100M", "IO_RBPS=100M"},
		},
		"read-bomb": {
			Args:   []string{"/bin/sh", "-c", "while true; do cat /usr/lib/* > /dev/null 2>&1; done"},
			Frozen: true,
		},
	}}
}
