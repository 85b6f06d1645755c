package ebpf

import (
	"context"
	"fmt"
	"log"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
)

// ProgramSpec describes a native eBPF program to load.
type ProgramSpec struct {
	Name       string
	Category   string
	ObjectFile string // path to compiled .o
	MapNames   []string
	AttachTo   string // kprobe function name
	Section    string // section name in .o executable (e.g. kprobe/tcp_retransmit_skb)
}

// LoadedProgram represents a running BPF program.
type LoadedProgram struct {
	Spec       *ProgramSpec
	Collection *ebpf.Collection
	Link       link.Link
}

// Close cleans up resources.
func (p *LoadedProgram) Close() error {
	if p.Link != nil {
		p.Link.Close()
	}
	if p.Collection != nil {
		p.Collection.Close()
	}
	return nil
}

// Loader handles loading and unloading native eBPF programs.
type Loader struct {
	btfInfo *BTFInfo
	verbose bool
}

// NewLoader creates a new eBPF program loader.
func NewLoader(verbose bool) *Loader {
	return &Loader{
		btfInfo: DetectBTF(),
		verbose: verbose,
	}
}

// CanLoad returns whether the system supports native eBPF loading.
func (l *Loader) CanLoad() bool {
	return l.btfInfo.Available && l.btfInfo.CORESupport
}

// LoadError represents a BPF program load failure.
type LoadError struct {
	Program string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("BPF program %q: %v", e.Program, e.Err)
}

// TryLoad attempts to load a BPF program.
func (l *Loader) TryLoad(ctx context.Context, spec *ProgramSpec) (*LoadedProgram, error) {
	if !l.CanLoad() {
		return nil, &LoadError{
			Program: spec.Name,
			Err:     fmt.Errorf("BTF/CO-RE not available (kernel %s)", l.btfInfo.KernelVersion),
		}
	}

	// The object path is taken as-is; a relative path (as in
	// NativePrograms) resolves against the process's working directory.
	path := spec.ObjectFile

	collSpec, err := ebpf.LoadCollectionSpec(path)
	if err != nil {
		return nil, &LoadError{Program: spec.Name, Err: fmt.Errorf("load spec: %w", err)}
	}

	coll, err := ebpf.NewCollection(collSpec)
	if err != nil {
		return nil, &LoadError{Program: spec.Name, Err: fmt.Errorf("load collection: %w", err)}
	}

	prog := coll.Programs[spec.Section]
	if prog == nil {
		for _, p := range coll.Programs {
			prog = p
			break
		}
	}

	if prog == nil {
		coll.Close()
		return nil, &LoadError{Program: spec.Name, Err: fmt.Errorf("program not found in collection")}
	}

	kp, err := link.Kprobe(spec.AttachTo, prog, nil)
	if err != nil {
		coll.Close()
		return nil, &LoadError{Program: spec.Name, Err: fmt.Errorf("attach kprobe %s: %w", spec.AttachTo, err)}
	}

	if l.verbose {
		log.Printf("[ebpf] loaded %s (kprobe: %s)", spec.Name, spec.AttachTo)
	}

	return &LoadedProgram{
		Spec:       spec,
		Collection: coll,
		Link:       kp,
	}, nil
}

// NativePrograms defines the CO-RE objects a Loader would prefer over
// shelling out to the BCC sampler scripts, if they were compiled and
// shipped alongside the agent binary.
var NativePrograms = []ProgramSpec{
	{
		Name:       "biolatpcts",
		Category:   "io",
		ObjectFile: "internal/ebpf/bpf/biolatpcts.o",
		MapNames:   []string{"lat_hist"},
		AttachTo:   "blk_account_io_done",
		Section:    "kprobe/blk_account_io_done",
	},
	{
		Name:       "iocost_monitor",
		Category:   "io",
		ObjectFile: "internal/ebpf/bpf/iocost_monitor.o",
		MapNames:   []string{"vrate_samples"},
		AttachTo:   "iocg_kick_delay",
		Section:    "kprobe/iocg_kick_delay",
	},
}
