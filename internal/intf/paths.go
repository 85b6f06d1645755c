package intf

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// HashdInstancePaths is one workload instance's file subtree: the args
// the runner launched it with, its live-reloadable params, and its own
// report file, all under hashd-A/ or hashd-B/.
type HashdInstancePaths struct {
	Dir    string
	Args   string
	Params string
	Report string
}

// Paths is the TOPDIR layout. index.json, written at startup, records the
// absolute path of every other file here so external consumers never need
// to re-derive the layout.
type Paths struct {
	Base string

	Index       string
	Cmd         string
	CmdAck      string
	Report      string
	Report1Min  string
	ReportDir   string
	Report1MinDir string
	SliceKnobs       string
	BenchHashd       string
	BenchIOCost      string
	BenchIOCostResult string
	HashdParams      string
	SideDefs    string
	SysReq      string
	OOMDRuleset string
	OOMDRuntime string

	Hashd [NrHashdInstances]HashdInstancePaths
}

// hashdInstanceNames maps slot index to its on-disk directory name.
var hashdInstanceNames = [NrHashdInstances]string{"hashd-A", "hashd-B"}

// NewPaths derives the full path table from a TOPDIR.
func NewPaths(topdir string) *Paths {
	p := &Paths{
		Base:          topdir,
		Index:         filepath.Join(topdir, "index.json"),
		Cmd:           filepath.Join(topdir, "cmd.json"),
		CmdAck:        filepath.Join(topdir, "cmd-ack.json"),
		Report:        filepath.Join(topdir, "report.json"),
		Report1Min:    filepath.Join(topdir, "report-1min.json"),
		ReportDir:     filepath.Join(topdir, "report.d"),
		Report1MinDir: filepath.Join(topdir, "report-1min.d"),
		SliceKnobs:        filepath.Join(topdir, "slices.json"),
		BenchHashd:        filepath.Join(topdir, "bench.json"),
		BenchIOCost:       filepath.Join(topdir, "bench.json"),
		BenchIOCostResult: filepath.Join(topdir, "bench-iocost-result.json"),
		HashdParams:   filepath.Join(topdir, "params.json"),
		SideDefs:      filepath.Join(topdir, "side-defs.json"),
		SysReq:        filepath.Join(topdir, "sysreqs.json"),
		OOMDRuleset:   filepath.Join(topdir, "oomd.json"),
		OOMDRuntime:   filepath.Join(topdir, "oomd-runtime.json"),
	}
	for i, name := range hashdInstanceNames {
		dir := filepath.Join(topdir, name)
		p.Hashd[i] = HashdInstancePaths{
			Dir:    dir,
			Args:   filepath.Join(dir, "args.json"),
			Params: filepath.Join(dir, "params.json"),
			Report: filepath.Join(dir, "report.json"),
		}
	}
	return p
}

// IndexMap flattens the path table into the name -> absolute-path map
// index.json holds.
func (p *Paths) IndexMap() map[string]string {
	abs := func(path string) string {
		a, err := filepath.Abs(path)
		if err != nil {
			return path
		}
		return a
	}
	m := map[string]string{
		"cmd":             abs(p.Cmd),
		"cmd-ack":         abs(p.CmdAck),
		"report":          abs(p.Report),
		"report-1min":     abs(p.Report1Min),
		"report-dir":      abs(p.ReportDir),
		"report-1min-dir": abs(p.Report1MinDir),
		"slices":          abs(p.SliceKnobs),
		"bench":           abs(p.BenchHashd),
		"bench-iocost-result": abs(p.BenchIOCostResult),
		"params":          abs(p.HashdParams),
		"side-defs":       abs(p.SideDefs),
		"sysreqs":         abs(p.SysReq),
		"oomd":            abs(p.OOMDRuleset),
		"oomd-runtime":    abs(p.OOMDRuntime),
	}
	for i, name := range hashdInstanceNames {
		m[name+"-args"] = abs(p.Hashd[i].Args)
		m[name+"-params"] = abs(p.Hashd[i].Params)
		m[name+"-report"] = abs(p.Hashd[i].Report)
	}
	return m
}

// WriteIndex creates the per-instance directories and persists index.json.
func (p *Paths) WriteIndex() error {
	for i := range p.Hashd {
		if err := os.MkdirAll(p.Hashd[i].Dir, 0o755); err != nil {
			return fmt.Errorf("intf: create %s: %w", p.Hashd[i].Dir, err)
		}
	}
	return SaveJSON(p.Index, p.IndexMap())
}

// SaveJSON writes v to path atomically: encode into a staging file in the
// same directory, then rename over the destination, so a reader never
// observes a partially-written file.
func SaveJSON(path string, v any) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("intf: create staging file for %s: %w", path, err)
	}
	staged := tmp.Name()
	defer os.Remove(staged)

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		return fmt.Errorf("intf: encode %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("intf: sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("intf: close staging file for %s: %w", path, err)
	}
	if err := os.Rename(staged, path); err != nil {
		return fmt.Errorf("intf: rename into %s: %w", path, err)
	}
	return nil
}

// LoadJSON decodes path into v. Missing files are not an error callers
// should special-case here; check os.IsNotExist on the returned error.
func LoadJSON(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("intf: decode %s: %w", path, err)
	}
	return nil
}

// LoadBenchKnobs loads BenchKnobs from path and checks the on-disk device
// identity against the currently detected device, per BenchKnobs'
// invariant. A zero model/fwrev/size means "identity unknown", which is
// treated as "matches anything" by CheckDeviceIdentity.
func LoadBenchKnobs(path, model, fwrev string, size uint64) (*BenchKnobs, error) {
	bk := &BenchKnobs{}
	if err := LoadJSON(path, bk); err != nil {
		return nil, err
	}
	if err := bk.CheckDeviceIdentity(model, fwrev, size); err != nil {
		return nil, err
	}
	return bk, nil
}

// SaveBenchKnobs stamps the detected device identity into bk and writes it
// out. Calling LoadBenchKnobs immediately after on the same device, then
// SaveBenchKnobs again with unchanged contents, produces byte-identical
// output: SaveJSON's encoding is deterministic (sorted map keys, fixed
// field order from the struct definition, fixed indent).
func SaveBenchKnobs(path string, bk *BenchKnobs, model, fwrev string, size uint64) error {
	bk.IOCostDevModel = model
	bk.IOCostDevFWRev = fwrev
	bk.IOCostDevSize = size
	return SaveJSON(path, bk)
}
