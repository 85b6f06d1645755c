// Package reportring maintains the two disk-backed ring buffers the
// runner appends every report to and the bench study pipeline iterates
// over: a 1-second-cadence ring and a 60-second-cadence ring, each
// capped to its own retention window.
package reportring

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/resctlgo/cgdemo/internal/intf"
)

// Entry is one slot in an iteration range: either a decoded report, or a
// miss marker when neither the in-memory cache nor disk has that slot.
type Entry struct {
	At     int64
	Report *intf.Report
	Miss   bool
}

// Ring is one cadence's disk-backed ring buffer.
type Ring struct {
	mu        sync.Mutex
	dir       string
	cadence   int64
	retention int64
	keepAll   bool
	cache     map[int64]*intf.Report
}

// New creates a ring rooted at dir, with the given cadence and retention
// in seconds. The directory is created if missing.
func New(dir string, cadenceSec, retentionSec int64) (*Ring, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("reportring: create %s: %w", dir, err)
	}
	return &Ring{
		dir:       dir,
		cadence:   cadenceSec,
		retention: retentionSec,
		cache:     map[int64]*intf.Report{},
	}, nil
}

func alignDown(t, cadence int64) int64 {
	return t / cadence * cadence
}

func (r *Ring) path(at int64) string {
	return filepath.Join(r.dir, strconv.FormatInt(at, 10)+".json")
}

// Append writes rep to disk at its cadence-aligned timestamp, caches it
// in memory, and deletes any record older than the retention window.
func (r *Ring) Append(rep *intf.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	at := alignDown(rep.Timestamp.Unix(), r.cadence)
	if err := intf.SaveJSON(r.path(at), rep); err != nil {
		return fmt.Errorf("reportring: append at %d: %w", at, err)
	}
	r.cache[at] = rep
	r.pruneLocked(at - r.retention)
	return nil
}

func (r *Ring) pruneLocked(cutoff int64) {
	if r.keepAll {
		return
	}
	for at := range r.cache {
		if at < cutoff {
			delete(r.cache, at)
			os.Remove(r.path(at))
		}
	}
}

// loadFromDisk lazily fills the in-memory cache for one slot from its
// on-disk file, the "lazy fill-from-disk" behavior for ranges older than
// what's already cached.
func (r *Ring) loadFromDisk(at int64) (*intf.Report, bool) {
	rep := &intf.Report{}
	if err := intf.LoadJSON(r.path(at), rep); err != nil {
		return nil, false
	}
	r.cache[at] = rep
	return rep, true
}

// Iterate yields one Entry per cadence-aligned slot in [start, end),
// lazily filling from disk, and reporting a miss marker for any slot
// found in neither the cache nor on disk.
func (r *Ring) Iterate(start, end int64) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	start = alignDown(start, r.cadence)
	end = alignDown(end, r.cadence)

	entries := make([]Entry, 0, (end-start)/r.cadence+1)
	for at := start; at < end; at += r.cadence {
		if rep, ok := r.cache[at]; ok {
			entries = append(entries, Entry{At: at, Report: rep})
			continue
		}
		if rep, ok := r.loadFromDisk(at); ok {
			entries = append(entries, Entry{At: at, Report: rep})
			continue
		}
		entries = append(entries, Entry{At: at, Miss: true})
	}
	return entries
}

// Oldest returns the earliest cached timestamp, and false if the cache is
// empty.
func (r *Ring) Oldest() (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.cache) == 0 {
		return 0, false
	}
	keys := make([]int64, 0, len(r.cache))
	for at := range r.cache {
		keys = append(keys, at)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys[0], true
}

// Set is the paired 1-second/60-second ring, matching the two retention
// windows the runner and bench reconcile against.
type Set struct {
	Sec *Ring
	Min *Ring
}

// SetRetention overrides a ring's retention window in seconds, for the
// agent CLI's --rep-retention/--rep-1min-retention flags.
func (r *Ring) SetRetention(retentionSec int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retention = retentionSec
}

// SetKeepAll disables expiry pruning entirely, for --keep-reports.
func (r *Ring) SetKeepAll(keep bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keepAll = keep
}

// DefaultRetentionSec is the 1-second ring's default retention (1 hour).
const DefaultRetentionSec = 3600

// Default1MinRetentionSec is the 60-second ring's default retention (24h).
const Default1MinRetentionSec = 24 * 3600

// NewSet creates the standard sec/min ring pair under the given base dir.
func NewSet(baseDir string) (*Set, error) {
	sec, err := New(filepath.Join(baseDir, "report.d"), 1, DefaultRetentionSec)
	if err != nil {
		return nil, err
	}
	min, err := New(filepath.Join(baseDir, "report-1min.d"), 60, Default1MinRetentionSec)
	if err != nil {
		return nil, err
	}
	return &Set{Sec: sec, Min: min}, nil
}

