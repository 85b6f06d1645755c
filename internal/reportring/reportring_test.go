package reportring

import (
	"testing"
	"time"

	"github.com/resctlgo/cgdemo/internal/intf"
)

func reportAt(t time.Time) *intf.Report {
	return intf.NewReport(1, intf.StateRunning)
}

func TestAppendAndIterateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ring, err := New(dir, 1, 3600)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	base := time.Unix(1_700_000_000, 0)
	for i := int64(0); i < 5; i++ {
		rep := reportAt(base)
		rep.Timestamp = base.Add(time.Duration(i) * time.Second)
		if err := ring.Append(rep); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	start := base.Unix()
	entries := ring.Iterate(start, start+5)
	if len(entries) != 5 {
		t.Fatalf("got %d entries, want 5", len(entries))
	}
	for i, e := range entries {
		if e.Miss {
			t.Errorf("entry %d: unexpected miss", i)
		}
		if e.Report == nil {
			t.Errorf("entry %d: nil report", i)
		}
	}
}

func TestIterateReportsMissForGaps(t *testing.T) {
	dir := t.TempDir()
	ring, err := New(dir, 1, 3600)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	base := time.Unix(1_700_000_000, 0)
	rep := reportAt(base)
	rep.Timestamp = base
	if err := ring.Append(rep); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	entries := ring.Iterate(base.Unix(), base.Unix()+3)
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].Miss {
		t.Error("entry 0 should be present")
	}
	if !entries[1].Miss || !entries[2].Miss {
		t.Error("entries 1,2 should be misses (never appended)")
	}
}

func TestAppendPrunesOldEntries(t *testing.T) {
	dir := t.TempDir()
	ring, err := New(dir, 1, 2) // retention of only 2 seconds
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	base := time.Unix(1_700_000_000, 0)
	for i := int64(0); i < 5; i++ {
		rep := reportAt(base)
		rep.Timestamp = base.Add(time.Duration(i) * time.Second)
		if err := ring.Append(rep); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	oldest, ok := ring.Oldest()
	if !ok {
		t.Fatal("Oldest() reported empty ring after appends")
	}
	// last appended at base+4; retention 2s means only base+2..base+4 survive in cache.
	if oldest < base.Unix()+2 {
		t.Errorf("Oldest() = %d, want >= %d after pruning", oldest, base.Unix()+2)
	}
}

func TestIterateLazilyFillsFromDisk(t *testing.T) {
	dir := t.TempDir()
	ring, err := New(dir, 1, 3600)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	base := time.Unix(1_700_000_000, 0)
	rep := reportAt(base)
	rep.Seq = 42
	rep.Timestamp = base
	if err := ring.Append(rep); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	// Simulate a fresh process: new Ring instance over the same directory,
	// with an empty in-memory cache.
	fresh, err := New(dir, 1, 3600)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	entries := fresh.Iterate(base.Unix(), base.Unix()+1)
	if len(entries) != 1 || entries[0].Miss {
		t.Fatalf("expected lazy fill to find the on-disk record, got %+v", entries)
	}
	if entries[0].Report.Seq != 42 {
		t.Errorf("Seq = %d, want 42", entries[0].Report.Seq)
	}
}

func TestNewSetCreatesBothRings(t *testing.T) {
	dir := t.TempDir()
	set, err := NewSet(dir)
	if err != nil {
		t.Fatalf("NewSet() error = %v", err)
	}

	rep := reportAt(time.Time{})
	rep.Timestamp = time.Unix(1_700_000_400, 0)
	if err := set.Sec.Append(rep); err != nil {
		t.Fatalf("Sec.Append() error = %v", err)
	}
	if err := set.Min.Append(rep); err != nil {
		t.Fatalf("Min.Append() error = %v", err)
	}
	if _, ok := set.Sec.Oldest(); !ok {
		t.Error("second ring empty after append")
	}
	if _, ok := set.Min.Oldest(); !ok {
		t.Error("minute ring empty after append")
	}
}

func TestSetKeepAllSuppressesPruning(t *testing.T) {
	dir := t.TempDir()
	ring, err := New(dir, 1, 2)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ring.SetKeepAll(true)

	base := time.Unix(1_700_000_000, 0)
	for i := int64(0); i < 5; i++ {
		rep := reportAt(base)
		rep.Timestamp = base.Add(time.Duration(i) * time.Second)
		if err := ring.Append(rep); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	oldest, ok := ring.Oldest()
	if !ok || oldest != base.Unix() {
		t.Errorf("Oldest() = %d,%v; keep-all should retain the first report", oldest, ok)
	}
}
