package dispatch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoggerPadsLines(t *testing.T) {
	dir := t.TempDir()
	lg, err := NewLogger(dir, 1<<20, 128)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	defer lg.Close()

	if err := lg.Log("da39a3ee", 12*time.Millisecond, 3); err != nil {
		t.Fatalf("Log() error = %v", err)
	}
	if err := lg.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "hashd-000.log"))
	if err != nil {
		t.Fatalf("read segment: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	if len(lines[0]) != 127 { // padding minus the newline
		t.Errorf("line width = %d, want 127", len(lines[0]))
	}
	if !strings.Contains(lines[0], "da39a3ee") {
		t.Errorf("line %q missing digest", lines[0])
	}
}

func TestLoggerRotatesSegments(t *testing.T) {
	dir := t.TempDir()
	lg, err := NewLogger(dir, 1<<20, 64)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	defer lg.Close()
	lg.segSize = 100 // force rotation after ~2 lines

	for i := 0; i < 6; i++ {
		if err := lg.Log("digest", time.Millisecond, i); err != nil {
			t.Fatalf("Log(%d) error = %v", i, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) < 2 {
		t.Errorf("got %d segments after forced rotation, want >= 2", len(entries))
	}
}
