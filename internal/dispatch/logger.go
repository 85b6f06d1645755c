package dispatch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// nrLogFiles is how many rotation segments a completion log keeps; the
// oldest is removed when a new segment opens.
const nrLogFiles = 8

// Logger appends one line per completed request to a size-rotated log,
// padding each line to a fixed width so the log itself generates a
// steady, configurable write-bandwidth load (log_bps) alongside the
// hash workload rather than a bursty one.
type Logger struct {
	dir     string
	segSize int64
	padding int

	seg     int
	written int64
	f       *os.File
}

// NewLogger opens a completion log under dir. bps is the target log
// write rate; one segment holds roughly a minute of it. padding is the
// fixed per-line width (longer lines are kept whole, shorter ones are
// space-padded).
func NewLogger(dir string, bps uint64, padding int) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("dispatch: create log dir %s: %w", dir, err)
	}
	segSize := int64(bps * 60)
	if segSize < 1<<20 {
		segSize = 1 << 20
	}
	l := &Logger{dir: dir, segSize: segSize, padding: padding}
	if err := l.rotate(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Logger) segPath(seg int) string {
	return filepath.Join(l.dir, fmt.Sprintf("hashd-%03d.log", seg%nrLogFiles))
}

func (l *Logger) rotate() error {
	if l.f != nil {
		l.f.Close()
		l.seg++
	}
	path := l.segPath(l.seg)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("dispatch: open log segment %s: %w", path, err)
	}
	l.f = f
	l.written = 0
	return nil
}

// Log appends one completion record: timestamp, digest, latency, and
// the file index the request drew.
func (l *Logger) Log(digest string, lat time.Duration, fileIdx int) error {
	line := fmt.Sprintf("%d %s %.3f %d", time.Now().UnixMilli(), digest, lat.Seconds()*1000, fileIdx)
	if pad := l.padding - len(line) - 1; pad > 0 {
		line += strings.Repeat(" ", pad)
	}
	line += "\n"

	n, err := l.f.WriteString(line)
	if err != nil {
		return fmt.Errorf("dispatch: log write: %w", err)
	}
	l.written += int64(n)
	if l.written >= l.segSize {
		return l.rotate()
	}
	return nil
}

// Close flushes and closes the current segment.
func (l *Logger) Close() error {
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
