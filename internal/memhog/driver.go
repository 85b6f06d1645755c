package memhog

import (
	"sync/atomic"
	"time"

	"github.com/resctlgo/cgdemo/internal/anonarea"
	"github.com/resctlgo/cgdemo/internal/progstate"
)

// chunkBytes is the granularity the writer grows the shared area by.
const chunkBytes = 1 << 30

// pageSize is the page granularity readers cycle over.
const pageSize = 4096

// Config is the memory-hog's tunable knobs, one per bandit-mem-hog
// CLI flag.
type Config struct {
	WriteBPS        uint64
	ReadBPS         uint64
	NrReaders       int
	MaxDebt         time.Duration
	Compressibility float64
}

// Status holds the atomics the driver exposes for reporting: bytes
// written/read, accumulated loss, and the writer's current file cursor.
type Status struct {
	BytesWritten atomic.Uint64
	BytesRead    atomic.Uint64
	LossNanos    atomic.Int64
	Cursor       atomic.Int64
}

// Driver runs the writer and NrReaders reader goroutines over one shared
// anonarea.Area.
type Driver struct {
	cfg    Config
	area   *anonarea.Area
	status Status
	state  *progstate.State
}

// New builds a Driver; bps of 0 for either side disables that side's
// goroutine entirely.
func New(cfg Config, state *progstate.State) *Driver {
	if cfg.NrReaders < 1 {
		cfg.NrReaders = 1
	}
	return &Driver{
		cfg:   cfg,
		area:  anonarea.New(chunkBytes),
		state: state,
	}
}

// Status returns the live status atomics for reporting.
func (d *Driver) Status() *Status { return &d.status }

// Run starts the writer (if WriteBPS > 0) and NrReaders readers (if
// ReadBPS > 0), blocking until progstate signals Exiting.
func (d *Driver) Run() {
	done := make(chan struct{})
	nrWorkers := 0

	if d.cfg.WriteBPS > 0 {
		nrWorkers++
		go func() {
			d.runWriter()
			done <- struct{}{}
		}()
	}
	if d.cfg.ReadBPS > 0 {
		for i := 0; i < d.cfg.NrReaders; i++ {
			nrWorkers++
			i := i
			go func() {
				d.runReader(i)
				done <- struct{}{}
			}()
		}
	}
	for i := 0; i < nrWorkers; i++ {
		<-done
	}
}

// debtToBytesOrSleep converts outstanding debt at the given bps into a
// page-aligned byte count, or reports how long to sleep until at least
// one page's worth of debt will have accrued.
func debtToBytesOrSleep(debt time.Duration, bps uint64) (bytes int64, sleepFor time.Duration) {
	if bps == 0 {
		return 0, time.Second
	}
	bytes = int64(debt.Seconds() * float64(bps))
	bytes -= bytes % pageSize
	if bytes < pageSize {
		// Sleep until one page's worth of debt has accrued.
		needed := time.Duration(float64(pageSize)/float64(bps)*float64(time.Second)) - debt
		if needed <= 0 {
			needed = time.Millisecond
		}
		return 0, needed
	}
	return bytes, 0
}

func (d *Driver) runWriter() {
	tracker := NewDebtTracker(d.cfg.MaxDebt)
	var filled int64
	for {
		if d.state.IsExiting() {
			return
		}
		tracker.Update(time.Now())
		nrBytes, sleepFor := debtToBytesOrSleep(tracker.Debt(), d.cfg.WriteBPS)
		if nrBytes == 0 {
			d.state.WaitState(sleepFor)
			continue
		}

		want := filled + nrBytes
		d.area.EnsureCapacity(want, d.cfg.Compressibility)
		d.area.MarkFilled(want)
		filled = want

		tracker.Pay(time.Duration(float64(nrBytes) / float64(d.cfg.WriteBPS) * float64(time.Second)))
		d.status.BytesWritten.Store(uint64(filled))
		d.status.LossNanos.Store(int64(tracker.Loss()))
		d.status.Cursor.Store(filled)
	}
}

func (d *Driver) runReader(idx int) {
	tracker := NewDebtTracker(d.cfg.MaxDebt)
	var cursor int64
	lo := float64(idx) / float64(d.cfg.NrReaders)
	hi := float64(idx+1) / float64(d.cfg.NrReaders)

	var totalRead uint64
	for {
		if d.state.IsExiting() {
			return
		}
		filled := d.area.FilledBytes()
		if filled == 0 {
			if d.state.WaitState(100*time.Millisecond) == progstate.Exiting {
				return
			}
			continue
		}

		tracker.Update(time.Now())
		nrBytes, sleepFor := debtToBytesOrSleep(tracker.Debt(), d.cfg.ReadBPS)
		if nrBytes == 0 {
			d.state.WaitState(sleepFor)
			continue
		}

		loBytes := int64(lo * float64(filled))
		hiBytes := int64(hi * float64(filled))
		span := hiBytes - loBytes
		if span <= 0 {
			d.state.WaitState(10 * time.Millisecond)
			continue
		}

		var sum uint64
		nrPages := nrBytes / pageSize
		for p := int64(0); p < nrPages; p++ {
			cursor++
			pageIdx := loBytes/pageSize + (cursor % (span / pageSize))
			sum ^= d.area.TouchPage(pageIdx, pageSize)
		}
		_ = sum // prevents dead-code elimination of the touch loop

		tracker.Pay(time.Duration(float64(nrPages*pageSize) / float64(d.cfg.ReadBPS) * float64(time.Second)))
		totalRead += uint64(nrPages * pageSize)
		d.status.BytesRead.Add(uint64(nrPages * pageSize))
		_ = totalRead
	}
}
