package dispatch

import (
	"math/rand"
	"sync"
	"time"

	"github.com/beorn7/perks/quantile"

	"github.com/resctlgo/cgdemo/internal/anonarea"
	"github.com/resctlgo/cgdemo/internal/intf"
	"github.com/resctlgo/cgdemo/internal/progstate"
)

// Params is the dispatch thread's live-reloadable runtime parameter set.
type Params = intf.HashdParams

// anonBlockSize is the shared anon area's block size for the dispatch
// workload's touch buffer, much finer than the 1 GiB chunks the
// memory-hog writer uses.
const anonBlockSize = 32 << 20

// gracePeriod is how long after a parameter update is applied that
// collected stats are discarded, so a transient spike from the change
// itself doesn't feed the control loop.
const gracePeriod = time.Second

// Command is a live parameter update delivered to the dispatch thread.
type Command struct {
	Params *Params
}

// Sample is one control-period snapshot the Dispatcher emits for the
// reporter to fold into the live hashd report.
type Sample struct {
	RPS             float64
	LatPct          map[string]float64
	Concurrency     float64
	MaxConcurrency  float64
	LatLimited      bool
}

// Dispatcher drives the adaptive load: a dynamically sized worker pool
// steered by the latency and RPS PIDs below.
type Dispatcher struct {
	mu     sync.Mutex
	params *Params
	files  *TestfileSet
	anon   *anonarea.Area

	queue *WorkQueue
	state *progstate.State

	rng *rand.Rand

	concurrency    float64
	maxConcurrency float64

	latPID *PID
	rpsPID *PID

	sketch *quantile.Stream

	nrDone       uint64
	lastNrDone   uint64
	lastRPS      float64
	lastSampleAt time.Time
	graceUntil   time.Time

	cmdCh    chan Command
	sampleCh chan Sample
	stopCh   chan struct{}

	LogLine func(digest string, latMs float64) // optional rotating-log sink
}

// New builds a Dispatcher with the given initial parameters and
// testfile set.
func New(params *Params, files *TestfileSet, state *progstate.State) *Dispatcher {
	d := &Dispatcher{
		params:   cloneParams(params),
		files:    files,
		anon:     anonarea.New(anonBlockSize),
		queue:    NewWorkQueue(),
		state:    state,
		rng:      rand.New(rand.NewSource(1)),
		cmdCh:    make(chan Command, 8),
		sampleCh: make(chan Sample, 8),
		stopCh:   make(chan struct{}),
	}
	d.applyParamsLocked(params)
	return d
}

func cloneParams(p *Params) *Params {
	cp := *p
	return &cp
}

func (d *Dispatcher) applyParamsLocked(p *Params) {
	d.params = cloneParams(p)
	d.maxConcurrency = float64(p.MaxConcurrency)
	if d.concurrency == 0 {
		d.concurrency = 1
	}
	d.latPID = NewPID(p.LatPID.Kp, p.LatPID.Ki, p.LatPID.Kd)
	d.rpsPID = NewPID(p.RPSPID.Kp, p.RPSPID.Ki, p.RPSPID.Kd)
	d.sketch = quantile.NewTargeted(map[float64]float64{
		0.01: 0.001, 0.05: 0.001, 0.10: 0.001, 0.25: 0.001, 0.50: 0.001,
		0.75: 0.001, 0.90: 0.001, 0.95: 0.001, 0.99: 0.001, 1.00: 0.001,
	})
	d.graceUntil = time.Now().Add(gracePeriod)
}

// SendCommand delivers a parameter update to the dispatch thread; it
// takes effect on the next loop cycle.
func (d *Dispatcher) SendCommand(c Command) {
	select {
	case d.cmdCh <- c:
	default:
	}
}

// Samples returns the channel of per-control-period samples for the
// reporter to merge into Report.Hashd[i].
func (d *Dispatcher) Samples() <-chan Sample { return d.sampleCh }

// Stop winds down this dispatcher only, without touching the process
// wide exit flag. Idempotence is the caller's problem; Stop must be
// called at most once.
func (d *Dispatcher) Stop() { close(d.stopCh) }

// controlPeriod returns the configured sample period, defaulting to 1s.
func (d *Dispatcher) controlPeriod() time.Duration {
	if d.params.ControlPeriod <= 0 {
		return time.Second
	}
	return time.Duration(d.params.ControlPeriod * float64(time.Second))
}

// Run drives the single-threaded control loop until progstate signals
// Exiting or Stop is called. It multiplexes over the command channel,
// completion channel, and a sample timer via a cooperative select. The
// sample channel is closed on exit so a blocked consumer unblocks.
func (d *Dispatcher) Run() {
	ticker := time.NewTicker(d.controlPeriod())
	defer ticker.Stop()
	defer close(d.sampleCh)
	d.lastSampleAt = time.Now()

	for {
		if d.state.IsExiting() {
			d.drainAndJoin()
			return
		}
		select {
		case <-d.stopCh:
			d.drainAndJoin()
			return

		case cmd := <-d.cmdCh:
			d.mu.Lock()
			d.applyParamsLocked(cmd.Params)
			d.mu.Unlock()
			ticker.Reset(d.controlPeriod())

		case res := <-d.queue.Completions():
			d.onCompletion(res)
			d.queue.Release(res.w)
			d.fill()

		case p := <-d.queue.PanicCh():
			panic(p)

		case now := <-ticker.C:
			d.onTick(now)
		}
	}
}

func (d *Dispatcher) drainAndJoin() {
	d.queue.ReapIdle(time.Now().Add(24 * time.Hour))
}

func (d *Dispatcher) onCompletion(res workerResult) {
	if time.Now().Before(d.graceUntil) {
		return
	}
	latMs := res.lat.Seconds() * 1000
	d.sketch.Insert(res.lat.Seconds())
	d.nrDone++
	if d.LogLine != nil {
		d.LogLine(res.digest, latMs)
	}
}

// onTick runs one control-loop iteration: compute stats, feed the two
// PIDs, launch workers up to floor(concurrency), and reap idle workers.
func (d *Dispatcher) onTick(now time.Time) {
	dur := now.Sub(d.lastSampleAt).Seconds()
	if dur <= 0 {
		dur = d.params.ControlPeriod
	}
	rps := float64(d.nrDone-d.lastNrDone) / dur
	d.lastNrDone = d.nrDone
	d.lastSampleAt = now

	p99 := d.sketch.Query(0.99)

	d.updateControl(p99, rps, dur)

	d.lastRPS = rps
	d.fill()
	d.queue.ReapIdle(now)

	latPct := map[string]float64{
		"50": d.sketch.Query(0.50), "90": d.sketch.Query(0.90),
		"95": d.sketch.Query(0.95), "99": p99, "100": d.sketch.Query(1.00),
	}
	select {
	case d.sampleCh <- Sample{
		RPS: rps, LatPct: latPct, Concurrency: d.concurrency,
		MaxConcurrency: d.maxConcurrency, LatLimited: d.concurrency >= d.maxConcurrency,
	}:
	default:
	}
}

// fill launches requests until the busy-worker count reaches
// floor(concurrency), called on every tick and after every completion so
// the pool tracks the control loop's target between samples.
func (d *Dispatcher) fill() {
	nrWanted := int(d.concurrency)
	if nrWanted < 1 {
		nrWanted = 1
	}
	for i := d.queue.Busy(); i < nrWanted; i++ {
		d.dispatchOne(d.lastRPS)
	}
}

func (d *Dispatcher) dispatchOne(rps float64) {
	req := &Requestor{Params: d.params, Files: d.files, Anon: d.anon, ReadFile: d.readFile}
	d.queue.Dispatch(func() string {
		return req.Run(rand.New(rand.NewSource(rand.Int63())), rps)
	})
}

func (d *Dispatcher) readFile(fileIdx int, size int64) []byte {
	// No file is read: the dispatcher is only given the testfile sizes
	// (TestfileSet), so a zero-filled buffer of the requested size stands
	// in without touching real IO.
	return make([]byte, size)
}

// updateControl runs the two-PID interaction: the latency PID
// jumps max_concurrency down immediately on a negative adjustment (never
// overshoot downward), then the RPS PID adjusts concurrency; whichever
// PID isn't currently binding has its integral reset so it doesn't wind
// up while idle.
func (d *Dispatcher) updateControl(p99Lat, rps, dur float64) {
	p := d.params

	latErr := 0.0
	if p.P99LatTarget > 0 {
		latErr = p99Lat/p.P99LatTarget - 1
	}
	adjLat := d.latPID.Update(latErr, dur)
	if adjLat < 0 {
		if d.concurrency < d.maxConcurrency {
			d.maxConcurrency = d.concurrency
		}
	}
	d.maxConcurrency *= 1 + adjLat
	d.maxConcurrency = clampF(d.maxConcurrency, 1, float64(p.MaxConcurrency))

	rpsErr := 0.0
	if p.RpsTarget > 0 {
		rpsErr = rps/float64(p.RpsTarget) - 1
	}
	adjRps := d.rpsPID.Update(rpsErr, dur)
	d.concurrency = maxF(1, d.concurrency*(1+adjRps))

	if d.concurrency >= d.maxConcurrency {
		d.concurrency = d.maxConcurrency
		d.rpsPID.ResetIntegral()
	} else {
		d.latPID.ResetIntegral()
	}
	if d.latPID.Integral() < 0 && p99Lat <= p.P99LatTarget {
		d.latPID.ResetIntegral()
	}
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
