// Package bpfsample drives the two long-running external samplers:
// an IO-latency percentile sampler and an iocost vrate/busy-level
// monitor, each a child process streaming one JSON object per second on
// stdout. Shutdown follows the same SIGINT-then-SIGKILL sequence the
// BCC tool executor uses, since both samplers are themselves Python/BCC
// processes that need to flush buffered histograms before exiting.
package bpfsample

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/resctlgo/cgdemo/internal/ebpf"
	"github.com/resctlgo/cgdemo/internal/intf"
)

// gracefulShutdownTimeout mirrors the BCC tool executor's SIGINT grace
// period before escalating to SIGKILL.
const gracefulShutdownTimeout = 3 * time.Second

// ioLatLine is one line of the IO-latency sampler's JSON stream.
type ioLatLine struct {
	Read    map[string]float64 `json:"read"`
	Write   map[string]float64 `json:"write"`
	Discard map[string]float64 `json:"discard"`
	Flush   map[string]float64 `json:"flush"`
}

// ioCostLine is one line of the iocost monitor's JSON stream. Lines
// with a null device are heartbeats with no data and are dropped.
type ioCostLine struct {
	Device    *string `json:"device"`
	VRatePct  float64 `json:"vrate_pct"`
	BusyLevel int     `json:"busy_level"`
}

// Process supervises one streaming child sampler.
type Process struct {
	name string
	args []string

	mu       sync.RWMutex
	lastIOLat  intf.IOLatReport
	lastIOCost intf.IOCostReport

	loader         *ebpf.Loader
	fallbackReason string
}

// NewIOLatSampler builds the IO-latency percentile sampler targeting dev.
func NewIOLatSampler(dev string) *Process {
	return &Process{name: "biolatpcts.py", args: []string{"-j", "1", dev}, loader: ebpf.NewLoader(false)}
}

// NewIOCostMonitor builds the iocost vrate/busy-level monitor targeting dev.
func NewIOCostMonitor(dev string) *Process {
	return &Process{name: "iocost_monitor.py", args: []string{"-j", "1", dev}, loader: ebpf.NewLoader(false)}
}

// IOLat returns the most recently parsed IO-latency report.
func (p *Process) IOLat() intf.IOLatReport {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastIOLat
}

// FallbackReason returns why native CO-RE loading wasn't used, once Run
// has started; empty until then.
func (p *Process) FallbackReason() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fallbackReason
}

// IOCost returns the most recently parsed iocost report.
func (p *Process) IOCost() intf.IOCostReport {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastIOCost
}

// Run starts the child process and streams its stdout until ctx is
// cancelled, at which point it sends SIGINT to the process group and
// escalates to SIGKILL after gracefulShutdownTimeout.
func (p *Process) Run(ctx context.Context) error {
	// Native CO-RE loading would be preferred when available, but the
	// compiled objects named in ebpf.NativePrograms aren't part of this
	// tree, so the external-process path below always runs regardless of
	// DecideTier's verdict; the reason is kept for FallbackReason.
	if d := ebpf.DecideTier(p.name, p.loader); !d.UseTier3 {
		p.mu.Lock()
		p.fallbackReason = d.Reason
		p.mu.Unlock()
	}
	cmd := exec.Command(p.name, p.args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("bpfsample: stdout pipe for %s: %w", p.name, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("bpfsample: start %s: %w", p.name, err)
	}

	exited := make(chan struct{})
	go func() {
		p.scan(stdout)
		close(exited)
	}()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		pgid := cmd.Process.Pid
		if err := syscall.Kill(-pgid, syscall.SIGINT); err != nil {
			_ = cmd.Process.Signal(syscall.SIGINT)
		}
		select {
		case <-done:
		case <-time.After(gracefulShutdownTimeout):
			_ = syscall.Kill(-pgid, syscall.SIGKILL)
		}
	case err := <-done:
		return err
	}
	<-exited
	return ctx.Err()
}

func (p *Process) scan(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Bytes()
		switch p.name {
		case "biolatpcts.py":
			var l ioLatLine
			if err := json.Unmarshal(line, &l); err == nil {
				p.mu.Lock()
				p.lastIOLat = intf.IOLatReport(l)
				p.mu.Unlock()
			}
		case "iocost_monitor.py":
			var l ioCostLine
			if err := json.Unmarshal(line, &l); err == nil && l.Device != nil {
				p.mu.Lock()
				p.lastIOCost = intf.IOCostReport{
					VRate: l.VRatePct,
					Busy:  strconv.Itoa(l.BusyLevel),
				}
				p.mu.Unlock()
			}
		}
	}
}
