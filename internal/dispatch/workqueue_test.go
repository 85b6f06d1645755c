package dispatch

import (
	"testing"
	"time"
)

func TestWorkQueueDispatchAndRelease(t *testing.T) {
	q := NewWorkQueue()

	q.Dispatch(func() string { return "d1" })
	if q.Busy() != 1 {
		t.Fatalf("Busy() = %d after dispatch, want 1", q.Busy())
	}

	var res workerResult
	select {
	case res = <-q.Completions():
	case <-time.After(5 * time.Second):
		t.Fatal("no completion within 5s")
	}
	if res.digest != "d1" {
		t.Errorf("digest = %q, want d1", res.digest)
	}

	q.Release(res.w)
	if q.Busy() != 0 {
		t.Errorf("Busy() = %d after release, want 0", q.Busy())
	}
	if q.Live() != 1 {
		t.Errorf("Live() = %d after release, want 1 (idle worker kept)", q.Live())
	}

	// A second dispatch reuses the idle worker instead of growing the pool.
	q.Dispatch(func() string { return "d2" })
	if q.Live() != 1 {
		t.Errorf("Live() = %d after reuse, want 1", q.Live())
	}
	res = <-q.Completions()
	q.Release(res.w)
}

func TestWorkQueueReapsIdleWorkers(t *testing.T) {
	q := NewWorkQueue()
	q.Dispatch(func() string { return "" })
	res := <-q.Completions()
	q.Release(res.w)

	q.ReapIdle(time.Now().Add(2 * idleTimeout))
	if q.Live() != 0 {
		t.Errorf("Live() = %d after reap, want 0", q.Live())
	}
}

func TestWorkQueuePropagatesPanics(t *testing.T) {
	q := NewWorkQueue()
	q.Dispatch(func() string { panic("worker exploded") })

	select {
	case p := <-q.PanicCh():
		if p != "worker exploded" {
			t.Errorf("panic value = %v", p)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("panic not propagated within 5s")
	}
}
