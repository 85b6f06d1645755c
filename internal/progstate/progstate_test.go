package progstate

import (
	"testing"
	"time"
)

func TestWaitStateTimesOutWhenIdle(t *testing.T) {
	s := New()
	if got := s.WaitState(10 * time.Millisecond); got != Timeout {
		t.Errorf("WaitState() = %v, want Timeout", got)
	}
}

func TestWaitStateWakesOnKick(t *testing.T) {
	s := New()
	done := make(chan WaitResult, 1)
	go func() {
		done <- s.WaitState(time.Second)
	}()
	time.Sleep(10 * time.Millisecond)
	s.Kick()

	select {
	case got := <-done:
		if got != Kicked {
			t.Errorf("WaitState() = %v, want Kicked", got)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitState did not wake on Kick")
	}
}

func TestWaitStateWakesOnExit(t *testing.T) {
	s := New()
	done := make(chan WaitResult, 1)
	go func() {
		done <- s.WaitState(time.Second)
	}()
	time.Sleep(10 * time.Millisecond)
	s.Exit()

	select {
	case got := <-done:
		if got != Exiting {
			t.Errorf("WaitState() = %v, want Exiting", got)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitState did not wake on Exit")
	}

	if !s.IsExiting() {
		t.Error("IsExiting() = false after Exit()")
	}
	if got := s.WaitState(time.Millisecond); got != Exiting {
		t.Errorf("WaitState() after Exit = %v, want Exiting immediately", got)
	}
}

func TestExitIsIdempotent(t *testing.T) {
	s := New()
	s.Exit()
	s.Exit()
	if !s.IsExiting() {
		t.Error("IsExiting() = false after double Exit()")
	}
}

func TestKickSeqOnlyFiresOnceBeforeObserved(t *testing.T) {
	s := New()
	s.Kick()
	if got := s.WaitState(time.Millisecond); got != Kicked {
		t.Errorf("first WaitState() = %v, want Kicked", got)
	}
	if got := s.WaitState(10 * time.Millisecond); got != Timeout {
		t.Errorf("second WaitState() = %v, want Timeout (kick already observed)", got)
	}
}
