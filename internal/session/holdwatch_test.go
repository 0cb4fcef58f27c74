package session

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestHoldWatcherFiresAfterHold(t *testing.T) {
	var fired atomic.Int32
	w := NewHoldWatcher(10*time.Millisecond, func() { fired.Add(1) })
	defer w.Stop()

	w.KeyDown()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && fired.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	if fired.Load() != 1 {
		t.Fatalf("fired = %d, want 1", fired.Load())
	}
}

func TestHoldWatcherReleaseCancelsHold(t *testing.T) {
	var fired atomic.Int32
	w := NewHoldWatcher(20*time.Millisecond, func() { fired.Add(1) })
	defer w.Stop()

	w.KeyDown()
	time.Sleep(5 * time.Millisecond)
	w.KeyUp()

	time.Sleep(40 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("fired = %d after early release, want 0", fired.Load())
	}

	// A fresh press starts a new hold.
	w.KeyDown()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && fired.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	if fired.Load() != 1 {
		t.Fatalf("fired = %d, want 1", fired.Load())
	}
}

func TestHoldWatcherStopPreventsTrigger(t *testing.T) {
	var fired atomic.Int32
	w := NewHoldWatcher(10*time.Millisecond, func() { fired.Add(1) })

	w.KeyDown()
	w.Stop()

	time.Sleep(30 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("fired = %d after stop, want 0", fired.Load())
	}

	w.KeyDown()
	time.Sleep(30 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("fired = %d after stopped key-down, want 0", fired.Load())
	}
}

func TestHoldWatcherIgnoresKeyRepeat(t *testing.T) {
	var fired atomic.Int32
	w := NewHoldWatcher(15*time.Millisecond, func() { fired.Add(1) })
	defer w.Stop()

	// Key-repeat events must not restart the hold timer.
	w.KeyDown()
	for i := 0; i < 5; i++ {
		time.Sleep(4 * time.Millisecond)
		w.KeyDown()
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && fired.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	if fired.Load() != 1 {
		t.Fatalf("fired = %d, want 1", fired.Load())
	}
}
