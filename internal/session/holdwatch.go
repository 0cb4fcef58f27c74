package session

import (
	"sync"
	"time"
)

// HoldWatcher triggers a callback when a key combination is held for a
// sustained duration. It is the "hold to exit" escape hatch while input
// capture owns the keyboard. The watcher only reads key events fed to it;
// it never mutates controller state directly.
type HoldWatcher struct {
	hold    time.Duration
	trigger func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewHoldWatcher creates a watcher that calls trigger after the combo has
// been held for hold.
func NewHoldWatcher(hold time.Duration, trigger func()) *HoldWatcher {
	return &HoldWatcher{hold: hold, trigger: trigger}
}

// KeyDown starts the hold timer. Repeated key-down events while the timer
// runs are ignored.
func (w *HoldWatcher) KeyDown() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || w.timer != nil {
		return
	}
	w.timer = time.AfterFunc(w.hold, w.fire)
}

// KeyUp cancels a pending hold.
func (w *HoldWatcher) KeyUp() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// Stop cancels any pending hold and prevents future triggers. Registered
// with the teardown coordinator, so it runs once per attempt.
func (w *HoldWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *HoldWatcher) fire() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.timer = nil
	w.mu.Unlock()
	w.trigger()
}
