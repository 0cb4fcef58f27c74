package session

import (
	"log/slog"
	"sync"
)

// TeardownCoordinator holds the release actions accumulated during one
// session attempt and guarantees each runs exactly once, from any exit
// path. Cancel, exit, and internal-failure paths all converge here instead
// of carrying their own cleanup.
type TeardownCoordinator struct {
	logger *slog.Logger

	mu      sync.Mutex
	actions []teardownAction
}

type teardownAction struct {
	name    string
	release ReleaseFunc
}

// NewTeardownCoordinator creates an empty coordinator.
func NewTeardownCoordinator(logger *slog.Logger) *TeardownCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &TeardownCoordinator{logger: logger}
}

// Register adds a release action to the current attempt's registry. The
// name identifies the resource in teardown logs.
func (t *TeardownCoordinator) Register(name string, release ReleaseFunc) {
	if release == nil {
		return
	}
	t.mu.Lock()
	t.actions = append(t.actions, teardownAction{name: name, release: release})
	t.mu.Unlock()
}

// Len returns the number of pending release actions.
func (t *TeardownCoordinator) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.actions)
}

// RunAll invokes every registered action exactly once, in reverse
// registration order, so the most recently acquired resource is released
// first. A failing or panicking action is logged and does not block the
// others. The registry is cleared, so subsequent calls are no-ops even
// when multiple termination paths race.
func (t *TeardownCoordinator) RunAll() {
	t.mu.Lock()
	actions := t.actions
	t.actions = nil
	t.mu.Unlock()

	for i := len(actions) - 1; i >= 0; i-- {
		t.run(actions[i])
	}
}

func (t *TeardownCoordinator) run(a teardownAction) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("release action panicked",
				slog.String("resource", a.name),
				slog.Any("panic", r))
		}
	}()

	t.logger.Debug("releasing resource", slog.String("resource", a.name))
	a.release()
}
