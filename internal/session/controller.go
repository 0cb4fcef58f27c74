package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmylchreest/nimbus/internal/auth"
	"github.com/jmylchreest/nimbus/internal/models"
)

// Config holds lifecycle controller configuration.
type Config struct {
	// StatsInterval is the stats polling cadence while streaming.
	StatsInterval time.Duration
	// StallWarnAfter is how long without transport samples before a
	// warning is logged. Zero disables the watchdog.
	StallWarnAfter time.Duration
	// MountPoint is the presentation surface video is rendered into.
	MountPoint string
	// HoldToExit is how long the exit combo must be held while input
	// capture owns the keyboard. Zero disables the watcher.
	HoldToExit time.Duration
	// StopTimeout bounds the best-effort remote stop during teardown.
	StopTimeout time.Duration
}

// DefaultConfig returns sensible defaults for the controller.
func DefaultConfig() Config {
	return Config{
		StatsInterval:  time.Second,
		StallWarnAfter: 10 * time.Second,
		MountPoint:     "primary",
		HoldToExit:     2 * time.Second,
		StopTimeout:    10 * time.Second,
	}
}

// Controller owns the session lifecycle state machine and the current
// session identity. It drives the request gate, the remote session
// service, the transport engine, presence reporting, stats monitoring and
// the teardown coordinator in the correct order.
//
// At most one launch is in flight at a time, enforced by the phase check.
// All session attempt state lives in one attempt record owned here; there
// is no package-level mutable state.
type Controller struct {
	cfg      Config
	gate     *RequestGate
	service  SessionService
	engine   TransportEngine
	presence PresenceReporter
	sink     StatsSink
	listener PhaseListener
	logger   *slog.Logger

	mu    sync.Mutex
	phase models.Phase
	att   *attempt
}

// attempt holds everything acquired during one launch attempt. It is
// created on Launch and discarded when teardown completes.
type attempt struct {
	title   TitleSelection
	request *models.SessionRequest
	cred    auth.Credential
	handle  *models.SessionHandle
	watcher *HoldWatcher

	teardown *TeardownCoordinator
	ctx      context.Context
	cancel   context.CancelFunc
	// settled is closed when the launch negotiation returns, success or
	// failure. Cancel and Exit wait on it so an in-flight remote call
	// settles before teardown runs.
	settled chan struct{}

	canceled      atomic.Bool
	requestIssued atomic.Bool
	closeOnce     sync.Once
}

// NewController creates a lifecycle controller in the Idle phase.
func NewController(cfg Config, gate *RequestGate, service SessionService, engine TransportEngine, presence PresenceReporter, sink StatsSink, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:      cfg,
		gate:     gate,
		service:  service,
		engine:   engine,
		presence: presence,
		sink:     sink,
		logger:   logger.With(slog.String("component", "session")),
		phase:    models.PhaseIdle,
	}
}

// WithPhaseListener sets a listener for phase transitions. Must be called
// before the first Launch.
func (c *Controller) WithPhaseListener(l PhaseListener) *Controller {
	c.listener = l
	return c
}

// Phase returns the controller's current phase.
func (c *Controller) Phase() models.Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Status is a point-in-time snapshot of the controller.
type Status struct {
	Phase   models.Phase          `json:"phase"`
	Title   string                `json:"title,omitempty"`
	TitleID string                `json:"title_id,omitempty"`
	Handle  *models.SessionHandle `json:"handle,omitempty"`
}

// Status returns a snapshot of the current phase and session identity.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{Phase: c.phase}
	if c.att != nil {
		st.Title = c.att.title.Name
		st.TitleID = c.att.title.ID
		if c.att.handle != nil {
			handle := *c.att.handle
			st.Handle = &handle
		}
	}
	return st
}

// Launch turns a title selection into a live session. Only callable while
// Idle; any call while a session attempt holds state fails with
// ErrSessionAlreadyActive and causes no state change.
func (c *Controller) Launch(ctx context.Context, sel TitleSelection, profile models.QualityProfile) error {
	c.mu.Lock()
	if c.phase != models.PhaseIdle {
		c.mu.Unlock()
		return ErrSessionAlreadyActive
	}

	attCtx, cancel := context.WithCancel(ctx)
	att := &attempt{
		title:    sel,
		teardown: NewTeardownCoordinator(c.logger),
		ctx:      attCtx,
		cancel:   cancel,
		settled:  make(chan struct{}),
	}
	c.att = att
	c.phase = models.PhaseRequesting
	c.mu.Unlock()
	c.notify(models.PhaseIdle, models.PhaseRequesting)

	err := c.negotiate(att, sel, profile)
	close(att.settled)
	return err
}

// negotiate runs the launch sequence. Failures at different stages have
// different blast radii: before StartSession succeeds nothing needs
// releasing; after it, every exit path goes through the teardown
// coordinator.
func (c *Controller) negotiate(att *attempt, sel TitleSelection, profile models.QualityProfile) error {
	req, cred, err := c.gate.Build(att.ctx, sel, profile)
	if err != nil {
		c.resetIdle(att)
		return err
	}
	att.request = req
	att.cred = cred

	c.presence.ReportQueued(sel.Name)
	att.requestIssued.Store(true)

	handle, err := c.service.StartSession(att.ctx, req, cred)
	if err != nil {
		if att.canceled.Load() {
			return c.abortCanceled(att)
		}
		c.resetIdle(att)
		return fmt.Errorf("%w: %v", ErrSessionRequestFailed, err)
	}

	c.mu.Lock()
	att.handle = handle
	c.mu.Unlock()

	att.teardown.Register("remote session", func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), c.cfg.StopTimeout)
		defer stopCancel()
		if err := c.service.StopSession(stopCtx, handle.SessionID, cred); err != nil {
			c.logger.Warn("failed to stop remote session",
				slog.String("session_id", handle.SessionID),
				slog.String("error", err.Error()))
		}
	})

	if att.canceled.Load() {
		return c.abortCanceled(att)
	}
	c.transition(models.PhaseAwaitingServer)

	ready, err := c.service.AwaitReady(att.ctx, handle.SessionID, cred)
	if err != nil {
		if att.canceled.Load() {
			return c.abortCanceled(att)
		}
		c.transition(models.PhaseFailed)
		c.finish(att)
		return fmt.Errorf("%w: %v", ErrSessionNotReady, err)
	}
	if ready.Phase != models.RemotePhaseReady {
		c.transition(models.PhaseFailed)
		c.finish(att)
		return fmt.Errorf("%w: remote phase %s", ErrSessionNotReady, ready.Phase)
	}

	c.mu.Lock()
	att.handle.ServerAddress = ready.ServerAddress
	att.handle.AcceleratorClass = ready.AcceleratorClass
	c.mu.Unlock()

	if att.canceled.Load() {
		return c.abortCanceled(att)
	}
	c.transition(models.PhaseConnected)

	c.logger.Info("session ready",
		slog.String("session_id", handle.SessionID),
		slog.String("server", ready.ServerAddress),
		slog.String("accelerator", ready.AcceleratorClass))

	if err := c.engine.Initialize(att.ctx, ready, cred, c.cfg.MountPoint); err != nil {
		if att.canceled.Load() {
			return c.abortCanceled(att)
		}
		// The remote session is alive and the service call already
		// succeeded; only the video path failed. The user may retry or
		// exit manually.
		c.logger.Error("transport initialization failed, session stays connected",
			slog.String("session_id", handle.SessionID),
			slog.String("error", err.Error()))
		return fmt.Errorf("%w: %v", ErrTransportInitFailed, err)
	}
	att.teardown.Register("transport", c.engine.Stop)

	if release, err := c.engine.AttachInputCapture(c.cfg.MountPoint); err != nil {
		c.logger.Warn("input capture unavailable",
			slog.String("error", err.Error()))
	} else {
		att.teardown.Register("input capture", release)
	}

	if c.cfg.HoldToExit > 0 {
		watcher := NewHoldWatcher(c.cfg.HoldToExit, func() {
			go func() {
				if err := c.Exit(context.Background()); err != nil {
					c.logger.Debug("hold-to-exit ignored",
						slog.String("error", err.Error()))
				}
			}()
		})
		c.mu.Lock()
		att.watcher = watcher
		c.mu.Unlock()
		att.teardown.Register("exit hold watcher", watcher.Stop)
	}

	monitor := NewStatsMonitor(c.engine, c.sink, c.Phase, c.cfg.StatsInterval, c.cfg.StallWarnAfter, c.logger)
	monitor.Start()
	att.teardown.Register("stats monitor", monitor.Stop)

	c.transition(models.PhaseStreamingActive)
	c.presence.ReportPlaying(sel.Name, sel.ID)
	return nil
}

// Cancel aborts a launch during Requesting or AwaitingServer. It does not
// interrupt an in-flight remote call; it signals cancellation, waits for
// the call to settle, then runs full teardown, ending in Idle.
func (c *Controller) Cancel(ctx context.Context) error {
	c.mu.Lock()
	att := c.att
	phase := c.phase
	if att == nil || (phase != models.PhaseRequesting && phase != models.PhaseAwaitingServer) {
		c.mu.Unlock()
		return fmt.Errorf("%w: cancel requires requesting or awaiting_server, have %s", ErrInvalidPhase, phase)
	}
	att.canceled.Store(true)
	c.mu.Unlock()

	c.service.CancelAwait()
	att.cancel()

	select {
	case <-att.settled:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.finish(att)
	return nil
}

// Exit ends an established session (Connected or StreamingActive,
// including connected-without-video after a transport failure). Runs full
// teardown unconditionally, ending in Idle.
func (c *Controller) Exit(ctx context.Context) error {
	c.mu.Lock()
	att := c.att
	phase := c.phase
	if att == nil || (phase != models.PhaseConnected && phase != models.PhaseStreamingActive) {
		c.mu.Unlock()
		return fmt.Errorf("%w: exit requires connected or streaming_active, have %s", ErrInvalidPhase, phase)
	}
	c.mu.Unlock()

	att.cancel()

	select {
	case <-att.settled:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.finish(att)
	return nil
}

// ForwardKeyEvent feeds exit-combo key events from the presentation layer
// to the active hold watcher, if any.
func (c *Controller) ForwardKeyEvent(down bool) {
	c.mu.Lock()
	var watcher *HoldWatcher
	if c.att != nil {
		watcher = c.att.watcher
	}
	c.mu.Unlock()

	if watcher == nil {
		return
	}
	if down {
		watcher.KeyDown()
	} else {
		watcher.KeyUp()
	}
}

// abortCanceled converges a canceled launch on the teardown path. The
// request may have landed server-side even when no handle came back, so
// cleanup is issued best-effort either way.
func (c *Controller) abortCanceled(att *attempt) error {
	c.mu.Lock()
	handle := att.handle
	c.mu.Unlock()

	if handle == nil && att.requestIssued.Load() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), c.cfg.StopTimeout)
		if err := c.service.StopSession(stopCtx, att.request.AttemptID.String(), att.cred); err != nil {
			c.logger.Debug("best-effort stop for uncertain request failed",
				slog.String("attempt_id", att.request.AttemptID.String()),
				slog.String("error", err.Error()))
		}
		stopCancel()
	}

	c.finish(att)
	return ErrLaunchCanceled
}

// finish is the single teardown funnel. Every registered release action
// runs exactly once, the session handle is destroyed, and the controller
// returns to Idle. Racing termination paths converge here safely.
func (c *Controller) finish(att *attempt) {
	att.closeOnce.Do(func() {
		c.transition(models.PhaseExiting)
		att.teardown.RunAll()
		att.cancel()

		c.mu.Lock()
		if c.att == att {
			c.att = nil
		}
		from := c.phase
		c.phase = models.PhaseIdle
		c.mu.Unlock()
		c.notify(from, models.PhaseIdle)

		c.presence.ReportIdle()
	})
}

// resetIdle returns to Idle from an early-stage failure where no resources
// were acquired and the registry is empty.
func (c *Controller) resetIdle(att *attempt) {
	att.cancel()

	c.mu.Lock()
	if c.att == att {
		c.att = nil
	}
	from := c.phase
	c.phase = models.PhaseIdle
	c.mu.Unlock()
	c.notify(from, models.PhaseIdle)

	if att.requestIssued.Load() {
		c.presence.ReportIdle()
	}
}

// transition moves the phase and notifies the listener.
func (c *Controller) transition(to models.Phase) {
	c.mu.Lock()
	from := c.phase
	c.phase = to
	c.mu.Unlock()
	if from != to {
		c.notify(from, to)
	}
}

func (c *Controller) notify(from, to models.Phase) {
	c.logger.Info("phase transition",
		slog.String("from", from.String()),
		slog.String("to", to.String()))
	if c.listener != nil {
		c.listener(from, to)
	}
}
