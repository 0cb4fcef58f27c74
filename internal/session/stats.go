package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/nimbus/internal/models"
)

// SampleProvider supplies transport samples; satisfied by TransportEngine.
type SampleProvider interface {
	Sample() (*models.StatsSample, bool)
}

// StatsMonitor polls the transport engine at a fixed cadence while a
// session is streaming and forwards samples to a display sink. Ticks that
// arrive while the phase is not StreamingActive are skipped, not errors.
type StatsMonitor struct {
	provider SampleProvider
	sink     StatsSink
	phase    func() models.Phase
	interval time.Duration
	// stallWarnAfter is how long without a sample before a warning is
	// logged. Zero disables the watchdog.
	stallWarnAfter time.Duration
	logger         *slog.Logger

	mu      sync.Mutex
	stopCh  chan struct{}
	running bool
}

// NewStatsMonitor creates a monitor. phase reads the controller's current
// phase; the monitor never mutates controller state.
func NewStatsMonitor(provider SampleProvider, sink StatsSink, phase func() models.Phase, interval, stallWarnAfter time.Duration, logger *slog.Logger) *StatsMonitor {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsMonitor{
		provider:       provider,
		sink:           sink,
		phase:          phase,
		interval:       interval,
		stallWarnAfter: stallWarnAfter,
		logger:         logger,
	}
}

// Start begins sampling. Starting an already-running monitor is a no-op.
func (m *StatsMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	go m.loop(m.stopCh)
}

// Stop halts polling. Safe to call more than once; the controller
// registers it with the teardown coordinator so it runs exactly once per
// attempt.
func (m *StatsMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	close(m.stopCh)
}

func (m *StatsMonitor) loop(stopCh <-chan struct{}) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	lastSample := time.Now()
	stallLogged := false

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
		}

		if m.phase() != models.PhaseStreamingActive {
			continue
		}

		sample, ok := m.provider.Sample()
		if !ok {
			if m.stallWarnAfter > 0 && !stallLogged && time.Since(lastSample) > m.stallWarnAfter {
				m.logger.Warn("no transport samples received",
					slog.Duration("since", time.Since(lastSample).Round(time.Second)))
				stallLogged = true
			}
			continue
		}

		lastSample = time.Now()
		stallLogged = false
		m.sink.Push(*sample)
	}
}
