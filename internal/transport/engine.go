// Package transport implements the streaming transport engine: the
// websocket connection to the assigned streaming server, the stats frame
// feed, and input capture on the presentation surface.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jmylchreest/nimbus/internal/auth"
	"github.com/jmylchreest/nimbus/internal/config"
	"github.com/jmylchreest/nimbus/internal/models"
	"github.com/jmylchreest/nimbus/internal/session"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second

	// sampleFreshness is how old the last stats frame may be before
	// Sample reports no data.
	sampleFreshness = 5 * time.Second
)

var (
	ErrNotConnected       = errors.New("transport not connected")
	ErrAlreadyInitialized = errors.New("transport already initialized")
	ErrCaptureHeld        = errors.New("input capture already held")
)

// Engine owns the websocket to the streaming server. It satisfies
// session.TransportEngine. One connection at a time; Initialize after Stop
// starts a fresh one.
type Engine struct {
	dialTimeout time.Duration
	logger      *slog.Logger
	decoder     *DecoderStats

	mu       sync.Mutex
	writeMu  sync.Mutex
	conn     *websocket.Conn
	stopCh   chan struct{}
	latest   *models.StatsSample
	latestAt time.Time
	captured bool
}

// NewEngine creates an engine; no connection is made until Initialize.
func NewEngine(cfg config.TransportConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		dialTimeout: cfg.DialTimeout,
		logger:      logger.With(slog.String("component", "transport")),
		decoder:     NewDecoderStats(),
	}
}

// statsFrame is the periodic stats message the streaming server pushes.
type statsFrame struct {
	Type        string  `json:"type"`
	FrameRate   float64 `json:"frame_rate"`
	LatencyMs   float64 `json:"latency_ms"`
	BitrateKbps int     `json:"bitrate_kbps"`
	PacketLoss  float64 `json:"packet_loss"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Codec       string  `json:"codec"`
}

// Initialize dials the streaming server named in ready and starts the read
// and keepalive loops. The transport ticket authenticates the dial; the
// bearer token is not sent to the edge.
func (e *Engine) Initialize(ctx context.Context, ready *models.ReadyInfo, cred auth.Credential, mountPoint string) error {
	e.mu.Lock()
	if e.conn != nil {
		e.mu.Unlock()
		return ErrAlreadyInitialized
	}
	e.mu.Unlock()

	if ready.TransportURL == "" {
		return fmt.Errorf("ready info carries no transport url")
	}

	dialer := websocket.Dialer{HandshakeTimeout: e.dialTimeout}
	header := http.Header{}
	if ready.TransportTicket != "" {
		header.Set("X-Transport-Ticket", ready.TransportTicket)
	}

	conn, resp, err := dialer.DialContext(ctx, ready.TransportURL, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return fmt.Errorf("dialing %s: status %d: %w", ready.TransportURL, resp.StatusCode, err)
		}
		return fmt.Errorf("dialing %s: %w", ready.TransportURL, err)
	}

	hello := map[string]string{
		"type":        "hello",
		"mount_point": mountPoint,
	}
	if err := conn.WriteJSON(hello); err != nil {
		conn.Close()
		return fmt.Errorf("sending hello: %w", err)
	}

	stopCh := make(chan struct{})
	e.mu.Lock()
	e.conn = conn
	e.stopCh = stopCh
	e.latest = nil
	e.latestAt = time.Time{}
	e.mu.Unlock()

	go e.readLoop(conn, stopCh)
	go e.pingLoop(conn, stopCh)

	e.logger.Info("transport connected",
		slog.String("server", ready.ServerAddress),
		slog.String("mount_point", mountPoint))
	return nil
}

// Sample returns the most recent stats frame enriched with local decoder
// process stats. ok is false before the first frame and when the feed has
// gone stale.
func (e *Engine) Sample() (*models.StatsSample, bool) {
	e.mu.Lock()
	latest := e.latest
	latestAt := e.latestAt
	e.mu.Unlock()

	if latest == nil || time.Since(latestAt) > sampleFreshness {
		return nil, false
	}

	sample := *latest
	cpu, rssMB, err := e.decoder.Snapshot()
	if err == nil {
		sample.DecoderCPU = cpu
		sample.DecoderRSSMB = rssMB
	}
	return &sample, true
}

// Stop closes the connection and halts the loops. Safe to call more than
// once and before Initialize.
func (e *Engine) Stop() {
	e.mu.Lock()
	conn := e.conn
	stopCh := e.stopCh
	e.conn = nil
	e.stopCh = nil
	e.latest = nil
	e.captured = false
	e.mu.Unlock()

	if conn == nil {
		return
	}
	close(stopCh)

	e.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
	e.writeMu.Unlock()
	conn.Close()

	e.logger.Info("transport stopped")
}

// AttachInputCapture grabs keyboard and pointer input on the surface and
// tells the server to start forwarding. The returned release restores
// local input handling; releasing twice is safe.
func (e *Engine) AttachInputCapture(surface string) (session.ReleaseFunc, error) {
	e.mu.Lock()
	conn := e.conn
	if conn == nil {
		e.mu.Unlock()
		return nil, ErrNotConnected
	}
	if e.captured {
		e.mu.Unlock()
		return nil, ErrCaptureHeld
	}
	e.captured = true
	e.mu.Unlock()

	if err := e.writeJSON(conn, map[string]any{
		"type":    "input_capture",
		"surface": surface,
		"enabled": true,
	}); err != nil {
		e.mu.Lock()
		e.captured = false
		e.mu.Unlock()
		return nil, fmt.Errorf("enabling input capture: %w", err)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			e.mu.Lock()
			e.captured = false
			current := e.conn
			e.mu.Unlock()

			// Best effort; the server drops capture with the connection
			// anyway.
			if current == conn {
				if err := e.writeJSON(conn, map[string]any{
					"type":    "input_capture",
					"surface": surface,
					"enabled": false,
				}); err != nil {
					e.logger.Debug("input capture release notify failed",
						slog.String("error", err.Error()))
				}
			}
		})
	}
	return release, nil
}

func (e *Engine) writeJSON(conn *websocket.Conn, v any) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(v)
}

func (e *Engine) readLoop(conn *websocket.Conn, stopCh <-chan struct{}) {
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})
	conn.SetReadDeadline(time.Now().Add(pongTimeout))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-stopCh:
			default:
				e.logger.Warn("transport read failed",
					slog.String("error", err.Error()))
			}
			return
		}

		var frame statsFrame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Type != "stats" {
			continue
		}

		sample := models.StatsSample{
			FrameRate:   frame.FrameRate,
			LatencyMs:   frame.LatencyMs,
			BitrateKbps: frame.BitrateKbps,
			PacketLoss:  frame.PacketLoss,
			Width:       frame.Width,
			Height:      frame.Height,
			Codec:       frame.Codec,
			SampledAt:   time.Now(),
		}

		e.mu.Lock()
		if e.conn == conn {
			e.latest = &sample
			e.latestAt = sample.SampledAt
		}
		e.mu.Unlock()
	}
}

func (e *Engine) pingLoop(conn *websocket.Conn, stopCh <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			e.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			e.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
