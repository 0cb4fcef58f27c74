package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/nimbus/internal/auth"
	"github.com/jmylchreest/nimbus/internal/config"
	"github.com/jmylchreest/nimbus/internal/models"
)

// testStreamServer is a minimal stand-in for a streaming edge: it accepts
// the websocket, records inbound control messages, and pushes stats
// frames on demand.
type testStreamServer struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conn     *websocket.Conn
	ticket   string
	received []map[string]any
}

func (s *testStreamServer) handler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.ticket = r.Header.Get("X-Transport-Ticket")
	s.mu.Unlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		s.mu.Lock()
		s.received = append(s.received, msg)
		s.mu.Unlock()
	}
}

func (s *testStreamServer) push(frame statsFrame) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		s.t.Fatal("no connection to push on")
	}
	data, err := json.Marshal(frame)
	require.NoError(s.t, err)
	require.NoError(s.t, conn.WriteMessage(websocket.TextMessage, data))
}

func (s *testStreamServer) messages() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, len(s.received))
	copy(out, s.received)
	return out
}

func startStreamServer(t *testing.T) (*testStreamServer, *models.ReadyInfo) {
	t.Helper()
	ss := &testStreamServer{t: t}
	srv := httptest.NewServer(http.HandlerFunc(ss.handler))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return ss, &models.ReadyInfo{
		Phase:           models.RemotePhaseReady,
		ServerAddress:   srv.Listener.Addr().String(),
		TransportURL:    wsURL,
		TransportTicket: "ticket-1",
	}
}

func newTestEngine() *Engine {
	return NewEngine(config.TransportConfig{DialTimeout: 5 * time.Second, MountPoint: "primary"}, nil)
}

func TestInitializeAndSample(t *testing.T) {
	ss, ready := startStreamServer(t)
	e := newTestEngine()
	defer e.Stop()

	require.NoError(t, e.Initialize(context.Background(), ready, auth.Credential{Token: "tok"}, "primary"))

	ss.mu.Lock()
	ticket := ss.ticket
	ss.mu.Unlock()
	assert.Equal(t, "ticket-1", ticket)

	// No frame yet.
	_, ok := e.Sample()
	assert.False(t, ok)

	// Server needs a moment to register the connection and read the
	// hello before we push.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(ss.messages()) > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	msgs := ss.messages()
	require.NotEmpty(t, msgs)
	assert.Equal(t, "hello", msgs[0]["type"])
	assert.Equal(t, "primary", msgs[0]["mount_point"])

	ss.push(statsFrame{
		Type:        "stats",
		FrameRate:   59.9,
		LatencyMs:   18.2,
		BitrateKbps: 15000,
		Width:       1920,
		Height:      1080,
		Codec:       "h264",
	})

	var sample *models.StatsSample
	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s, ok := e.Sample(); ok {
			sample = s
			break
		}
		time.Sleep(time.Millisecond)
	}
	require.NotNil(t, sample, "no sample after stats frame")
	assert.InDelta(t, 59.9, sample.FrameRate, 0.01)
	assert.Equal(t, 15000, sample.BitrateKbps)
	assert.Equal(t, "1920x1080", sample.Resolution())
}

func TestInitializeTwiceFails(t *testing.T) {
	_, ready := startStreamServer(t)
	e := newTestEngine()
	defer e.Stop()

	require.NoError(t, e.Initialize(context.Background(), ready, auth.Credential{}, "primary"))
	err := e.Initialize(context.Background(), ready, auth.Credential{}, "primary")
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestInitializeDialFailure(t *testing.T) {
	e := NewEngine(config.TransportConfig{DialTimeout: 200 * time.Millisecond}, nil)
	err := e.Initialize(context.Background(), &models.ReadyInfo{
		TransportURL: "ws://127.0.0.1:1/stream",
	}, auth.Credential{}, "primary")
	require.Error(t, err)

	// A failed dial leaves the engine reusable.
	_, ready := startStreamServer(t)
	defer e.Stop()
	assert.NoError(t, e.Initialize(context.Background(), ready, auth.Credential{}, "primary"))
}

func TestStopIsIdempotent(t *testing.T) {
	_, ready := startStreamServer(t)
	e := newTestEngine()

	require.NoError(t, e.Initialize(context.Background(), ready, auth.Credential{}, "primary"))
	e.Stop()
	e.Stop()

	_, ok := e.Sample()
	assert.False(t, ok)
}

func TestStopBeforeInitialize(t *testing.T) {
	e := newTestEngine()
	e.Stop()
}

func TestAttachInputCapture(t *testing.T) {
	ss, ready := startStreamServer(t)
	e := newTestEngine()
	defer e.Stop()

	require.NoError(t, e.Initialize(context.Background(), ready, auth.Credential{}, "primary"))

	release, err := e.AttachInputCapture("primary")
	require.NoError(t, err)

	// Capture is exclusive while held.
	_, err = e.AttachInputCapture("primary")
	assert.ErrorIs(t, err, ErrCaptureHeld)

	release()
	release() // releasing twice is safe

	// After release a new capture may be taken.
	release2, err := e.AttachInputCapture("primary")
	require.NoError(t, err)
	release2()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(ss.messages()) >= 5 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	var enables, disables int
	for _, msg := range ss.messages() {
		if msg["type"] != "input_capture" {
			continue
		}
		if msg["enabled"] == true {
			enables++
		} else {
			disables++
		}
	}
	assert.Equal(t, 2, enables)
	assert.Equal(t, 2, disables)
}

func TestAttachInputCaptureRequiresConnection(t *testing.T) {
	e := newTestEngine()
	_, err := e.AttachInputCapture("primary")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestDecoderStatsSnapshot(t *testing.T) {
	d := NewDecoderStats()
	_, rssMB, err := d.Snapshot()
	require.NoError(t, err)
	assert.Greater(t, rssMB, 0.0)
}
