package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Phase is the controller's current position in the session lifecycle
// state machine. Exactly one Phase value exists at a time, owned by the
// lifecycle controller; no other component may mutate it.
type Phase string

const (
	// PhaseIdle indicates no session attempt is in progress.
	PhaseIdle Phase = "idle"
	// PhaseRequesting indicates a session request is being negotiated.
	PhaseRequesting Phase = "requesting"
	// PhaseAwaitingServer indicates the remote session was accepted and we
	// are waiting for a server allocation to become ready.
	PhaseAwaitingServer Phase = "awaiting_server"
	// PhaseConnected indicates the remote session is ready but the
	// transport is not (yet) delivering video.
	PhaseConnected Phase = "connected"
	// PhaseStreamingActive indicates the transport is live.
	PhaseStreamingActive Phase = "streaming_active"
	// PhaseExiting indicates teardown is in progress.
	PhaseExiting Phase = "exiting"
	// PhaseFailed indicates the attempt failed after resources existed.
	PhaseFailed Phase = "failed"
)

// IsTerminal returns true for phases that rejoin Idle after teardown.
func (p Phase) IsTerminal() bool {
	return p == PhaseExiting || p == PhaseFailed
}

// IsActive returns true while a session attempt holds any state.
func (p Phase) IsActive() bool {
	return p != PhaseIdle
}

func (p Phase) String() string { return string(p) }

// SessionRequest describes one launch attempt. It is immutable once
// constructed and consumed by the remote session service call.
type SessionRequest struct {
	// AttemptID is a client-generated idempotency key for the attempt.
	AttemptID uuid.UUID
	// TitleID references the title in the remote catalog.
	TitleID string
	// StoreID references the store/catalog the title belongs to.
	StoreID string
	// Profile is the resolved quality profile for the attempt.
	Profile QualityProfile
	// RequestedAt is when the attempt was assembled.
	RequestedAt time.Time
}

// SessionHandle identifies a remote session once the service has
// acknowledged a request. Owned exclusively by the lifecycle controller.
type SessionHandle struct {
	// SessionID is the opaque identifier assigned by the remote service.
	SessionID string
	// ServerAddress is the assigned streaming server, once known.
	ServerAddress string
	// AcceleratorClass is the assigned GPU class, once known.
	AcceleratorClass string
	// CreatedAt is when the remote service acknowledged the request.
	CreatedAt time.Time
}

// RemotePhase is the remote session service's view of a session.
type RemotePhase string

const (
	// RemotePhaseQueued means the session is waiting for capacity.
	RemotePhaseQueued RemotePhase = "queued"
	// RemotePhaseProvisioning means a server is being prepared.
	RemotePhaseProvisioning RemotePhase = "provisioning"
	// RemotePhaseReady means the session can accept a transport connection.
	RemotePhaseReady RemotePhase = "ready"
	// RemotePhaseError means the remote session failed.
	RemotePhaseError RemotePhase = "error"
)

// ReadyInfo is returned by the remote service once a session reaches the
// ready phase. It carries everything the transport engine needs to connect.
type ReadyInfo struct {
	Phase            RemotePhase `json:"phase"`
	ServerAddress    string      `json:"server_address"`
	AcceleratorClass string      `json:"accelerator_class"`
	// TransportURL is the websocket endpoint for the transport control
	// channel.
	TransportURL string `json:"transport_url"`
	// TransportTicket is a one-shot token authorising the transport
	// connection.
	TransportTicket string `json:"transport_ticket"`
}

// StatsSample is one snapshot of transport performance. Samples are
// ephemeral: a new sample supersedes the prior one and nothing persists
// them.
type StatsSample struct {
	FrameRate      float64   `json:"frame_rate"`
	LatencyMs      float64   `json:"latency_ms"`
	BitrateKbps    int       `json:"bitrate_kbps"`
	PacketLoss     float64   `json:"packet_loss"`
	Width          int       `json:"width"`
	Height         int       `json:"height"`
	Codec          string    `json:"codec"`
	DecoderCPU     float64   `json:"decoder_cpu_percent,omitempty"`
	DecoderRSSMB   float64   `json:"decoder_rss_mb,omitempty"`
	SampledAt      time.Time `json:"sampled_at"`
}

// Resolution returns the negotiated resolution as "WxH", or "" when the
// sample carries none.
func (s StatsSample) Resolution() string {
	if s.Width == 0 && s.Height == 0 {
		return ""
	}
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}
