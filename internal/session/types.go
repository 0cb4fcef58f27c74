// Package session implements the streaming-session lifecycle: the phase
// state machine that turns a "play this title" action into a live,
// monitored, cleanly-terminable remote session.
//
// The package owns no transport or service wiring of its own; it drives
// collaborators through the interfaces declared here and guarantees that
// every resource acquired during an attempt is released exactly once,
// whichever way the attempt ends.
package session

import (
	"context"

	"github.com/jmylchreest/nimbus/internal/auth"
	"github.com/jmylchreest/nimbus/internal/models"
)

// ReleaseFunc releases one acquired resource. Implementations must be safe
// to call from the teardown path.
type ReleaseFunc func()

// SessionService is the remote session service the controller negotiates
// with.
type SessionService interface {
	// StartSession asks the service to allocate a session for the request.
	StartSession(ctx context.Context, req *models.SessionRequest, cred auth.Credential) (*models.SessionHandle, error)

	// AwaitReady blocks until the remote session reaches the ready phase
	// or errors. The service bounds the wait; ctx is the controller's
	// cancellation signal.
	AwaitReady(ctx context.Context, sessionID string, cred auth.Credential) (*models.ReadyInfo, error)

	// StopSession releases the remote session.
	StopSession(ctx context.Context, sessionID string, cred auth.Credential) error

	// CancelAwait interrupts an in-flight AwaitReady poll loop.
	// Best-effort; failures are logged, not fatal.
	CancelAwait()
}

// TransportEngine is the real-time audio/video/input subsystem.
type TransportEngine interface {
	// Initialize connects the transport to a ready remote session and
	// starts delivery into mountPoint.
	Initialize(ctx context.Context, ready *models.ReadyInfo, cred auth.Credential, mountPoint string) error

	// Sample returns the latest transport statistics, or false when no
	// sample is available.
	Sample() (*models.StatsSample, bool)

	// Stop halts delivery and releases the transport connection.
	Stop()

	// AttachInputCapture begins forwarding input from the given surface
	// and returns the release action for it.
	AttachInputCapture(surface string) (ReleaseFunc, error)
}

// PresenceReporter broadcasts coarse session state to an external status
// service. Implementations must be non-blocking and swallow their own
// errors; the lifecycle never waits on presence.
type PresenceReporter interface {
	ReportQueued(title string)
	ReportPlaying(title, titleID string)
	ReportIdle()
}

// StatsSink receives transport samples for display. A new sample
// supersedes the prior one.
type StatsSink interface {
	Push(sample models.StatsSample)
}

// TitleSelection identifies the title a launch attempt is for.
type TitleSelection struct {
	// ID is the storefront's title identifier.
	ID string
	// Name is the display name, used for presence reporting.
	Name string
	// StoreID is the store/catalog the title belongs to.
	StoreID string
}

// PhaseListener observes controller phase transitions.
type PhaseListener func(from, to models.Phase)
