package session

import "errors"

// Error taxonomy for the session lifecycle. Errors from early stages (no
// resources acquired) are reported and discarded; errors from later stages
// always route through teardown before surfacing, so the observable phase
// is Idle by the time the error reaches the caller.
var (
	// ErrNotAuthenticated means no valid credential was available; the
	// attempt aborts before any remote call.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrSessionAlreadyActive is the reentrancy guard: launch was called
	// while the phase was not Idle.
	ErrSessionAlreadyActive = errors.New("session already active")

	// ErrSessionRequestFailed means the remote service rejected the
	// request. No resources were acquired; returning to Idle is safe.
	ErrSessionRequestFailed = errors.New("session request failed")

	// ErrSessionNotReady means await-ready failed or reported an error
	// phase. The remote session may exist, so full teardown runs.
	ErrSessionNotReady = errors.New("session not ready")

	// ErrTransportInitFailed means the video/input path failed after a
	// valid session exists. The session is kept alive; the user may retry
	// or exit manually.
	ErrTransportInitFailed = errors.New("transport initialization failed")

	// ErrLaunchCanceled means cancel was requested while the attempt was
	// still negotiating; cleanup ran and the phase is Idle.
	ErrLaunchCanceled = errors.New("launch canceled")

	// ErrInvalidPhase means the operation is not valid in the current
	// phase.
	ErrInvalidPhase = errors.New("operation not valid in current phase")
)
