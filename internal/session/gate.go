package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jmylchreest/nimbus/internal/auth"
	"github.com/jmylchreest/nimbus/internal/models"
)

// RequestGate validates launch preconditions and assembles a session
// request from a title selection and a quality profile. It retrieves (but
// does not cache) the current credential and mutates no shared state.
type RequestGate struct {
	creds auth.Source
}

// NewRequestGate creates a gate backed by the given credential source.
func NewRequestGate(creds auth.Source) *RequestGate {
	return &RequestGate{creds: creds}
}

// Build produces an immutable SessionRequest for the attempt, or fails
// with ErrNotAuthenticated when no valid credential is available.
func (g *RequestGate) Build(ctx context.Context, sel TitleSelection, profile models.QualityProfile) (*models.SessionRequest, auth.Credential, error) {
	cred, err := g.creds.Credential(ctx)
	if err != nil {
		return nil, auth.Credential{}, fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}
	if !cred.Valid() {
		return nil, auth.Credential{}, ErrNotAuthenticated
	}

	if sel.ID == "" {
		return nil, auth.Credential{}, models.ErrTitleIDRequired
	}
	if err := profile.Validate(); err != nil {
		return nil, auth.Credential{}, fmt.Errorf("invalid quality profile: %w", err)
	}

	req := &models.SessionRequest{
		AttemptID:   uuid.New(),
		TitleID:     sel.ID,
		StoreID:     sel.StoreID,
		Profile:     profile,
		RequestedAt: time.Now(),
	}
	return req, cred, nil
}
