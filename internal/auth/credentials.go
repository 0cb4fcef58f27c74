// Package auth provides credential retrieval for the remote session
// service. It does not implement an auth flow; tokens are provisioned out
// of band and read from configuration or a token file.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrNoCredential is returned when no usable credential is available.
var ErrNoCredential = errors.New("no valid credential available")

// Credential is a bearer token for the remote session service.
type Credential struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Valid reports whether the credential is present and unexpired.
func (c Credential) Valid() bool {
	if c.Token == "" {
		return false
	}
	if !c.ExpiresAt.IsZero() && time.Now().After(c.ExpiresAt) {
		return false
	}
	return true
}

// Source yields the current credential. Implementations must not cache
// stale tokens past expiry.
type Source interface {
	// Credential returns the current credential or ErrNoCredential.
	Credential(ctx context.Context) (Credential, error)
}

// FileSource reads a credential from a JSON token file, falling back to an
// inline token. The file is re-read when its modification time changes so a
// refreshed token is picked up without a restart.
type FileSource struct {
	path   string
	inline string

	mu      sync.Mutex
	cached  Credential
	modTime time.Time
}

// NewFileSource creates a credential source backed by path. Either path or
// inline may be empty.
func NewFileSource(path, inline string) *FileSource {
	return &FileSource{path: path, inline: strings.TrimSpace(inline)}
}

// Credential implements Source.
func (s *FileSource) Credential(_ context.Context) (Credential, error) {
	if s.path != "" {
		cred, err := s.read()
		if err == nil && cred.Valid() {
			return cred, nil
		}
		if err != nil && s.inline == "" {
			return Credential{}, fmt.Errorf("%w: %v", ErrNoCredential, err)
		}
	}

	if s.inline != "" {
		cred := Credential{Token: s.inline}
		return cred, nil
	}

	return Credential{}, ErrNoCredential
}

// read loads the token file, reusing the cached parse when the file is
// unchanged.
func (s *FileSource) read() (Credential, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return Credential{}, fmt.Errorf("stat token file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if info.ModTime().Equal(s.modTime) && s.cached.Token != "" {
		return s.cached, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return Credential{}, fmt.Errorf("reading token file: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		// Plain-text token files hold just the token string.
		cred = Credential{Token: strings.TrimSpace(string(data))}
	}
	if cred.Token == "" {
		return Credential{}, ErrNoCredential
	}

	s.cached = cred
	s.modTime = info.ModTime()
	return cred, nil
}

// StaticSource returns a fixed credential; it exists for tests and for the
// inline-token configuration path.
type StaticSource struct {
	Cred Credential
}

// Credential implements Source.
func (s StaticSource) Credential(_ context.Context) (Credential, error) {
	if !s.Cred.Valid() {
		return Credential{}, ErrNoCredential
	}
	return s.Cred, nil
}
