// Package gameservice implements the HTTP client for the remote session
// brokering service: starting sessions, polling readiness, and stopping
// sessions.
package gameservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jmylchreest/nimbus/internal/auth"
	"github.com/jmylchreest/nimbus/internal/config"
	"github.com/jmylchreest/nimbus/internal/models"
	"github.com/jmylchreest/nimbus/internal/version"
	"github.com/jmylchreest/nimbus/pkg/httpclient"
)

// Client talks to the session service API. It satisfies
// session.SessionService.
type Client struct {
	baseURL      string
	http         *httpclient.Client
	pollInterval time.Duration
	readyTimeout time.Duration
	logger       *slog.Logger

	// awaitMu guards the cancel func of the await-ready poll in flight.
	awaitMu     sync.Mutex
	cancelAwait context.CancelFunc
}

// New creates a session service client.
func New(cfg config.ServiceConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "gameservice"))

	hc := httpclient.New(httpclient.Config{
		Timeout:       cfg.Timeout,
		RetryAttempts: cfg.RetryAttempts,
		UserAgent:     version.UserAgent(),
		Logger:        logger,
	})

	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		http:         hc,
		pollInterval: cfg.ReadyPollInterval,
		readyTimeout: cfg.ReadyTimeout,
		logger:       logger,
	}
}

type startSessionBody struct {
	AttemptID string                `json:"attempt_id"`
	TitleID   string                `json:"title_id"`
	StoreID   string                `json:"store_id,omitempty"`
	Profile   models.QualityProfile `json:"profile"`
}

type startSessionResponse struct {
	SessionID        string `json:"session_id"`
	ServerAddress    string `json:"server_address,omitempty"`
	AcceleratorClass string `json:"accelerator_class,omitempty"`
}

// StartSession asks the service to create a session for the request. The
// attempt id makes the call idempotent server-side; a retried request with
// the same id returns the existing session.
func (c *Client) StartSession(ctx context.Context, req *models.SessionRequest, cred auth.Credential) (*models.SessionHandle, error) {
	body := startSessionBody{
		AttemptID: req.AttemptID.String(),
		TitleID:   req.TitleID,
		StoreID:   req.StoreID,
		Profile:   req.Profile,
	}

	var out startSessionResponse
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/v1/sessions", cred, body, &out); err != nil {
		return nil, err
	}
	if out.SessionID == "" {
		return nil, fmt.Errorf("service returned no session id")
	}

	c.logger.Info("session requested",
		slog.String("session_id", out.SessionID),
		slog.String("title_id", req.TitleID))

	return &models.SessionHandle{
		SessionID:        out.SessionID,
		ServerAddress:    out.ServerAddress,
		AcceleratorClass: out.AcceleratorClass,
		CreatedAt:        time.Now(),
	}, nil
}

// AwaitReady polls the session until the remote phase settles. It returns
// when the session is ready, errors out remotely, the poll times out, or
// ctx is canceled. CancelAwait interrupts the poll between requests.
func (c *Client) AwaitReady(ctx context.Context, sessionID string, cred auth.Credential) (*models.ReadyInfo, error) {
	if c.readyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.readyTimeout)
		defer cancel()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.awaitMu.Lock()
	c.cancelAwait = cancel
	c.awaitMu.Unlock()
	defer func() {
		c.awaitMu.Lock()
		c.cancelAwait = nil
		c.awaitMu.Unlock()
	}()

	interval := c.pollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		var info models.ReadyInfo
		err := c.doJSON(ctx, http.MethodGet, c.sessionURL(sessionID), cred, nil, &info)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}

		switch info.Phase {
		case models.RemotePhaseReady:
			return &info, nil
		case models.RemotePhaseError:
			return nil, fmt.Errorf("session %s failed server-side", sessionID)
		case models.RemotePhaseQueued, models.RemotePhaseProvisioning:
			c.logger.Debug("session not ready yet",
				slog.String("session_id", sessionID),
				slog.String("remote_phase", string(info.Phase)))
		default:
			return nil, fmt.Errorf("unknown remote phase %q for session %s", info.Phase, sessionID)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// StopSession releases the remote session. Stopping an unknown session is
// not an error; the service answers 404 and the resource is gone either
// way.
func (c *Client) StopSession(ctx context.Context, sessionID string, cred auth.Credential) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.sessionURL(sessionID), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.authorize(req, cred)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("stopping session %s: %w", sessionID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300, resp.StatusCode == http.StatusNotFound:
		return nil
	default:
		return fmt.Errorf("stopping session %s: unexpected status %d", sessionID, resp.StatusCode)
	}
}

// CancelAwait interrupts an in-progress AwaitReady poll, if any. Safe to
// call at any time from any goroutine.
func (c *Client) CancelAwait() {
	c.awaitMu.Lock()
	cancel := c.cancelAwait
	c.awaitMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Client) sessionURL(sessionID string) string {
	return c.baseURL + "/v1/sessions/" + sessionID
}

func (c *Client) authorize(req *http.Request, cred auth.Credential) {
	if cred.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cred.Token)
	}
}

func (c *Client) doJSON(ctx context.Context, method, url string, cred auth.Credential, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req, cred)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		msg := strings.TrimSpace(string(payload))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d: %s", method, url, resp.StatusCode, msg)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
