// Package presence reports coarse player activity to the social presence
// service. Reports are fire-and-forget: a slow or dead presence service
// never delays or fails a launch, cancel, or exit.
package presence

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jmylchreest/nimbus/internal/auth"
	"github.com/jmylchreest/nimbus/internal/config"
)

// Activity states published to the presence service.
const (
	ActivityIdle    = "idle"
	ActivityQueued  = "queued"
	ActivityPlaying = "playing"
)

// Reporter publishes activity updates. Each report runs in its own
// goroutine with its own timeout; errors are logged at debug and dropped.
// It satisfies session.PresenceReporter.
type Reporter struct {
	baseURL string
	timeout time.Duration
	creds   auth.Source
	client  *http.Client
	logger  *slog.Logger

	wg sync.WaitGroup
}

// NewReporter creates a reporter. An empty base URL disables reporting;
// all methods become no-ops.
func NewReporter(cfg config.PresenceConfig, creds auth.Source, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Reporter{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: timeout,
		creds:   creds,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With(slog.String("component", "presence")),
	}
}

type activityReport struct {
	Activity   string    `json:"activity"`
	Title      string    `json:"title,omitempty"`
	TitleID    string    `json:"title_id,omitempty"`
	ReportedAt time.Time `json:"reported_at"`
}

// ReportQueued publishes that the player is waiting for a session.
func (r *Reporter) ReportQueued(title string) {
	r.publish(activityReport{Activity: ActivityQueued, Title: title})
}

// ReportPlaying publishes that the player is in a streaming session.
func (r *Reporter) ReportPlaying(title, titleID string) {
	r.publish(activityReport{Activity: ActivityPlaying, Title: title, TitleID: titleID})
}

// ReportIdle publishes that the player has no session.
func (r *Reporter) ReportIdle() {
	r.publish(activityReport{Activity: ActivityIdle})
}

// Flush waits for in-flight reports, bounded by ctx. Used on shutdown so
// a final idle report has a chance to land.
func (r *Reporter) Flush(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (r *Reporter) publish(report activityReport) {
	if r.baseURL == "" {
		return
	}
	report.ReportedAt = time.Now()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		if err := r.send(ctx, report); err != nil {
			r.logger.Debug("presence report dropped",
				slog.String("activity", report.Activity),
				slog.String("error", err.Error()))
		}
	}()
}

func (r *Reporter) send(ctx context.Context, report activityReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, r.baseURL+"/v1/presence", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if r.creds != nil {
		if cred, err := r.creds.Credential(ctx); err == nil && cred.Token != "" {
			req.Header.Set("Authorization", "Bearer "+cred.Token)
		}
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return nil
}
