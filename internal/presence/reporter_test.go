package presence

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/nimbus/internal/auth"
	"github.com/jmylchreest/nimbus/internal/config"
)

func TestReportsAreDelivered(t *testing.T) {
	var mu sync.Mutex
	var reports []activityReport
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/v1/presence", r.URL.Path)

		var report activityReport
		require.NoError(t, json.NewDecoder(r.Body).Decode(&report))
		mu.Lock()
		reports = append(reports, report)
		gotAuth = r.Header.Get("Authorization")
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	creds := auth.StaticSource{Cred: auth.Credential{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}}
	r := NewReporter(config.PresenceConfig{BaseURL: srv.URL, Timeout: time.Second}, creds, nil)

	r.ReportQueued("Hyper Drift")
	r.ReportPlaying("Hyper Drift", "title-1")
	r.ReportIdle()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	r.Flush(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reports, 3)
	assert.Equal(t, "Bearer tok", gotAuth)

	activities := map[string]activityReport{}
	for _, rep := range reports {
		activities[rep.Activity] = rep
	}
	assert.Equal(t, "Hyper Drift", activities[ActivityQueued].Title)
	assert.Equal(t, "title-1", activities[ActivityPlaying].TitleID)
	assert.Empty(t, activities[ActivityIdle].Title)
}

func TestReportFailureDoesNotBlock(t *testing.T) {
	// Nothing listens on this port; every report fails.
	r := NewReporter(config.PresenceConfig{
		BaseURL: "http://127.0.0.1:1",
		Timeout: 50 * time.Millisecond,
	}, nil, nil)

	start := time.Now()
	r.ReportQueued("Hyper Drift")
	r.ReportIdle()
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Fatalf("reporting blocked the caller for %v", elapsed)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Flush(ctx)
}

func TestEmptyBaseURLDisablesReporting(t *testing.T) {
	r := NewReporter(config.PresenceConfig{}, nil, nil)
	r.ReportQueued("Hyper Drift")
	r.ReportPlaying("Hyper Drift", "title-1")
	r.ReportIdle()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	r.Flush(ctx)
}
