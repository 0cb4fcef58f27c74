package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmylchreest/nimbus/internal/auth"
	"github.com/jmylchreest/nimbus/internal/models"
)

func TestGateBuildsRequest(t *testing.T) {
	gate := NewRequestGate(auth.StaticSource{Cred: validCred()})

	req, cred, err := gate.Build(context.Background(), testSelection(), testProfile())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if cred.Token != "tok" {
		t.Fatalf("credential token = %q", cred.Token)
	}
	if req.TitleID != "title-1" || req.StoreID != "default" {
		t.Fatalf("request = %+v", req)
	}
	if req.AttemptID.String() == "" {
		t.Fatal("attempt id missing")
	}
	if req.Profile.Name != "balanced" {
		t.Fatalf("profile = %s, want balanced", req.Profile.Name)
	}
	if req.RequestedAt.IsZero() {
		t.Fatal("requested at not set")
	}
}

func TestGateAttemptIDsAreUnique(t *testing.T) {
	gate := NewRequestGate(auth.StaticSource{Cred: validCred()})

	a, _, err := gate.Build(context.Background(), testSelection(), testProfile())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	b, _, err := gate.Build(context.Background(), testSelection(), testProfile())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if a.AttemptID == b.AttemptID {
		t.Fatalf("attempt ids collided: %s", a.AttemptID)
	}
}

func TestGateRejectsMissingCredential(t *testing.T) {
	gate := NewRequestGate(auth.StaticSource{})

	_, _, err := gate.Build(context.Background(), testSelection(), testProfile())
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("error = %v, want ErrNotAuthenticated", err)
	}
}

func TestGateRejectsExpiredCredential(t *testing.T) {
	expired := auth.Credential{Token: "tok", ExpiresAt: time.Now().Add(-time.Minute)}
	gate := NewRequestGate(auth.StaticSource{Cred: expired})

	_, _, err := gate.Build(context.Background(), testSelection(), testProfile())
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("error = %v, want ErrNotAuthenticated", err)
	}
}

func TestGateRejectsEmptyTitle(t *testing.T) {
	gate := NewRequestGate(auth.StaticSource{Cred: validCred()})

	_, _, err := gate.Build(context.Background(), TitleSelection{}, testProfile())
	if !errors.Is(err, models.ErrTitleIDRequired) {
		t.Fatalf("error = %v, want ErrTitleIDRequired", err)
	}
}

func TestGateRejectsInvalidProfile(t *testing.T) {
	gate := NewRequestGate(auth.StaticSource{Cred: validCred()})

	bad := testProfile()
	bad.FrameRate = 0
	_, _, err := gate.Build(context.Background(), testSelection(), bad)
	if !errors.Is(err, models.ErrInvalidFrameRate) {
		t.Fatalf("error = %v, want ErrInvalidFrameRate", err)
	}
}
