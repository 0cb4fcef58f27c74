package handlers

import (
	"context"
	"testing"
)

func TestHealthHandler_GetHealth(t *testing.T) {
	handler := NewHealthHandler("1.0.0")

	output, err := handler.GetHealth(context.Background(), &HealthInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output == nil {
		t.Fatal("expected non-nil output")
	}
	if output.Body.Status != "healthy" {
		t.Errorf("status = %q, want healthy", output.Body.Status)
	}
	if output.Body.Version != "1.0.0" {
		t.Errorf("version = %q, want 1.0.0", output.Body.Version)
	}
	if output.Body.SessionPhase != "idle" {
		t.Errorf("session phase = %q, want idle", output.Body.SessionPhase)
	}
	if output.Body.CPUCores <= 0 {
		t.Errorf("cpu cores = %d, want > 0", output.Body.CPUCores)
	}
}
