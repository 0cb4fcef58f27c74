package handlers

import (
	"context"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"gorm.io/gorm"

	"github.com/jmylchreest/nimbus/internal/models"
	"github.com/jmylchreest/nimbus/internal/session"
)

// HealthHandler handles the health check endpoint.
type HealthHandler struct {
	version    string
	startTime  time.Time
	controller *session.Controller
	db         *gorm.DB
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
	}
}

// WithController includes the session phase in health output.
func (h *HealthHandler) WithController(c *session.Controller) *HealthHandler {
	h.controller = c
	return h
}

// WithDB includes a database ping in health output.
func (h *HealthHandler) WithDB(db *gorm.DB) *HealthHandler {
	h.db = db
	return h
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status        string  `json:"status"`
	Timestamp     string  `json:"timestamp"`
	Version       string  `json:"version"`
	Uptime        string  `json:"uptime"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	SessionPhase  string  `json:"session_phase,omitempty"`
	CPUCores      int     `json:"cpu_cores"`
	Load1Min      float64 `json:"load_1min"`
	MemoryUsedPct float64 `json:"memory_used_pct"`
	Database      string  `json:"database,omitempty"`
}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// Register registers the health route with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth returns process health and system metrics.
func (h *HealthHandler) GetHealth(ctx context.Context, _ *HealthInput) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	resp := HealthResponse{
		Status:        "healthy",
		Timestamp:     now.UTC().Format(time.RFC3339),
		Version:       h.version,
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: uptime.Seconds(),
		CPUCores:      runtime.NumCPU(),
	}

	if avg, err := load.Avg(); err == nil {
		resp.Load1Min = avg.Load1
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		resp.MemoryUsedPct = vm.UsedPercent
	}

	if h.controller != nil {
		resp.SessionPhase = h.controller.Phase().String()
	} else {
		resp.SessionPhase = models.PhaseIdle.String()
	}

	if h.db != nil {
		resp.Database = "ok"
		if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			resp.Database = "error"
			resp.Status = "degraded"
		}
	}

	return &HealthOutput{Body: resp}, nil
}
