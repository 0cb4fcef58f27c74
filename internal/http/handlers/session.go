// Package handlers provides the control API handlers.
package handlers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/nimbus/internal/catalog"
	"github.com/jmylchreest/nimbus/internal/models"
	"github.com/jmylchreest/nimbus/internal/session"
)

// SessionHandler exposes the session lifecycle over the control API.
type SessionHandler struct {
	controller *session.Controller
	catalog    *catalog.Service
	profiles   map[string]models.QualityProfile
	defProfile string
	logger     *slog.Logger
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(controller *session.Controller, cat *catalog.Service, profiles map[string]models.QualityProfile, defaultProfile string, logger *slog.Logger) *SessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionHandler{
		controller: controller,
		catalog:    cat,
		profiles:   profiles,
		defProfile: defaultProfile,
		logger:     logger,
	}
}

// LaunchInput is the request to start a session.
type LaunchInput struct {
	Body struct {
		// Title is a catalog title id or exact name.
		Title string `json:"title" minLength:"1" doc:"Catalog title id or name"`
		// Profile names a quality preset; empty uses the default.
		Profile string `json:"profile,omitempty" doc:"Quality preset name"`
	}
}

// LaunchOutput acknowledges an accepted launch.
type LaunchOutput struct {
	Status int
	Body   SessionStatusBody
}

// SessionStatusBody is the session snapshot in API responses.
type SessionStatusBody struct {
	Phase   string                `json:"phase"`
	Title   string                `json:"title,omitempty"`
	TitleID string                `json:"title_id,omitempty"`
	Handle  *models.SessionHandle `json:"handle,omitempty"`
}

// StatusInput is the input for the session status endpoint.
type StatusInput struct{}

// StatusOutput is the output for the session status endpoint.
type StatusOutput struct {
	Body SessionStatusBody
}

// CancelInput is the input for the cancel endpoint.
type CancelInput struct{}

// CancelOutput is the output for the cancel endpoint.
type CancelOutput struct {
	Body SessionStatusBody
}

// ExitInput is the input for the exit endpoint.
type ExitInput struct{}

// ExitOutput is the output for the exit endpoint.
type ExitOutput struct {
	Body SessionStatusBody
}

// Register registers the session routes with the API.
func (h *SessionHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "launchSession",
		Method:        "POST",
		Path:          "/api/v1/session/launch",
		Summary:       "Launch a streaming session",
		Description:   "Starts a session for a catalog title. The launch proceeds asynchronously; follow progress via the status endpoint or the event stream.",
		Tags:          []string{"Session"},
		DefaultStatus: 202,
	}, h.Launch)

	huma.Register(api, huma.Operation{
		OperationID: "getSession",
		Method:      "GET",
		Path:        "/api/v1/session",
		Summary:     "Current session status",
		Tags:        []string{"Session"},
	}, h.Status)

	huma.Register(api, huma.Operation{
		OperationID: "cancelSession",
		Method:      "POST",
		Path:        "/api/v1/session/cancel",
		Summary:     "Cancel a launch in progress",
		Tags:        []string{"Session"},
	}, h.Cancel)

	huma.Register(api, huma.Operation{
		OperationID: "exitSession",
		Method:      "POST",
		Path:        "/api/v1/session/exit",
		Summary:     "Exit the established session",
		Tags:        []string{"Session"},
	}, h.Exit)
}

// Launch resolves the title and starts the session in the background.
func (h *SessionHandler) Launch(ctx context.Context, input *LaunchInput) (*LaunchOutput, error) {
	if phase := h.controller.Phase(); phase != models.PhaseIdle {
		return nil, huma.Error409Conflict("a session is already active")
	}

	title, err := h.catalog.Resolve(ctx, input.Body.Title)
	if err != nil {
		return nil, huma.Error404NotFound("title not found", err)
	}

	profileName := input.Body.Profile
	if profileName == "" {
		profileName = h.defProfile
	}
	profile, err := models.ResolveProfile(h.profiles, profileName)
	if err != nil {
		return nil, huma.Error400BadRequest("unknown quality profile", err)
	}

	sel := session.TitleSelection{
		ID:      title.RemoteID,
		Name:    title.Name,
		StoreID: title.StoreID,
	}

	// Launch negotiates with the remote service and can take tens of
	// seconds; the API answers immediately and the caller follows the
	// phase via the event stream.
	go func() {
		if err := h.controller.Launch(context.Background(), sel, profile); err != nil {
			h.logger.Warn("launch finished with error",
				slog.String("title_id", sel.ID),
				slog.String("error", err.Error()))
		}
	}()

	return &LaunchOutput{
		Status: 202,
		Body: SessionStatusBody{
			Phase:   models.PhaseRequesting.String(),
			Title:   sel.Name,
			TitleID: sel.ID,
		},
	}, nil
}

// Status returns the current session snapshot.
func (h *SessionHandler) Status(ctx context.Context, _ *StatusInput) (*StatusOutput, error) {
	return &StatusOutput{Body: statusBody(h.controller.Status())}, nil
}

// Cancel aborts a launch in progress.
func (h *SessionHandler) Cancel(ctx context.Context, _ *CancelInput) (*CancelOutput, error) {
	if err := h.controller.Cancel(ctx); err != nil {
		if errors.Is(err, session.ErrInvalidPhase) {
			return nil, huma.Error409Conflict("no launch in progress", err)
		}
		return nil, huma.Error500InternalServerError("cancel failed", err)
	}
	return &CancelOutput{Body: statusBody(h.controller.Status())}, nil
}

// Exit ends the established session.
func (h *SessionHandler) Exit(ctx context.Context, _ *ExitInput) (*ExitOutput, error) {
	if err := h.controller.Exit(ctx); err != nil {
		if errors.Is(err, session.ErrInvalidPhase) {
			return nil, huma.Error409Conflict("no established session", err)
		}
		return nil, huma.Error500InternalServerError("exit failed", err)
	}
	return &ExitOutput{Body: statusBody(h.controller.Status())}, nil
}

func statusBody(st session.Status) SessionStatusBody {
	return SessionStatusBody{
		Phase:   st.Phase.String(),
		Title:   st.Title,
		TitleID: st.TitleID,
		Handle:  st.Handle,
	}
}
