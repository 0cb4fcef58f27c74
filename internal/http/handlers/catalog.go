package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/nimbus/internal/catalog"
	"github.com/jmylchreest/nimbus/internal/models"
)

// CatalogHandler exposes the cached title catalog.
type CatalogHandler struct {
	service *catalog.Service
}

// NewCatalogHandler creates a catalog handler.
func NewCatalogHandler(service *catalog.Service) *CatalogHandler {
	return &CatalogHandler{service: service}
}

// TitleResponse is a catalog title in API responses.
type TitleResponse struct {
	ID              string `json:"id"`
	RemoteID        string `json:"remote_id"`
	StoreID         string `json:"store_id"`
	Name            string `json:"name"`
	Publisher       string `json:"publisher,omitempty"`
	ArtworkURL      string `json:"artwork_url,omitempty"`
	SupportedCodecs string `json:"supported_codecs,omitempty"`
	MaxFrameRate    int    `json:"max_frame_rate,omitempty"`
}

// ListTitlesInput is the input for the catalog listing endpoint.
type ListTitlesInput struct {
	Search string `query:"search" doc:"Filter titles by name"`
}

// ListTitlesOutput is the output for the catalog listing endpoint.
type ListTitlesOutput struct {
	Body struct {
		Titles      []TitleResponse `json:"titles"`
		LastRefresh *time.Time      `json:"last_refresh,omitempty"`
	}
}

// RefreshInput is the input for the catalog refresh endpoint.
type RefreshInput struct{}

// RefreshOutput is the output for the catalog refresh endpoint.
type RefreshOutput struct {
	Body struct {
		Titles int `json:"titles"`
	}
}

// Register registers the catalog routes with the API.
func (h *CatalogHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listTitles",
		Method:      "GET",
		Path:        "/api/v1/catalog",
		Summary:     "List cached catalog titles",
		Tags:        []string{"Catalog"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "refreshCatalog",
		Method:      "POST",
		Path:        "/api/v1/catalog/refresh",
		Summary:     "Refresh the catalog from the storefront",
		Tags:        []string{"Catalog"},
	}, h.Refresh)
}

// List returns cached titles, optionally filtered by name.
func (h *CatalogHandler) List(ctx context.Context, input *ListTitlesInput) (*ListTitlesOutput, error) {
	var (
		titles []*models.Title
		err    error
	)
	if input.Search != "" {
		titles, err = h.service.Search(ctx, input.Search)
	} else {
		titles, err = h.service.List(ctx)
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list titles", err)
	}

	out := &ListTitlesOutput{}
	out.Body.Titles = make([]TitleResponse, 0, len(titles))
	for _, t := range titles {
		out.Body.Titles = append(out.Body.Titles, TitleResponse{
			ID:              t.ID.String(),
			RemoteID:        t.RemoteID,
			StoreID:         t.StoreID,
			Name:            t.Name,
			Publisher:       t.Publisher,
			ArtworkURL:      t.ArtworkURL,
			SupportedCodecs: t.SupportedCodecs,
			MaxFrameRate:    t.MaxFrameRate,
		})
	}
	if last := h.service.LastRefresh(); !last.IsZero() {
		out.Body.LastRefresh = &last
	}
	return out, nil
}

// Refresh fetches the storefront catalog now.
func (h *CatalogHandler) Refresh(ctx context.Context, _ *RefreshInput) (*RefreshOutput, error) {
	n, err := h.service.Refresh(ctx)
	if err != nil {
		return nil, huma.Error502BadGateway("catalog refresh failed", err)
	}
	out := &RefreshOutput{}
	out.Body.Titles = n
	return out, nil
}
