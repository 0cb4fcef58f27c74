// Package catalog maintains the local cache of playable titles. It fetches
// the storefront catalog over HTTP, persists it through the title
// repository, and refreshes it on a cron schedule.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jmylchreest/nimbus/internal/auth"
	"github.com/jmylchreest/nimbus/internal/config"
	"github.com/jmylchreest/nimbus/internal/models"
	"github.com/jmylchreest/nimbus/internal/repository"
	"github.com/jmylchreest/nimbus/internal/version"
	"github.com/jmylchreest/nimbus/pkg/httpclient"
)

// Service owns catalog fetching and the refresh schedule.
type Service struct {
	storeURL string
	storeID  string
	refresh  string

	http   *httpclient.Client
	repo   repository.TitleRepository
	creds  auth.Source
	logger *slog.Logger

	mu          sync.Mutex
	cron        *cron.Cron
	lastRefresh time.Time
}

// NewService creates a catalog service.
func NewService(cfg config.CatalogConfig, repo repository.TitleRepository, creds auth.Source, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "catalog"))

	return &Service{
		storeURL: strings.TrimRight(cfg.StoreURL, "/"),
		storeID:  cfg.StoreID,
		refresh:  cfg.RefreshCron,
		http: httpclient.New(httpclient.Config{
			UserAgent: version.UserAgent(),
			Logger:    logger,
		}),
		repo:   repo,
		creds:  creds,
		logger: logger,
	}
}

// storefrontTitle is the wire shape of one catalog entry.
type storefrontTitle struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Publisher       string   `json:"publisher"`
	ArtworkURL      string   `json:"artwork_url"`
	SupportedCodecs []string `json:"supported_codecs"`
	MaxFrameRate    int      `json:"max_frame_rate"`
}

type storefrontCatalog struct {
	Titles []storefrontTitle `json:"titles"`
}

// Start begins scheduled refreshes. A missing cron expression disables
// scheduling; Refresh stays available for manual use.
func (s *Service) Start() error {
	if s.refresh == "" {
		s.logger.Info("catalog refresh schedule disabled")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(s.refresh, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if _, err := s.Refresh(ctx); err != nil {
			s.logger.Warn("scheduled catalog refresh failed",
				slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", s.refresh, err)
	}

	c.Start()
	s.cron = c
	s.logger.Info("catalog refresh scheduled", slog.String("cron", s.refresh))
	return nil
}

// Stop halts scheduled refreshes and waits for a running one to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}

// Refresh fetches the storefront catalog and reconciles the local cache:
// upsert every listed title, then drop titles the store no longer lists.
// It returns the number of titles now cached.
func (s *Service) Refresh(ctx context.Context) (int, error) {
	if s.storeURL == "" {
		return 0, fmt.Errorf("no store url configured")
	}

	listing, err := s.fetch(ctx)
	if err != nil {
		return 0, err
	}

	keep := make([]string, 0, len(listing.Titles))
	for _, entry := range listing.Titles {
		title := &models.Title{
			StoreID:         s.storeID,
			RemoteID:        entry.ID,
			Name:            entry.Name,
			Publisher:       entry.Publisher,
			ArtworkURL:      entry.ArtworkURL,
			SupportedCodecs: strings.Join(entry.SupportedCodecs, ","),
			MaxFrameRate:    entry.MaxFrameRate,
		}
		if err := s.repo.Upsert(ctx, title); err != nil {
			s.logger.Warn("skipping catalog entry",
				slog.String("remote_id", entry.ID),
				slog.String("error", err.Error()))
			continue
		}
		keep = append(keep, entry.ID)
	}

	removed, err := s.repo.DeleteMissing(ctx, s.storeID, keep)
	if err != nil {
		return 0, fmt.Errorf("pruning delisted titles: %w", err)
	}

	s.mu.Lock()
	s.lastRefresh = time.Now()
	s.mu.Unlock()

	s.logger.Info("catalog refreshed",
		slog.String("store_id", s.storeID),
		slog.Int("titles", len(keep)),
		slog.Int64("removed", removed))
	return len(keep), nil
}

// LastRefresh returns when the catalog last refreshed successfully; zero
// when it never has.
func (s *Service) LastRefresh() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRefresh
}

// List returns the cached titles of the configured store.
func (s *Service) List(ctx context.Context) ([]*models.Title, error) {
	return s.repo.List(ctx, s.storeID)
}

// Search returns cached titles matching query.
func (s *Service) Search(ctx context.Context, query string) ([]*models.Title, error) {
	return s.repo.Search(ctx, s.storeID, query)
}

// Resolve finds a title by remote id first, then by exact name. Used to
// turn a user-supplied reference into a launchable title.
func (s *Service) Resolve(ctx context.Context, ref string) (*models.Title, error) {
	title, err := s.repo.GetByRemoteID(ctx, s.storeID, ref)
	if err != nil {
		return nil, err
	}
	if title != nil {
		return title, nil
	}

	titles, err := s.repo.List(ctx, s.storeID)
	if err != nil {
		return nil, err
	}
	for _, t := range titles {
		if strings.EqualFold(t.Name, ref) {
			return t, nil
		}
	}
	return nil, fmt.Errorf("title %q not found in catalog", ref)
}

func (s *Service) fetch(ctx context.Context) (*storefrontCatalog, error) {
	url := fmt.Sprintf("%s/v1/stores/%s/titles", s.storeURL, s.storeID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if s.creds != nil {
		if cred, err := s.creds.Credential(ctx); err == nil && cred.Token != "" {
			req.Header.Set("Authorization", "Bearer "+cred.Token)
		}
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetching catalog: status %d", resp.StatusCode)
	}

	var listing storefrontCatalog
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}
	return &listing, nil
}
