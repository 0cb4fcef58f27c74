package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jmylchreest/nimbus/internal/config"
	"github.com/jmylchreest/nimbus/internal/models"
	"github.com/jmylchreest/nimbus/internal/repository"
)

func setupRepo(t *testing.T) repository.TitleRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Title{}))
	return repository.NewTitleRepository(db)
}

func storefront(t *testing.T, titles *atomic.Value) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/stores/default/titles", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(storefrontCatalog{
			Titles: titles.Load().([]storefrontTitle),
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRefreshPopulatesCache(t *testing.T) {
	var titles atomic.Value
	titles.Store([]storefrontTitle{
		{ID: "rem-1", Name: "Hyper Drift", Publisher: "Acme Games", SupportedCodecs: []string{"h264", "hevc"}, MaxFrameRate: 120},
		{ID: "rem-2", Name: "Zero Gravity", Publisher: "Orbital"},
	})
	srv := storefront(t, &titles)

	repo := setupRepo(t)
	svc := NewService(config.CatalogConfig{StoreURL: srv.URL, StoreID: "default"}, repo, nil, nil)

	n, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, svc.LastRefresh().IsZero())

	cached, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, cached, 2)
	assert.Equal(t, "Hyper Drift", cached[0].Name)
	assert.Equal(t, "h264,hevc", cached[0].SupportedCodecs)
}

func TestRefreshPrunesDelistedTitles(t *testing.T) {
	var titles atomic.Value
	titles.Store([]storefrontTitle{
		{ID: "rem-1", Name: "Hyper Drift"},
		{ID: "rem-2", Name: "Zero Gravity"},
	})
	srv := storefront(t, &titles)

	repo := setupRepo(t)
	svc := NewService(config.CatalogConfig{StoreURL: srv.URL, StoreID: "default"}, repo, nil, nil)

	_, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	// The store delists one title; the next refresh drops it.
	titles.Store([]storefrontTitle{{ID: "rem-1", Name: "Hyper Drift"}})
	n, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cached, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, "rem-1", cached[0].RemoteID)
}

func TestRefreshFailsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc := NewService(config.CatalogConfig{StoreURL: srv.URL, StoreID: "default"}, setupRepo(t), nil, nil)
	_, err := svc.Refresh(context.Background())
	require.Error(t, err)
}

func TestResolve(t *testing.T) {
	var titles atomic.Value
	titles.Store([]storefrontTitle{
		{ID: "rem-1", Name: "Hyper Drift"},
		{ID: "rem-2", Name: "Zero Gravity"},
	})
	srv := storefront(t, &titles)

	svc := NewService(config.CatalogConfig{StoreURL: srv.URL, StoreID: "default"}, setupRepo(t), nil, nil)
	_, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	byID, err := svc.Resolve(context.Background(), "rem-2")
	require.NoError(t, err)
	assert.Equal(t, "Zero Gravity", byID.Name)

	byName, err := svc.Resolve(context.Background(), "hyper drift")
	require.NoError(t, err)
	assert.Equal(t, "rem-1", byName.RemoteID)

	_, err = svc.Resolve(context.Background(), "does-not-exist")
	require.Error(t, err)
}

func TestStartRejectsBadCron(t *testing.T) {
	svc := NewService(config.CatalogConfig{
		StoreURL:    "http://store.example.com",
		StoreID:     "default",
		RefreshCron: "not a cron",
	}, setupRepo(t), nil, nil)

	require.Error(t, svc.Start())
}

func TestStartStopWithSchedule(t *testing.T) {
	svc := NewService(config.CatalogConfig{
		StoreURL:    "http://store.example.com",
		StoreID:     "default",
		RefreshCron: "0 */6 * * *",
	}, setupRepo(t), nil, nil)

	require.NoError(t, svc.Start())
	require.NoError(t, svc.Start()) // idempotent
	svc.Stop()
	svc.Stop()
}
