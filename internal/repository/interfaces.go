// Package repository provides data access implementations for the catalog
// cache.
package repository

import (
	"context"

	"github.com/jmylchreest/nimbus/internal/models"
)

// TitleRepository defines data access for cached catalog titles.
type TitleRepository interface {
	// Upsert creates the title or updates the existing row matched by
	// store and remote id.
	Upsert(ctx context.Context, title *models.Title) error
	// GetByID retrieves a title by primary key; nil when not found.
	GetByID(ctx context.Context, id models.ULID) (*models.Title, error)
	// GetByRemoteID retrieves a title by its storefront identity; nil
	// when not found.
	GetByRemoteID(ctx context.Context, storeID, remoteID string) (*models.Title, error)
	// List returns the titles of a store ordered by name.
	List(ctx context.Context, storeID string) ([]*models.Title, error)
	// Search returns titles of a store whose name contains query,
	// case-insensitively.
	Search(ctx context.Context, storeID, query string) ([]*models.Title, error)
	// DeleteMissing removes titles of a store whose remote id is not in
	// keep. Used after a refresh to drop delisted titles.
	DeleteMissing(ctx context.Context, storeID string, keep []string) (int64, error)
	// Count returns the number of titles cached for a store.
	Count(ctx context.Context, storeID string) (int64, error)
}
