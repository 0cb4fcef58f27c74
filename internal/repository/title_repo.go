package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/jmylchreest/nimbus/internal/models"
)

// titleRepository implements TitleRepository using GORM.
type titleRepository struct {
	db *gorm.DB
}

// NewTitleRepository creates a new TitleRepository.
func NewTitleRepository(db *gorm.DB) TitleRepository {
	return &titleRepository{db: db}
}

// Upsert creates or updates a title keyed by store and remote id.
func (r *titleRepository) Upsert(ctx context.Context, title *models.Title) error {
	if err := title.Validate(); err != nil {
		return fmt.Errorf("validating title: %w", err)
	}

	existing, err := r.GetByRemoteID(ctx, title.StoreID, title.RemoteID)
	if err != nil {
		return err
	}
	if existing == nil {
		return r.db.WithContext(ctx).Create(title).Error
	}

	title.ID = existing.ID
	title.CreatedAt = existing.CreatedAt
	return r.db.WithContext(ctx).Save(title).Error
}

// GetByID retrieves a title by ID.
func (r *titleRepository) GetByID(ctx context.Context, id models.ULID) (*models.Title, error) {
	var title models.Title
	if err := r.db.WithContext(ctx).First(&title, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &title, nil
}

// GetByRemoteID retrieves a title by its storefront identity.
func (r *titleRepository) GetByRemoteID(ctx context.Context, storeID, remoteID string) (*models.Title, error) {
	var title models.Title
	err := r.db.WithContext(ctx).First(&title, "store_id = ? AND remote_id = ?", storeID, remoteID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &title, nil
}

// List returns all titles of a store ordered by name.
func (r *titleRepository) List(ctx context.Context, storeID string) ([]*models.Title, error) {
	var titles []*models.Title
	err := r.db.WithContext(ctx).
		Where("store_id = ?", storeID).
		Order("name ASC").
		Find(&titles).Error
	if err != nil {
		return nil, err
	}
	return titles, nil
}

// Search returns titles matching query by name.
func (r *titleRepository) Search(ctx context.Context, storeID, query string) ([]*models.Title, error) {
	var titles []*models.Title
	err := r.db.WithContext(ctx).
		Where("store_id = ? AND name LIKE ?", storeID, "%"+query+"%").
		Order("name ASC").
		Find(&titles).Error
	if err != nil {
		return nil, err
	}
	return titles, nil
}

// DeleteMissing removes titles of a store not present in keep.
func (r *titleRepository) DeleteMissing(ctx context.Context, storeID string, keep []string) (int64, error) {
	q := r.db.WithContext(ctx).Where("store_id = ?", storeID)
	if len(keep) > 0 {
		q = q.Where("remote_id NOT IN ?", keep)
	}
	result := q.Delete(&models.Title{})
	return result.RowsAffected, result.Error
}

// Count returns the number of titles cached for a store.
func (r *titleRepository) Count(ctx context.Context, storeID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Title{}).
		Where("store_id = ?", storeID).
		Count(&count).Error
	return count, err
}
