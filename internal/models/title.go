package models

import (
	"time"

	"gorm.io/gorm"
)

// Title is one playable entry in the local catalog cache. The cache is a
// read-through copy of the storefront catalog; the storefront remains the
// source of truth and entries are replaced wholesale on refresh.
type Title struct {
	ID ULID `gorm:"primaryKey;type:text" json:"id"`

	// StoreID references the store/catalog this title belongs to.
	StoreID string `gorm:"index;not null" json:"store_id"`
	// RemoteID is the storefront's identifier, used in session requests.
	RemoteID string `gorm:"uniqueIndex:idx_titles_store_remote;not null" json:"remote_id"`
	Name     string `gorm:"uniqueIndex:idx_titles_store_remote;not null" json:"name"`

	Publisher  string `json:"publisher,omitempty"`
	ArtworkURL string `json:"artwork_url,omitempty"`
	// SupportedCodecs is a comma-separated list of codecs the title's
	// streaming images support.
	SupportedCodecs string `json:"supported_codecs,omitempty"`
	// MaxFrameRate is the highest frame rate the title is streamable at.
	MaxFrameRate int `json:"max_frame_rate,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the table name used by GORM.
func (Title) TableName() string { return "titles" }

// BeforeCreate assigns a ULID primary key when none is set.
func (t *Title) BeforeCreate(_ *gorm.DB) error {
	if t.ID.IsZero() {
		t.ID = NewULID()
	}
	return nil
}

// Validate checks required fields.
func (t *Title) Validate() error {
	if t.RemoteID == "" {
		return ErrTitleIDRequired
	}
	if t.Name == "" {
		return ErrTitleNameRequired
	}
	if t.StoreID == "" {
		return ErrStoreIDRequired
	}
	return nil
}
