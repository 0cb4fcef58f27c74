package models

import "errors"

// Common validation errors for models.
var (
	// ErrProfileNameRequired indicates a quality profile without a name.
	ErrProfileNameRequired = errors.New("profile name is required")

	// ErrInvalidResolution indicates a non-positive width or height.
	ErrInvalidResolution = errors.New("resolution must be positive")

	// ErrInvalidFrameRate indicates a non-positive target frame rate.
	ErrInvalidFrameRate = errors.New("frame rate must be positive")

	// ErrInvalidCodec indicates an unknown codec value.
	ErrInvalidCodec = errors.New("invalid codec: must be h264, hevc, or av1")

	// ErrInvalidBitrate indicates a non-positive bitrate ceiling.
	ErrInvalidBitrate = errors.New("bitrate ceiling must be positive")

	// ErrUnknownProfile indicates a preset name with no definition.
	ErrUnknownProfile = errors.New("unknown quality profile")

	// ErrTitleIDRequired indicates a required title reference is empty.
	ErrTitleIDRequired = errors.New("title_id is required")

	// ErrTitleNameRequired indicates a required title name is empty.
	ErrTitleNameRequired = errors.New("title name is required")

	// ErrStoreIDRequired indicates a required store reference is empty.
	ErrStoreIDRequired = errors.New("store_id is required")
)
