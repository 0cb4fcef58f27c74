package models

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// VideoCodec identifies a streaming video codec.
type VideoCodec string

const (
	// VideoCodecH264 is baseline-compatible AVC.
	VideoCodecH264 VideoCodec = "h264"
	// VideoCodecHEVC is H.265.
	VideoCodecHEVC VideoCodec = "hevc"
	// VideoCodecAV1 is AV1.
	VideoCodecAV1 VideoCodec = "av1"
)

// IsValid returns true for a known codec value.
func (c VideoCodec) IsValid() bool {
	switch c {
	case VideoCodecH264, VideoCodecHEVC, VideoCodecAV1:
		return true
	}
	return false
}

// QualityProfile is a named preset resolving to concrete stream
// parameters. Profiles are immutable once resolved.
type QualityProfile struct {
	Name            string     `yaml:"name" json:"name"`
	Width           int        `yaml:"width" json:"width"`
	Height          int        `yaml:"height" json:"height"`
	FrameRate       int        `yaml:"frame_rate" json:"frame_rate"`
	Codec           VideoCodec `yaml:"codec" json:"codec"`
	MaxBitrateKbps  int        `yaml:"max_bitrate_kbps" json:"max_bitrate_kbps"`
}

// Validate checks the profile for usable values.
func (p QualityProfile) Validate() error {
	if p.Name == "" {
		return ErrProfileNameRequired
	}
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("profile %q: %w", p.Name, ErrInvalidResolution)
	}
	if p.FrameRate <= 0 {
		return fmt.Errorf("profile %q: %w", p.Name, ErrInvalidFrameRate)
	}
	if !p.Codec.IsValid() {
		return fmt.Errorf("profile %q: %w", p.Name, ErrInvalidCodec)
	}
	if p.MaxBitrateKbps <= 0 {
		return fmt.Errorf("profile %q: %w", p.Name, ErrInvalidBitrate)
	}
	return nil
}

// DefaultProfiles returns the built-in quality presets.
func DefaultProfiles() map[string]QualityProfile {
	return map[string]QualityProfile{
		"low": {
			Name: "low", Width: 1280, Height: 720, FrameRate: 30,
			Codec: VideoCodecH264, MaxBitrateKbps: 5000,
		},
		"balanced": {
			Name: "balanced", Width: 1920, Height: 1080, FrameRate: 60,
			Codec: VideoCodecH264, MaxBitrateKbps: 15000,
		},
		"high": {
			Name: "high", Width: 2560, Height: 1440, FrameRate: 60,
			Codec: VideoCodecHEVC, MaxBitrateKbps: 30000,
		},
		"ultra": {
			Name: "ultra", Width: 3840, Height: 2160, FrameRate: 120,
			Codec: VideoCodecAV1, MaxBitrateKbps: 60000,
		},
	}
}

// profilesFile is the YAML document shape for user-defined presets.
type profilesFile struct {
	Profiles []QualityProfile `yaml:"profiles"`
}

// LoadProfiles reads user-defined presets from a YAML file and merges them
// over the built-in defaults. User presets with the same name replace the
// built-ins.
func LoadProfiles(path string) (map[string]QualityProfile, error) {
	profiles := DefaultProfiles()
	if path == "" {
		return profiles, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profiles file: %w", err)
	}

	var file profilesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing profiles file: %w", err)
	}

	for _, p := range file.Profiles {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("invalid profile in %s: %w", path, err)
		}
		profiles[p.Name] = p
	}

	return profiles, nil
}

// ResolveProfile looks up a named preset, falling back to "balanced" when
// name is empty.
func ResolveProfile(profiles map[string]QualityProfile, name string) (QualityProfile, error) {
	if name == "" {
		name = "balanced"
	}
	p, ok := profiles[name]
	if !ok {
		return QualityProfile{}, fmt.Errorf("%w: %s", ErrUnknownProfile, name)
	}
	return p, nil
}
