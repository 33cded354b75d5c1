// Package application provides configuration loading, the profile catalog
// and the Engine that orchestrates scoring.
package application

import (
	"github.com/ahrav/go-compass/infrastructure/scoring"
)

// CompassConfig defines the complete scoring configuration and serves as
// the primary configuration entry point for the engine.
// Use CompassConfig to declare custom stance scales and named scoring
// profiles on top of the built-in ones.
type CompassConfig struct {
	// Version specifies the configuration schema version using semantic
	// versioning to ensure compatibility across system updates.
	Version string `yaml:"version" validate:"required,semver"`
	// Metadata contains descriptive information about the configuration
	// including name, tags, and labels for organization and discovery.
	Metadata Metadata `yaml:"metadata" validate:"required"`
	// Scales declares additional stance scales. The built-in "default" and
	// "party" scales are always available and cannot be redefined.
	Scales []ScaleConfig `yaml:"scales" validate:"omitempty,dive"`
	// Profiles declares named scoring profiles. A profile named like a
	// built-in one ("legacy", "current") replaces it.
	Profiles []ProfileConfig `yaml:"profiles" validate:"required,min=1,dive"`
	// DefaultProfile names the profile used when none is requested.
	// When empty the built-in default applies.
	DefaultProfile string `yaml:"default_profile" validate:"omitempty,max=100"`
	// Concurrency bounds parallel work inside the engine.
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
}

// Metadata provides descriptive information about a configuration
// to support organization, discovery, and operational management.
type Metadata struct {
	// Name is the human-readable identifier for this configuration.
	Name string `yaml:"name" validate:"required,min=1,max=255"`
	// Description provides a detailed explanation of the configuration's
	// purpose, e.g. which election it was built for.
	Description string `yaml:"description" validate:"max=1000"`
	// Tags are categorical labels that enable filtering and grouping.
	Tags []string `yaml:"tags" validate:"max=20,dive,min=1,max=50"`
	// Labels are arbitrary key-value pairs for integration with external
	// systems and custom categorization.
	Labels map[string]string `yaml:"labels" validate:"max=50"`
}

// ScaleConfig declares a stance scale.
type ScaleConfig struct {
	// Name is referenced by profiles.
	Name string `yaml:"name" validate:"required,min=1,max=100"`
	// Stances lists the legal stances. They must be finite, unique, at
	// least two, and symmetric around their midpoint.
	Stances []float64 `yaml:"stances" validate:"required,min=2,stanceset"`
	// NeutralIsSkip makes the midpoint stance count as unanswered.
	// Defaults to true when omitted.
	NeutralIsSkip *bool `yaml:"neutral_is_skip,omitempty"`
}

// ProfileConfig declares a named scoring profile: a scale plus the kernel
// configuration and aggregation defaults used with it.
type ProfileConfig struct {
	// Name identifies the profile. Names are compared case-insensitively.
	Name string `yaml:"name" validate:"required,min=1,max=100"`
	// Scale references a declared or built-in scale. Empty means "default".
	Scale string `yaml:"scale" validate:"omitempty,max=100"`
	// EmptyOverlap decides the score when no statement is commonly answered.
	EmptyOverlap scoring.EmptyOverlapPolicy `yaml:"empty_overlap" validate:"required,oneof=zero_score unknowable"`
	// NearNeutral decides how per-statement differences are computed.
	NearNeutral scoring.NearNeutralRule `yaml:"near_neutral"`
	// Mix configures ProximityMix.
	Mix MixConfig `yaml:"mix"`
	// Weights are default per-counterpart weights for ProximityMap.
	Weights map[string]float64 `yaml:"weights,omitempty" validate:"omitempty,dive,min=0"`
}

// MixConfig configures ratio-capped mixing.
type MixConfig struct {
	// MaxRatio caps the share of the first counterpart in a mix.
	// Zero means DefaultMaxRatio.
	MaxRatio float64 `yaml:"max_ratio" validate:"min=0,max=1"`
}

// ConcurrencyConfig bounds the engine's worker pool.
type ConcurrencyConfig struct {
	// MaxWorkers limits concurrent comparisons in ProximityMap.
	// Zero means DefaultMaxWorkers.
	MaxWorkers int `yaml:"max_workers" validate:"omitempty,min=1,max=1024"`
}

// KernelConfig returns the kernel configuration the profile declares.
func (p ProfileConfig) KernelConfig() scoring.KernelConfig {
	return scoring.KernelConfig{EmptyOverlap: p.EmptyOverlap, NearNeutral: p.NearNeutral}
}

// neutralIsSkip resolves the optional flag.
func (s ScaleConfig) neutralIsSkip() bool {
	return s.NeutralIsSkip == nil || *s.NeutralIsSkip
}
