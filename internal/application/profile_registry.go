package application

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"sync"

	"golang.org/x/text/cases"

	"github.com/ahrav/go-compass/infrastructure/scoring"
	"github.com/ahrav/go-compass/internal/domain"
	"github.com/ahrav/go-compass/internal/ports"
)

// Built-in profile names.
const (
	ProfileLegacy  = "legacy"
	ProfileCurrent = "current"
)

// Built-in scale names.
const (
	ScaleDefault = "default"
	ScaleParty   = "party"
)

// DefaultMaxRatio is the mix cap used when a profile does not set one.
const DefaultMaxRatio = 0.3

// Profile bundles everything needed to score with one scoring revision.
type Profile struct {
	// Name is the display name as registered.
	Name string
	// Scale is the stance scale positions are read on.
	Scale domain.Scale
	// Kernel selects the scoring revision.
	Kernel scoring.KernelConfig
	// MaxRatio caps the first counterpart's share in ProximityMix.
	MaxRatio float64
	// Weights are default per-counterpart weights for ProximityMap.
	Weights map[string]float64
}

// NewKernel builds the kernel the profile describes.
func (p Profile) NewKernel() (*scoring.Kernel, error) {
	return scoring.NewKernel(p.Scale, p.Kernel)
}

// LegacyProfile returns the built-in profile for the first scoring revision.
func LegacyProfile() Profile {
	return Profile{
		Name:     ProfileLegacy,
		Scale:    domain.DefaultScale(),
		Kernel:   scoring.LegacyKernelConfig(),
		MaxRatio: DefaultMaxRatio,
	}
}

// CurrentProfile returns the built-in profile for the latest scoring revision.
func CurrentProfile() Profile {
	return Profile{
		Name:     ProfileCurrent,
		Scale:    domain.DefaultScale(),
		Kernel:   scoring.CurrentKernelConfig(),
		MaxRatio: DefaultMaxRatio,
	}
}

// BuiltinScales returns the scales every configuration can reference.
func BuiltinScales() map[string]domain.Scale {
	return map[string]domain.Scale{
		ScaleDefault: domain.DefaultScale(),
		ScaleParty:   domain.PartyScale(),
	}
}

// ProfileRegistry is a thread-safe catalog of scoring profiles keyed by
// case-folded name. It comes with the "legacy" and "current" profiles
// pre-registered and "current" as the default.
type ProfileRegistry struct {
	// profiles maps folded names to profiles.
	profiles map[string]Profile
	// defaultKey is the folded name of the default profile.
	defaultKey string
	// mu protects concurrent access to the fields above.
	mu sync.RWMutex
}

// NewProfileRegistry creates a registry with the built-in profiles.
func NewProfileRegistry() *ProfileRegistry {
	r := &ProfileRegistry{profiles: make(map[string]Profile)}
	r.registerBuiltinProfiles()
	return r
}

func (r *ProfileRegistry) registerBuiltinProfiles() {
	for _, p := range []Profile{LegacyProfile(), CurrentProfile()} {
		r.profiles[foldName(p.Name)] = p
	}
	r.defaultKey = foldName(ProfileCurrent)
}

// Register adds or replaces a profile. The profile must produce a valid
// kernel and carry a usable mix ratio and weights.
func (r *ProfileRegistry) Register(p Profile) error {
	if p.Name == "" {
		return fmt.Errorf("profile name cannot be empty")
	}
	if _, err := p.NewKernel(); err != nil {
		return fmt.Errorf("profile %s: %w", p.Name, err)
	}
	if math.IsNaN(p.MaxRatio) || p.MaxRatio < 0 || p.MaxRatio > 1 {
		return fmt.Errorf("profile %s: %w: %v not in [0,1]", p.Name, scoring.ErrInvalidRatio, p.MaxRatio)
	}
	if err := scoring.ValidateWeights(p.Weights); err != nil {
		return fmt.Errorf("profile %s: %w", p.Name, err)
	}

	p.Weights = maps.Clone(p.Weights)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.profiles[foldName(p.Name)] = p
	return nil
}

// Get returns the named profile. An empty name returns the default.
func (r *ProfileRegistry) Get(name string) (Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := r.defaultKey
	if name != "" {
		key = foldName(name)
	}

	p, ok := r.profiles[key]
	if !ok {
		return Profile{}, ports.NewConfigError(name, ports.ErrProfileNotFound)
	}
	p.Weights = maps.Clone(p.Weights)
	return p, nil
}

// Default returns the default profile.
func (r *ProfileRegistry) Default() Profile {
	p, _ := r.Get("")
	return p
}

// SetDefault makes the named, already registered profile the default.
func (r *ProfileRegistry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := foldName(name)
	if _, ok := r.profiles[key]; !ok {
		return ports.NewConfigError(name, ports.ErrProfileNotFound)
	}
	r.defaultKey = key
	return nil
}

// Names returns the registered profile names in sorted order.
func (r *ProfileRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.profiles))
	for _, p := range r.profiles {
		names = append(names, p.Name)
	}
	slices.Sort(names)
	return names
}

// foldName case-folds a profile name. A Caser is stateful, so each call
// gets its own.
func foldName(name string) string {
	return cases.Fold().String(name)
}
