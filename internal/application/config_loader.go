package application

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-compass/infrastructure/scoring"
	"github.com/ahrav/go-compass/internal/domain"
	"github.com/ahrav/go-compass/internal/ports"
)

// DefaultMaxWorkers bounds ProximityMap concurrency when the configuration
// does not.
const DefaultMaxWorkers = 8

// Catalog is the compiled form of a CompassConfig: every profile resolved
// against its scale and checked by building its kernel.
type Catalog struct {
	// Metadata is copied from the configuration.
	Metadata Metadata
	// Profiles holds the built-in and configured profiles.
	Profiles *ProfileRegistry
	// MaxWorkers is the resolved worker limit.
	MaxWorkers int
}

// ConfigLoader provides YAML configuration parsing, validation, and caching
// for scoring configurations, transforming declarative YAML into a Catalog
// of ready-to-use profiles.
// Use ConfigLoader to load configurations from files or readers while
// benefiting from SHA256-based caching and comprehensive validation.
type ConfigLoader struct {
	// validator performs struct field validation and custom validation
	// rules for configurations and their nested components.
	validator *validator.Validate
	// cache stores compiled catalogs indexed by SHA256 hash of the
	// normalized configuration.
	// WARNING: Cached catalogs are shared. Callers MUST NOT register
	// profiles on, or change the default of, a cached catalog's registry.
	cache map[string]*Catalog
	// cacheMu provides thread-safe access to the cache map.
	cacheMu sync.RWMutex
	// sf prevents duplicate compilation when multiple goroutines request
	// the same configuration simultaneously.
	sf singleflight.Group
}

// NewConfigLoader creates a new loader with validation capabilities and an
// empty cache.
// NewConfigLoader returns an error if validator registration fails.
func NewConfigLoader() (*ConfigLoader, error) {
	v := validator.New()

	if err := RegisterCompassValidators(v); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}

	return &ConfigLoader{
		validator: v,
		cache:     make(map[string]*Catalog),
	}, nil
}

// load is the common implementation for loading catalogs from byte data,
// utilizing singleflight to prevent duplicate compilation and SHA256-based
// caching for efficiency.
func (cl *ConfigLoader) load(ctx context.Context, data []byte) (*Catalog, error) {
	config, err := cl.parseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Hash the normalized config, not raw bytes.
	hash, err := cl.calculateConfigHash(config)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}

	v, err, _ := cl.sf.Do(hash, func() (any, error) {
		if catalog, ok := cl.getCachedCatalog(hash); ok {
			return catalog, nil
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := cl.validateConfig(config); err != nil {
			return nil, fmt.Errorf("validation failed: %w", err)
		}

		catalog, err := cl.buildCatalog(config)
		if err != nil {
			return nil, fmt.Errorf("failed to build catalog: %w", err)
		}

		cl.cacheCatalog(hash, catalog)
		return catalog, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*Catalog), nil
}

// LoadFromFile loads and compiles a scoring configuration from a YAML file.
// WARNING: The returned catalog may be shared with other callers; see
// ConfigLoader.
func (cl *ConfigLoader) LoadFromFile(ctx context.Context, path string) (*Catalog, error) {
	// Clean the path to prevent directory traversal attacks.
	cleanPath := filepath.Clean(path)

	data, err := os.ReadFile(cleanPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %w", ports.ErrConfigNotFound, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return cl.load(ctx, data)
}

// LoadFromReader loads and compiles a scoring configuration from an
// io.Reader and performs the same validation as LoadFromFile.
func (cl *ConfigLoader) LoadFromReader(ctx context.Context, r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}

	return cl.load(ctx, data)
}

// parseYAML uses strict decoding so configuration typos are not silently
// ignored.
func (cl *ConfigLoader) parseYAML(data []byte) (*CompassConfig, error) {
	var config CompassConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Strict mode - fail on unknown fields.

	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("YAML decode failed: %w", err)
	}
	return &config, nil
}

// validateConfig runs struct tag validation followed by semantic checks.
func (cl *ConfigLoader) validateConfig(config *CompassConfig) error {
	if err := cl.validator.Struct(config); err != nil {
		return fmt.Errorf("struct validation failed: %w", err)
	}

	if err := cl.validateSemantics(config); err != nil {
		return fmt.Errorf("semantic validation failed: %w", err)
	}

	return nil
}

// validateSemantics enforces rules struct tags cannot express: unique
// names, resolvable references, and weights and caps that fit the
// referenced scale.
func (cl *ConfigLoader) validateSemantics(config *CompassConfig) error {
	scales, err := resolveScales(config.Scales)
	if err != nil {
		return err
	}

	profileNames := make(map[string]struct{})
	for _, pc := range config.Profiles {
		key := foldName(pc.Name)
		if _, exists := profileNames[key]; exists {
			return fmt.Errorf("duplicate profile name %q", pc.Name)
		}
		profileNames[key] = struct{}{}

		if _, err := profileFromConfig(pc, scales); err != nil {
			return err
		}
	}

	if config.DefaultProfile != "" {
		key := foldName(config.DefaultProfile)
		_, declared := profileNames[key]
		builtin := key == foldName(ProfileLegacy) || key == foldName(ProfileCurrent)
		if !declared && !builtin {
			return fmt.Errorf("default_profile references non-existent profile: %s", config.DefaultProfile)
		}
	}

	return nil
}

// buildCatalog constructs the profile registry from a validated config.
func (cl *ConfigLoader) buildCatalog(config *CompassConfig) (*Catalog, error) {
	scales, err := resolveScales(config.Scales)
	if err != nil {
		return nil, err
	}

	registry := NewProfileRegistry()
	for _, pc := range config.Profiles {
		profile, err := profileFromConfig(pc, scales)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(profile); err != nil {
			return nil, fmt.Errorf("failed to register profile: %w", err)
		}
	}

	if config.DefaultProfile != "" {
		if err := registry.SetDefault(config.DefaultProfile); err != nil {
			return nil, err
		}
	}

	workers := config.Concurrency.MaxWorkers
	if workers <= 0 {
		workers = DefaultMaxWorkers
	}

	return &Catalog{
		Metadata:   config.Metadata,
		Profiles:   registry,
		MaxWorkers: workers,
	}, nil
}

// resolveScales merges declared scales with the built-in ones.
func resolveScales(configs []ScaleConfig) (map[string]domain.Scale, error) {
	scales := BuiltinScales()
	declared := make(map[string]struct{}, len(configs))

	for _, sc := range configs {
		if _, builtin := BuiltinScales()[sc.Name]; builtin {
			return nil, fmt.Errorf("scale name %q is reserved", sc.Name)
		}
		if _, exists := declared[sc.Name]; exists {
			return nil, fmt.Errorf("duplicate scale name %q", sc.Name)
		}
		declared[sc.Name] = struct{}{}

		scale, err := domain.NewScale(sc.Stances, sc.neutralIsSkip())
		if err != nil {
			return nil, fmt.Errorf("scale %s: %w", sc.Name, err)
		}
		scales[sc.Name] = scale
	}
	return scales, nil
}

// profileFromConfig resolves a profile's scale reference and checks that a
// kernel can be built from it.
func profileFromConfig(pc ProfileConfig, scales map[string]domain.Scale) (Profile, error) {
	scaleName := pc.Scale
	if scaleName == "" {
		scaleName = ScaleDefault
	}
	scale, ok := scales[scaleName]
	if !ok {
		return Profile{}, fmt.Errorf("profile %s references non-existent scale: %s", pc.Name, scaleName)
	}

	maxRatio := pc.Mix.MaxRatio
	if maxRatio == 0 {
		maxRatio = DefaultMaxRatio
	}

	profile := Profile{
		Name:     pc.Name,
		Scale:    scale,
		Kernel:   pc.KernelConfig(),
		MaxRatio: maxRatio,
		Weights:  pc.Weights,
	}
	if _, err := profile.NewKernel(); err != nil {
		return Profile{}, fmt.Errorf("profile %s: %w", pc.Name, err)
	}
	if err := scoring.ValidateWeights(pc.Weights); err != nil {
		return Profile{}, fmt.Errorf("profile %s: %w", pc.Name, err)
	}
	return profile, nil
}

// calculateConfigHash computes the SHA256 hash of a normalized config so
// that semantically identical configurations share a cache entry
// regardless of whitespace or comments.
func (cl *ConfigLoader) calculateConfigHash(config *CompassConfig) (string, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)

	if err := encoder.Encode(config); err != nil {
		return "", fmt.Errorf("failed to encode config for hashing: %w", err)
	}

	hash := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(hash[:]), nil
}

// getCachedCatalog is safe for concurrent use.
func (cl *ConfigLoader) getCachedCatalog(hash string) (*Catalog, bool) {
	cl.cacheMu.RLock()
	defer cl.cacheMu.RUnlock()

	catalog, ok := cl.cache[hash]
	return catalog, ok
}

// cacheCatalog is safe for concurrent use and overwrites any existing entry.
func (cl *ConfigLoader) cacheCatalog(hash string, catalog *Catalog) {
	cl.cacheMu.Lock()
	defer cl.cacheMu.Unlock()

	cl.cache[hash] = catalog
}

// ClearCache removes all cached catalogs, forcing subsequent loads to
// recompile from source.
func (cl *ConfigLoader) ClearCache() {
	cl.cacheMu.Lock()
	defer cl.cacheMu.Unlock()

	cl.cache = make(map[string]*Catalog)
}

// cacheSize reports the number of cached catalogs.
func (cl *ConfigLoader) cacheSize() int {
	cl.cacheMu.RLock()
	defer cl.cacheMu.RUnlock()

	return len(cl.cache)
}
