// Package settings loads process settings for the compass binaries. Values
// come from an optional YAML file and are overridden by COMPASS_*
// environment variables.
package settings

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variables that override file values.
const (
	EnvLogLevel   = "COMPASS_LOG_LEVEL"
	EnvLogFormat  = "COMPASS_LOG_FORMAT"
	EnvMaxWorkers = "COMPASS_MAX_WORKERS"
	EnvProfile    = "COMPASS_PROFILE"
)

// Default values.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// ErrInvalidMaxWorkers is returned when COMPASS_MAX_WORKERS is not an integer.
var ErrInvalidMaxWorkers = errors.New("COMPASS_MAX_WORKERS must be a valid integer")

var validate = validator.New()

// Settings holds process-level settings. Scoring behavior lives in the
// scoring configuration that ConfigPath points to.
type Settings struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn warning error"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`
	// ConfigPath is the scoring configuration file. Empty means built-in
	// profiles only.
	ConfigPath string `koanf:"config_path"`
	// Profile selects a profile by name. Empty means the catalog default.
	Profile string `koanf:"profile" validate:"max=100"`
	// MaxWorkers overrides the catalog worker limit when positive.
	MaxWorkers int `koanf:"max_workers" validate:"min=0,max=1024"`
}

// Default returns the settings used when nothing is configured.
func Default() Settings {
	return Settings{LogLevel: DefaultLogLevel, LogFormat: DefaultLogFormat}
}

// Load reads settings from the YAML file at path, if path is non-empty, and
// applies environment overrides. Environment variables take precedence over
// file values.
func Load(path string) (*Settings, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), kyaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load settings file %s: %w", path, err)
		}
	}

	if err := applyEnv(k); err != nil {
		return nil, err
	}

	s := Default()
	if err := k.Unmarshal("", &s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	s.LogLevel = strings.ToLower(s.LogLevel)
	s.LogFormat = strings.ToLower(s.LogFormat)

	if err := validate.Struct(s); err != nil {
		return nil, fmt.Errorf("settings validation failed: %w", err)
	}
	return &s, nil
}

func applyEnv(k *koanf.Koanf) error {
	for env, key := range map[string]string{
		EnvLogLevel:  "log_level",
		EnvLogFormat: "log_format",
		EnvProfile:   "profile",
	} {
		if val := os.Getenv(env); val != "" {
			if err := k.Set(key, val); err != nil {
				return fmt.Errorf("failed to apply %s: %w", env, err)
			}
		}
	}

	if val := os.Getenv(EnvMaxWorkers); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidMaxWorkers, val)
		}
		if err := k.Set("max_workers", n); err != nil {
			return fmt.Errorf("failed to apply %s: %w", EnvMaxWorkers, err)
		}
	}
	return nil
}
