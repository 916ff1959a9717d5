// Package config assembles the settings the CLI runs with. Three layers
// apply, lowest priority first: built-in defaults, an optional
// .codequal.yaml file, and CODEQUAL_* environment variables. Command-line
// flags layer on top of whatever this package returns.
//
// The API key is deliberately not part of the file config; it comes from
// ANTHROPIC_API_KEY (or the client config) only, so it never ends up
// committed alongside the rest of the settings.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alpsla/codequal/internal/adaptive"
	"github.com/alpsla/codequal/internal/deepwiki"
	"github.com/alpsla/codequal/internal/store"
)

// DefaultFileName is the config file looked for in the working directory
// when no explicit path is given.
const DefaultFileName = ".codequal.yaml"

// Settings is everything the CLI needs to run an analysis.
type Settings struct {
	// Adaptive configures the iteration controller.
	Adaptive adaptive.Config

	// Client configures the analysis service client.
	Client deepwiki.Config

	// HistoryPath is the run history database location.
	HistoryPath string
}

// fileConfig is the on-disk shape of .codequal.yaml. Durations are
// strings ("5m", "90s") parsed on load.
type fileConfig struct {
	MaxIterations   int     `yaml:"max_iterations,omitempty"`
	CallTimeout     string  `yaml:"call_timeout,omitempty"`
	MinCompleteness float64 `yaml:"min_completeness,omitempty"`

	Model             string `yaml:"model,omitempty"`
	MaxTokens         int64  `yaml:"max_tokens,omitempty"`
	RequestsPerMinute int    `yaml:"requests_per_minute,omitempty"`

	HistoryPath string `yaml:"history_path,omitempty"`
}

// DefaultSettings returns the built-in defaults for every layer.
func DefaultSettings() Settings {
	return Settings{
		Adaptive:    adaptive.DefaultConfig(),
		Client:      deepwiki.DefaultConfig(),
		HistoryPath: store.DefaultPath,
	}
}

// Load builds settings from defaults, the config file at path, and the
// environment, then validates the result.
//
// An empty path means "use .codequal.yaml if present": a missing default
// file is not an error. An explicit path that does not exist is.
func Load(path string) (Settings, error) {
	settings := DefaultSettings()

	explicit := path != ""
	if !explicit {
		path = DefaultFileName
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fc fileConfig
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return settings, fmt.Errorf("parsing %s: %w", path, err)
		}
		if err := settings.applyFile(&fc); err != nil {
			return settings, fmt.Errorf("invalid %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// No config file; defaults plus environment apply.
	default:
		return settings, fmt.Errorf("reading config file: %w", err)
	}

	if err := settings.applyEnv(); err != nil {
		return settings, err
	}
	if err := settings.Validate(); err != nil {
		return settings, err
	}
	return settings, nil
}

// FromEnv builds settings from defaults and environment variables alone,
// ignoring any config file.
func FromEnv() (Settings, error) {
	settings := DefaultSettings()
	if err := settings.applyEnv(); err != nil {
		return settings, err
	}
	if err := settings.Validate(); err != nil {
		return settings, err
	}
	return settings, nil
}

// applyFile overlays non-zero file values. Zero values in the file leave
// the current settings untouched, so a file only ever narrows what it
// names.
func (s *Settings) applyFile(fc *fileConfig) error {
	if fc.MaxIterations > 0 {
		s.Adaptive.MaxIterations = fc.MaxIterations
	}
	if fc.CallTimeout != "" {
		d, err := time.ParseDuration(fc.CallTimeout)
		if err != nil {
			return fmt.Errorf("invalid call_timeout %q: %w", fc.CallTimeout, err)
		}
		s.Adaptive.CallTimeout = d
	}
	if fc.MinCompleteness > 0 {
		s.Adaptive.MinCompleteness = fc.MinCompleteness
	}

	if fc.Model != "" {
		s.Client.Model = fc.Model
	}
	if fc.MaxTokens > 0 {
		s.Client.MaxTokens = fc.MaxTokens
	}
	if fc.RequestsPerMinute > 0 {
		s.Client.RequestsPerMinute = fc.RequestsPerMinute
	}

	if fc.HistoryPath != "" {
		s.HistoryPath = fc.HistoryPath
	}
	return nil
}

// applyEnv overlays environment variables on top of the current values.
func (s *Settings) applyEnv() error {
	if err := s.Adaptive.ApplyEnv(); err != nil {
		return err
	}
	if v := os.Getenv("CODEQUAL_MODEL"); v != "" {
		s.Client.Model = v
	}
	if v := os.Getenv("CODEQUAL_HISTORY_PATH"); v != "" {
		s.HistoryPath = v
	}
	return nil
}

// Validate checks the assembled settings before any network use.
func (s *Settings) Validate() error {
	if err := s.Adaptive.Validate(); err != nil {
		return err
	}
	if s.Client.MaxTokens < 0 {
		return fmt.Errorf("max_tokens cannot be negative (got %d)", s.Client.MaxTokens)
	}
	if s.Client.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute cannot be negative (got %d)", s.Client.RequestsPerMinute)
	}
	return nil
}
