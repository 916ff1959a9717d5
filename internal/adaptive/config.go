package adaptive

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	// maxIterationCeiling is the hard upper bound on MaxIterations. Beyond
	// this the service cost grows while dedup returns almost nothing new.
	maxIterationCeiling = 10

	// minCallTimeout is the floor for per-call timeouts. The analysis
	// service routinely takes tens of seconds on a cold repository, so
	// anything shorter guarantees spurious failures.
	minCallTimeout = 10 * time.Second

	// minIterationIndexFloor is the iteration index before which voluntary
	// stops (convergence, streaks) are never taken: three completed
	// iterations guard against declaring convergence on one lucky call.
	minIterationIndexFloor = 2

	// noProgressLimit and noNewIssuesLimit are the consecutive-iteration
	// streaks that stop the loop.
	noProgressLimit  = 2
	noNewIssuesLimit = 2
)

// DefaultBranch is analyzed when the caller does not name a branch.
const DefaultBranch = "main"

// Config holds the operational parameters for one analysis run
type Config struct {
	// MaxIterations is the hard cap on analysis iterations per run.
	// Each iteration is one call to the analysis service.
	// Default: 3 (range 1-10)
	MaxIterations int

	// CallTimeout bounds each individual service call. The run is
	// sequential, so total runtime is at most MaxIterations * CallTimeout.
	// Default: 5 minutes (minimum 10 seconds)
	CallTimeout time.Duration

	// MinCompleteness is the completeness percentage (0-100) at which the
	// run may stop early via convergence, provided no critical gaps
	// remain.
	// Default: 80
	MinCompleteness float64
}

// DefaultConfig returns the default analysis configuration
//
// The defaults favor predictable cost: three iterations close most gap
// types on typical repositories, and the five-minute call timeout absorbs
// cold-start latency without letting a stalled call hang the run.
func DefaultConfig() Config {
	return Config{
		MaxIterations:   3,
		CallTimeout:     5 * time.Minute,
		MinCompleteness: 80,
	}
}

// Validate checks if the configuration has valid values. It runs before
// any network activity so invalid parameters fail synchronously.
func (c Config) Validate() error {
	if c.MaxIterations < 1 || c.MaxIterations > maxIterationCeiling {
		return fmt.Errorf("max_iterations must be between 1 and %d (got %d)",
			maxIterationCeiling, c.MaxIterations)
	}
	if c.CallTimeout < minCallTimeout {
		return fmt.Errorf("call_timeout must be at least %v (got %v)",
			minCallTimeout, c.CallTimeout)
	}
	if c.MinCompleteness < 0 || c.MinCompleteness > 100 {
		return fmt.Errorf("min_completeness must be between 0 and 100 (got %.1f)",
			c.MinCompleteness)
	}
	return nil
}

// String returns a human-readable representation of the config
func (c Config) String() string {
	return fmt.Sprintf("Config{MaxIterations: %d, CallTimeout: %v, MinCompleteness: %.1f}",
		c.MaxIterations, c.CallTimeout, c.MinCompleteness)
}

// ConfigFromEnv creates a Config from environment variables, falling back
// to defaults
//
// Environment variables:
//   - CODEQUAL_MAX_ITERATIONS: Hard cap on iterations per run (default: 3)
//   - CODEQUAL_CALL_TIMEOUT_SECS: Per-call timeout in seconds (default: 300)
//   - CODEQUAL_MIN_COMPLETENESS: Early-stop completeness threshold (default: 80)
//
// Returns an error if any environment variable has an invalid value.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration from environment: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays the CODEQUAL_* environment variables on the config.
// Unset variables leave their fields untouched, so env values layer on
// top of whatever the config already holds (defaults, or a config file).
// Validation is the caller's job once all layers are applied.
func (c *Config) ApplyEnv() error {
	if err := parseEnvInt("CODEQUAL_MAX_ITERATIONS", &c.MaxIterations); err != nil {
		return err
	}
	if err := parseEnvDuration("CODEQUAL_CALL_TIMEOUT_SECS", &c.CallTimeout, time.Second); err != nil {
		return err
	}
	if err := parseEnvFloat("CODEQUAL_MIN_COMPLETENESS", &c.MinCompleteness); err != nil {
		return err
	}
	return nil
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvFloat parses a float64 from an environment variable
func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvDuration parses a duration from an environment variable,
// multiplying the numeric value by the given unit
func parseEnvDuration(key string, dest *time.Duration, unit time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = time.Duration(parsed) * unit
	return nil
}
