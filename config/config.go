package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// AppConfig is the console configuration, composed of per-concern sections.
//
// Values are loaded from environment variables with github.com/caarlos0/env.
// See the section files for the variables each one reads:
//   - backend.go: REST backend, timeouts and OAuth client credentials
//   - store.go: where the persisted session lives
//   - database.go: Postgres and Redis connections for the shared stores
//   - capture.go: camera, detector and retry policy
//   - observability.go: metrics
type AppConfig struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Backend BackendConfig
	Store   StoreConfig

	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	Directory DirectoryConfig
	Capture   CaptureConfig

	Observability ObservabilityConfig
}

// DirectoryConfig controls the fallback identity set and startup warm-up.
type DirectoryConfig struct {
	// FallbackFile is an optional JSONC file of identities merged over the built-in set.
	FallbackFile string `env:"DIRECTORY_FALLBACK_FILE"`
	// WarmOnStart loads the employee and user directories while the console starts.
	WarmOnStart bool `env:"DIRECTORY_WARM_ON_START" envDefault:"false"`
}

// Sanitize applies guardrails to values loaded from env.
func (c *AppConfig) Sanitize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.Directory.FallbackFile = strings.TrimSpace(c.Directory.FallbackFile)
	c.Backend.Sanitize()
	c.Store.Sanitize()
	c.Capture.Sanitize()
	c.Observability.Sanitize()
}

// Validate reports configuration that cannot work. Call it after Sanitize.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Backend.BaseURL == "" {
		errs = append(errs, errors.New("BACKEND_BASE_URL is required"))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SlogLevel returns the configured level, info when unparseable.
func (c *AppConfig) SlogLevel() slog.Level {
	lvl, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// ParseLogLevel maps a level name to a slog.Level.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (valid options: debug, info, warn, error)", s)
	}
}
