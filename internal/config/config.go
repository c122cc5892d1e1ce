// Package config loads and validates the pipeline configuration from a
// YAML file, with credentials overridable through the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"tilemosaic/internal/fetch"
)

// Config is the full pipeline configuration.
type Config struct {
	Endpoint EndpointConfig `yaml:"endpoint" validate:"required"`
	Threads  int            `yaml:"threads" validate:"gte=0,lte=64"`
	AOI      AOIConfig      `yaml:"aoi" validate:"required"`
	Cache    CacheConfig    `yaml:"cache"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// EndpointConfig names and parameterizes the tile source.
type EndpointConfig struct {
	Name        string            `yaml:"name"`
	Type        string            `yaml:"type" validate:"required"`
	URI         string            `yaml:"uri" validate:"required"`
	Format      string            `yaml:"format"`
	Options     map[string]string `yaml:"options"`
	Credentials CredentialsConfig `yaml:"credentials"`
}

// CredentialsConfig holds basic-auth credentials. Environment variables
// TILEMOSAIC_USERNAME and TILEMOSAIC_PASSWORD override the file values
// so secrets can stay out of the config.
type CredentialsConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// AOIConfig points at the GeoJSON areas of interest.
type AOIConfig struct {
	Path     string  `yaml:"path" validate:"required"`
	Distance float64 `yaml:"distance" validate:"gte=0"`
}

// CacheConfig enables the disk tile cache when Dir is set.
type CacheConfig struct {
	Dir        string `yaml:"dir"`
	MaxEntries int    `yaml:"max_entries" validate:"gte=0"`
}

// MetricsConfig enables the metrics listener when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig selects log verbosity and output shape.
type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json text"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Threads: 1,
		AOI:     AOIConfig{Distance: 500},
		Cache:   CacheConfig{MaxEntries: 4096},
		Log:     LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads, overrides, and validates the configuration at path. A
// .env file in the working directory is honored when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // optional

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if cfg.Threads == 0 {
		cfg.Threads = 1
	}

	if v := os.Getenv("TILEMOSAIC_USERNAME"); v != "" {
		cfg.Endpoint.Credentials.Username = v
	}
	if v := os.Getenv("TILEMOSAIC_PASSWORD"); v != "" {
		cfg.Endpoint.Credentials.Password = v
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// FetchCredentials converts the configured credentials for the fetch
// client; nil when no credentials are set.
func (c *Config) FetchCredentials() *fetch.Credentials {
	if c.Endpoint.Credentials.Username == "" && c.Endpoint.Credentials.Password == "" {
		return nil
	}
	return &fetch.Credentials{
		Username: c.Endpoint.Credentials.Username,
		Password: c.Endpoint.Credentials.Password,
	}
}

// SetupLogger builds the process logger from the log settings and
// installs it as the slog default.
func SetupLogger(cfg LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
