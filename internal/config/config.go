// Package config manages environment variables.
//
// It reads variables from the environment (and a `.env` file when present),
// loads them into structured Go types and validates them so the service
// fails fast on bad configuration.
//
// Keys are nested with a double underscore:
//
//	REQVALID_SERVER__PORT=8080            -> server.port
//	REQVALID_VALIDATION__BODY_LIMIT=2M    -> validation.body_limit
//	REQVALID_OBSERVABILITY__LOGGING__LEVEL=debug
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	// Side-effect import: loads `.env` into the process environment, if present.
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of every environment variable read by LoadConfig.
const EnvPrefix = "REQVALID_"

// ServiceName is reported in logs and New Relic regardless of configuration.
const ServiceName = "reqvalid"

// Config is the root configuration object for the application.
type Config struct {
	Primary       Primary              `koanf:"primary" validate:"required"`
	Server        ServerConfig         `koanf:"server" validate:"required"`
	Validation    ValidationConfig     `koanf:"validation" validate:"required"`
	Observability *ObservabilityConfig `koanf:"observability"`
}

// Primary holds top-level information about the runtime environment.
type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

// ServerConfig groups settings for the HTTP server runtime.
// Timeouts are in seconds.
type ServerConfig struct {
	Port               string   `koanf:"port" validate:"required"`
	ReadTimeout        int      `koanf:"read_timeout" validate:"required,min=1"`
	WriteTimeout       int      `koanf:"write_timeout" validate:"required,min=1"`
	IdleTimeout        int      `koanf:"idle_timeout" validate:"required,min=1"`
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins" validate:"required,min=1"`

	// RateLimit is the sustained requests per second allowed per client IP,
	// with bursts up to RateLimitBurst. Zero disables rate limiting.
	RateLimit      float64 `koanf:"rate_limit" validate:"min=0"`
	RateLimitBurst int     `koanf:"rate_limit_burst" validate:"min=0"`
}

// ValidationConfig configures request validation.
type ValidationConfig struct {
	// SchemaDir is an optional directory of JSON Schema documents
	// (*.json, *.yaml, *.yml) loaded on top of the built-in ones.
	SchemaDir string `koanf:"schema_dir"`

	// BodyLimit caps request bodies before they are decoded,
	// in Echo's BodyLimit format ("512K", "2M").
	BodyLimit string `koanf:"body_limit" validate:"required"`
}

// DefaultConfig returns the configuration used for keys absent from the
// environment.
func DefaultConfig() *Config {
	return &Config{
		Primary: Primary{
			Env: "local",
		},
		Server: ServerConfig{
			Port:               "8080",
			ReadTimeout:        30,
			WriteTimeout:       30,
			IdleTimeout:        60,
			CORSAllowedOrigins: []string{"*"},
			RateLimit:          20,
			RateLimitBurst:     40,
		},
		Validation: ValidationConfig{
			BodyLimit: "1M",
		},
		Observability: DefaultObservabilityConfig(),
	}
}

// LoadConfig loads configuration from environment variables on top of
// DefaultConfig, validates it and returns it.
//
// Behavior summary:
//   - Reads env vars with prefix REQVALID_
//   - Maps REQVALID_A__B_C to the koanf key "a.b_c"
//   - Unmarshals into Config, comma-separated values into slices
//   - Validates struct tags, then the observability rules
//   - Forces the observability service name and environment
func LoadConfig() (*Config, error) {
	k := koanf.New(".")

	err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil)
	if err != nil {
		return nil, fmt.Errorf("could not load env variables: %w", err)
	}

	mainConfig := DefaultConfig()
	if err := k.Unmarshal("", mainConfig); err != nil {
		return nil, fmt.Errorf("could not unmarshal config: %w", err)
	}

	if err := validator.New().Struct(mainConfig); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if mainConfig.Observability == nil {
		mainConfig.Observability = DefaultObservabilityConfig()
	}

	// Consistent naming in logs and APM, whatever the environment says.
	mainConfig.Observability.ServiceName = ServiceName
	mainConfig.Observability.Environment = mainConfig.Primary.Env

	if err := mainConfig.Observability.Validate(); err != nil {
		return nil, fmt.Errorf("invalid observability config: %w", err)
	}

	return mainConfig, nil
}

// envKey turns REQVALID_SERVER__READ_TIMEOUT into "server.read_timeout".
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}
