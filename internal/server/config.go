// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the presence gateway.
package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `env:"RATE_LIMIT_BURST" envDefault:"5"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL" envDefault:"1s"`
}

// Config holds the gateway configuration.
//
// Tags:
//
//	env: Environment variable name
//	envDefault: Default value if not set
type Config struct {
	Port           string   `env:"SERVER_PORT" envDefault:":8080"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:8080" envSeparator:","`
	MaxMessageSize int64    `env:"MAX_MESSAGE_SIZE" envDefault:"512"`
	SendBufferSize int      `env:"SEND_BUFFER_SIZE" envDefault:"256"`
	RateLimit      RateLimitConfig

	// Handshake
	AuthHeader string        `env:"AUTH_HEADER" envDefault:"authentication"`
	JWTSecret  string        `env:"JWT_SECRET"`
	JWTIssuer  string        `env:"JWT_ISSUER"`
	TokenTTL   time.Duration `env:"JWT_TOKEN_TTL" envDefault:"2h"`

	// Identity source. DatabaseURL takes precedence.
	IdentityFile string `env:"IDENTITY_FILE"`
	DatabaseURL  string `env:"DATABASE_URL"`

	EmptyMessagePlaceholder string        `env:"EMPTY_MESSAGE_PLACEHOLDER" envDefault:"no-message"`
	ShutdownTimeout         time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// NewConfig creates a Config populated with default values for all settings.
// The JWT secret and identity source are left empty.
func NewConfig() *Config {
	cfg := &Config{}
	// Parsing an empty environment only applies envDefault values.
	if err := env.ParseWithOptions(cfg, env.Options{Environment: map[string]string{}}); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return cfg
}

// LoadConfig reads an optional .env file, then the environment, and validates
// the result. Priority: environment > .env file > defaults.
func LoadConfig(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Debug().Msg("No .env file found (using environment variables only)")
		}
	} else if logger != nil {
		logger.Info().Msg("Loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) normalize() {
	origins := c.AllowedOrigins[:0]
	for _, o := range c.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.AllowedOrigins = origins
	c.AuthHeader = strings.TrimSpace(c.AuthHeader)
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Port == "" {
		errs = append(errs, errors.New("SERVER_PORT is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IdentityFile == "" && c.DatabaseURL == "" {
		errs = append(errs, errors.New("one of IDENTITY_FILE or DATABASE_URL is required"))
	}
	if c.AuthHeader == "" {
		errs = append(errs, errors.New("AUTH_HEADER must not be empty"))
	}
	if c.MaxMessageSize <= 0 {
		errs = append(errs, fmt.Errorf("MAX_MESSAGE_SIZE must be > 0, got %d", c.MaxMessageSize))
	}
	if c.SendBufferSize <= 0 {
		errs = append(errs, fmt.Errorf("SEND_BUFFER_SIZE must be > 0, got %d", c.SendBufferSize))
	}
	if c.RateLimit.Burst <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BURST must be > 0, got %d", c.RateLimit.Burst))
	}
	if c.RateLimit.RefillInterval <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_REFILL_INTERVAL must be > 0, got %s", c.RateLimit.RefillInterval))
	}
	if c.EmptyMessagePlaceholder == "" {
		errs = append(errs, errors.New("EMPTY_MESSAGE_PLACEHOLDER must not be empty"))
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel))
	}
	validLogFormats := map[string]bool{"json": true, "pretty": true}
	if !validLogFormats[c.LogFormat] {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be one of: json, pretty (got: %s)", c.LogFormat))
	}

	return errors.Join(errs...)
}

// LogConfig writes the effective configuration without secrets.
func (c *Config) LogConfig(logger zerolog.Logger) {
	identitySource := "file"
	if c.DatabaseURL != "" {
		identitySource = "postgres"
	}
	logger.Info().
		Str("port", c.Port).
		Strs("allowed_origins", c.AllowedOrigins).
		Int64("max_message_size", c.MaxMessageSize).
		Int("send_buffer_size", c.SendBufferSize).
		Int("rate_limit_burst", c.RateLimit.Burst).
		Dur("rate_limit_refill", c.RateLimit.RefillInterval).
		Str("auth_header", c.AuthHeader).
		Str("identity_source", identitySource).
		Dur("shutdown_timeout", c.ShutdownTimeout).
		Msg("Gateway configuration")
}
