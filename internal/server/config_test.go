package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, []string{"http://localhost:8080"}, cfg.AllowedOrigins)
	assert.EqualValues(t, 512, cfg.MaxMessageSize)
	assert.Equal(t, 256, cfg.SendBufferSize)
	assert.Equal(t, 5, cfg.RateLimit.Burst)
	assert.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
	assert.Equal(t, "authentication", cfg.AuthHeader)
	assert.Equal(t, "no-message", cfg.EmptyMessagePlaceholder)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.JWTSecret)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9999")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example, https://b.example ,")
	t.Setenv("MAX_MESSAGE_SIZE", "2048")
	t.Setenv("RATE_LIMIT_BURST", "7")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "3s")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("IDENTITY_FILE", "users.yaml")
	t.Setenv("EMPTY_MESSAGE_PLACEHOLDER", "(empty)")

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Port)
	assert.Equal(t, []string{"http://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.EqualValues(t, 2048, cfg.MaxMessageSize)
	assert.Equal(t, 7, cfg.RateLimit.Burst)
	assert.Equal(t, 3*time.Second, cfg.RateLimit.RefillInterval)
	assert.Equal(t, "(empty)", cfg.EmptyMessagePlaceholder)
}

func TestLoadConfigRequiresSecretAndIdentitySource(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("IDENTITY_FILE", "")
	t.Setenv("DATABASE_URL", "")

	_, err := LoadConfig(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "IDENTITY_FILE")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := NewConfig()
		cfg.JWTSecret = "x"
		cfg.IdentityFile = "users.yaml"
		return cfg
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty port", func(c *Config) { c.Port = "" }},
		{"zero message size", func(c *Config) { c.MaxMessageSize = 0 }},
		{"zero send buffer", func(c *Config) { c.SendBufferSize = 0 }},
		{"zero burst", func(c *Config) { c.RateLimit.Burst = 0 }},
		{"zero refill", func(c *Config) { c.RateLimit.RefillInterval = 0 }},
		{"empty header", func(c *Config) { c.AuthHeader = "" }},
		{"empty placeholder", func(c *Config) { c.EmptyMessagePlaceholder = "" }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
