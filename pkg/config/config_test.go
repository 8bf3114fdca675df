package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 4*time.Minute, cfg.Queue.TurnDuration)
	assert.Equal(t, 2*time.Second, cfg.Queue.Cooldown)
	assert.Equal(t, 500*time.Millisecond, cfg.Queue.RebootDelay)
	assert.Equal(t, 10*time.Second, cfg.Queue.ExpiryCheckInterval)
	assert.Equal(t, 24*time.Hour, cfg.Queue.SessionTTL)
	assert.Equal(t, "admin123", cfg.Admin.Secret)
}

func TestValidate_RateLimitingDisabled_AllowsZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 0
	cfg.RateLimiting.HTTP.Burst = 0
	cfg.RateLimiting.HTTP.MaxConcurrent = 0

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected config to be valid when rate limiting disabled, got error: %v", err)
	}
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty address", func(c *Config) { c.Server.Address = "" }},
		{"turn duration must be > 0", func(c *Config) { c.Queue.TurnDuration = 0 }},
		{"cooldown must be >= 0", func(c *Config) { c.Queue.Cooldown = -time.Second }},
		{"expiry interval must be > 0", func(c *Config) { c.Queue.ExpiryCheckInterval = 0 }},
		{"session ttl must be > 0", func(c *Config) { c.Queue.SessionTTL = 0 }},
		{"empty admin secret", func(c *Config) { c.Admin.Secret = "" }},
		{"observer buffer must be > 0", func(c *Config) { c.Observers.Buffer = 0 }},
		{"bad origin", func(c *Config) { c.Observers.AllowedOrigins = []string{"ftp://x"} }},
		{"redis without address", func(c *Config) {
			c.Redis.Enabled = true
			c.Redis.Address = ""
		}},
		{"redis lock without ttl", func(c *Config) {
			c.Redis.Enabled = true
			c.Redis.LockTTL = 0
		}},
		{"http rps must be > 0", func(c *Config) {
			c.RateLimiting.Enabled = true
			c.RateLimiting.HTTP.RequestsPerSecond = 0
		}},
		{"http max concurrent must be >= 0", func(c *Config) {
			c.RateLimiting.Enabled = true
			c.RateLimiting.HTTP.MaxConcurrent = -1
		}},
		{"tracing sample rate range", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.SampleRate = 2
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Queue, cfg.Queue)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  address: ":9000"
queue:
  turn_duration: 90s
  cooldown: 1s
admin:
  secret: s3cret
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, 90*time.Second, cfg.Queue.TurnDuration)
	assert.Equal(t, time.Second, cfg.Queue.Cooldown)
	assert.Equal(t, 500*time.Millisecond, cfg.Queue.RebootDelay)
	assert.Equal(t, "s3cret", cfg.Admin.Secret)
}

func TestLoad_InvalidYAMLFailsValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("queue:\n  turn_duration: 0s\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "8088")
	t.Setenv("SMARTCLEAN_ADMIN_SECRET", "from-env")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8088", cfg.Server.Address)
	assert.Equal(t, "from-env", cfg.Admin.Secret)
}
