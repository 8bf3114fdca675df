package config

import (
	"fmt"
	"os"
	"time"

	"smartclean/pkg/validation"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"` // 0 disables; observer streams are long-lived
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Queue struct {
		TurnDuration         time.Duration `yaml:"turn_duration"`
		Cooldown             time.Duration `yaml:"cooldown"`
		RebootDelay          time.Duration `yaml:"reboot_delay"`
		ExpiryCheckInterval  time.Duration `yaml:"expiry_check_interval"`
		SessionTTL           time.Duration `yaml:"session_ttl"`
		SessionSweepInterval time.Duration `yaml:"session_sweep_interval"`
		StatusPreview        int           `yaml:"status_preview"`
		StreamPreview        int           `yaml:"stream_preview"`
	} `yaml:"queue"`

	Admin struct {
		Secret string `yaml:"secret"`
	} `yaml:"admin"`

	Observers struct {
		Buffer         int           `yaml:"buffer"`
		PingInterval   time.Duration `yaml:"ping_interval"`
		WriteTimeout   time.Duration `yaml:"write_timeout"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"observers"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Address  string        `yaml:"address"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		PoolSize int           `yaml:"pool_size"`
		Channel  string        `yaml:"channel"`
		LockKey  string        `yaml:"lock_key"`
		LockTTL  time.Duration `yaml:"lock_ttl"`
	} `yaml:"redis"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"` // global concurrent HTTP requests
		} `yaml:"http"`
	} `yaml:"rate_limiting"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server.write_timeout must be >= 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Queue
	if c.Queue.TurnDuration <= 0 {
		return fmt.Errorf("queue.turn_duration must be > 0")
	}
	if c.Queue.Cooldown < 0 {
		return fmt.Errorf("queue.cooldown must be >= 0")
	}
	if c.Queue.RebootDelay < 0 {
		return fmt.Errorf("queue.reboot_delay must be >= 0")
	}
	if c.Queue.ExpiryCheckInterval <= 0 {
		return fmt.Errorf("queue.expiry_check_interval must be > 0")
	}
	if c.Queue.SessionTTL <= 0 {
		return fmt.Errorf("queue.session_ttl must be > 0")
	}
	if c.Queue.SessionSweepInterval <= 0 {
		return fmt.Errorf("queue.session_sweep_interval must be > 0")
	}
	if c.Queue.StatusPreview < 0 || c.Queue.StreamPreview < 0 {
		return fmt.Errorf("queue preview sizes must be >= 0")
	}

	// Admin
	if c.Admin.Secret == "" {
		return fmt.Errorf("admin.secret must not be empty")
	}

	// Observers
	if c.Observers.Buffer <= 0 {
		return fmt.Errorf("observers.buffer must be > 0")
	}
	if c.Observers.PingInterval <= 0 {
		return fmt.Errorf("observers.ping_interval must be > 0")
	}
	if c.Observers.WriteTimeout <= 0 {
		return fmt.Errorf("observers.write_timeout must be > 0")
	}
	for _, origin := range c.Observers.AllowedOrigins {
		if err := validation.ValidateOrigin(origin); err != nil {
			return fmt.Errorf("observers.allowed_origins: %q: %w", origin, err)
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
		if c.Redis.Channel == "" {
			return fmt.Errorf("redis.channel must not be empty when redis.enabled=true")
		}
		if c.Redis.LockKey != "" && c.Redis.LockTTL <= 0 {
			return fmt.Errorf("redis.lock_ttl must be > 0 when redis.lock_key is set")
		}
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
	}

	// Tracing
	if c.Tracing.Enabled {
		if err := validation.ValidateURL(c.Tracing.JaegerURL); err != nil {
			return fmt.Errorf("tracing.jaeger_url: %w", err)
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":3000"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 0
	cfg.Server.ShutdownTimeout = 15 * time.Second

	cfg.Queue.TurnDuration = 4 * time.Minute
	cfg.Queue.Cooldown = 2 * time.Second
	cfg.Queue.RebootDelay = 500 * time.Millisecond
	cfg.Queue.ExpiryCheckInterval = 10 * time.Second
	cfg.Queue.SessionTTL = 24 * time.Hour
	cfg.Queue.SessionSweepInterval = time.Hour
	cfg.Queue.StatusPreview = 10
	cfg.Queue.StreamPreview = 5

	cfg.Admin.Secret = "admin123"

	cfg.Observers.Buffer = 16
	cfg.Observers.PingInterval = 30 * time.Second
	cfg.Observers.WriteTimeout = 10 * time.Second
	cfg.Observers.AllowedOrigins = []string{"*"}

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10
	cfg.Redis.Channel = "smartclean:snapshots"
	cfg.Redis.LockKey = "smartclean:controller"
	cfg.Redis.LockTTL = 15 * time.Second

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 20
	cfg.RateLimiting.HTTP.Burst = 40
	cfg.RateLimiting.HTTP.MaxConcurrent = 0

	cfg.Tracing.Enabled = false
	cfg.Tracing.ServiceName = "smartclean"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Address = ":" + port
	}
	if addr := os.Getenv("SMARTCLEAN_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if level := os.Getenv("SMARTCLEAN_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("SMARTCLEAN_ADMIN_SECRET"); secret != "" {
		c.Admin.Secret = secret
	}
	if addr := os.Getenv("SMARTCLEAN_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
		c.Redis.Enabled = true
	}
}
