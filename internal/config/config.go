// Package config handles application configuration from environment variables
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the API and worker configuration
type Config struct {
	Port          string `env:"PORT" envDefault:"8080"`
	BaseURL       string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	DatabaseURL   string `env:"DATABASE_URL"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	JWTSecret     string `env:"JWT_SECRET"`
	SecretKey     string `env:"SECRET_KEY"` // master key for social tokens at rest
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty     bool   `env:"LOG_PRETTY"`
	SecureCookie  bool   `env:"SECURE_COOKIE"`

	Cache  CacheConfig  `envPrefix:"CACHE_"`
	Worker WorkerConfig `envPrefix:"WORKER_"`
}

// CacheConfig tunes the server-side response cache
type CacheConfig struct {
	DefaultTTL      time.Duration `env:"DEFAULT_TTL" envDefault:"5m"`
	MaxEntries      int           `env:"MAX_ENTRIES" envDefault:"10000"`
	LoadTimeout     time.Duration `env:"LOAD_TIMEOUT" envDefault:"10s"`
	JanitorInterval time.Duration `env:"JANITOR_INTERVAL" envDefault:"1m"`
	RedisEnabled    bool          `env:"REDIS_ENABLED" envDefault:"true"`
	RedisPrefix     string        `env:"REDIS_PREFIX" envDefault:"airwave:cache:"`
}

// WorkerConfig configures the cache warming worker
type WorkerConfig struct {
	Concurrency  int           `env:"CONCURRENCY" envDefault:"4"`
	WarmSchedule string        `env:"WARM_SCHEDULE" envDefault:"@every 5m"`
	WarmTimeout  time.Duration `env:"WARM_TIMEOUT" envDefault:"30s"`
}

// ClientConfig holds the CLI's API client settings
type ClientConfig struct {
	APIURL   string        `env:"AIRWAVE_API_URL" envDefault:"http://localhost:8080"`
	Token    string        `env:"AIRWAVE_TOKEN"`
	CacheDir string        `env:"AIRWAVE_CACHE_DIR"`
	CacheTTL time.Duration `env:"AIRWAVE_CACHE_TTL" envDefault:"5m"`
}

// Load reads the service configuration from the environment
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// LoadClient reads the CLI configuration from the environment
func LoadClient() (ClientConfig, error) {
	cfg, err := env.ParseAs[ClientConfig]()
	if err != nil {
		return ClientConfig{}, fmt.Errorf("parse client config: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings the API server cannot start without. An empty
// DATABASE_URL is allowed and selects the in-memory catalog.
func (c Config) Validate() error {
	var errs []error
	if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}
	if c.SecretKey == "" {
		errs = append(errs, errors.New("SECRET_KEY is required"))
	}
	if c.Cache.DefaultTTL < 0 {
		errs = append(errs, fmt.Errorf("CACHE_DEFAULT_TTL must not be negative, got %s", c.Cache.DefaultTTL))
	}
	if c.Cache.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("CACHE_MAX_ENTRIES must not be negative, got %d", c.Cache.MaxEntries))
	}
	if c.Cache.JanitorInterval <= 0 {
		errs = append(errs, fmt.Errorf("CACHE_JANITOR_INTERVAL must be positive, got %s", c.Cache.JanitorInterval))
	}
	return errors.Join(errs...)
}

// ValidateWorker checks the settings the worker needs
func (c Config) ValidateWorker() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.SecretKey == "" {
		errs = append(errs, errors.New("SECRET_KEY is required"))
	}
	if c.Worker.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", c.Worker.Concurrency))
	}
	return errors.Join(errs...)
}

// HasToken returns true if the CLI has credentials for the API
func (c ClientConfig) HasToken() bool {
	return c.Token != ""
}
