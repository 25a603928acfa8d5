// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Keys are flat snake_case so env vars map 1:1 (CHAMPSTOCK_RIOT_API_KEY -> riot_api_key).
// - New(ctx) returns defaults; Load(ctx) layers file and env on top and validates.
package config

import (
	"context"
	"fmt"
	"time"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Lock drivers.
const (
	LockLocal = "local"
	LockRedis = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the pending market trigger queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets how many market cycles may run at once.
	WorkerCount int `koanf:"worker_count"`

	// ScanConcurrency bounds concurrent player scans inside one cycle. 0 means unbounded.
	ScanConcurrency int `koanf:"scan_concurrency"`

	// CycleTimeout caps a single market update cycle.
	CycleTimeout time.Duration `koanf:"cycle_timeout"`

	RiotAPIKey              string        `koanf:"riot_api_key"`
	RiotBaseURL             string        `koanf:"riot_base_url"`
	RiotMatchCount          int           `koanf:"riot_match_count"`
	RiotRequestsPerSecond   float64       `koanf:"riot_requests_per_second"`
	RiotBurst               int           `koanf:"riot_burst"`
	RiotRequestTimeout      time.Duration `koanf:"riot_request_timeout"`
	RiotMaxRateLimitRetries int           `koanf:"riot_max_rate_limit_retries"`
	RiotDefaultRetryAfter   time.Duration `koanf:"riot_default_retry_after"`
	RiotMaxBackoff          time.Duration `koanf:"riot_max_backoff"`

	// ModelsDir holds one <role>_model.json artifact per role.
	ModelsDir string `koanf:"models_dir"`

	StorageDriver string `koanf:"storage_driver"`
	StorageDSN    string `koanf:"storage_dsn"`

	LockDriver string        `koanf:"lock_driver"`
	LockTTL    time.Duration `koanf:"lock_ttl"`

	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// TriggerRedisList enables the Redis list trigger listener when non-empty.
	TriggerRedisList string `koanf:"trigger_redis_list"`
}

// New creates a Config with defaults. The context is accepted for symmetry with Load.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:                "info",
		LogFormat:               "text",
		Addr:                    ":9080",
		QueueSize:               1024,
		WorkerCount:             4,
		ScanConcurrency:         0,
		CycleTimeout:            10 * time.Minute,
		RiotBaseURL:             "https://americas.api.riotgames.com",
		RiotMatchCount:          20,
		RiotRequestsPerSecond:   20,
		RiotBurst:               20,
		RiotRequestTimeout:      15 * time.Second,
		RiotMaxRateLimitRetries: 8,
		RiotDefaultRetryAfter:   10 * time.Second,
		RiotMaxBackoff:          2 * time.Minute,
		ModelsDir:               "models",
		StorageDriver:           StorageSQLite,
		StorageDSN:              "champstock.db",
		LockDriver:              LockLocal,
		LockTTL:                 15 * time.Minute,
		RedisAddr:               "localhost:6379",
	}
}

// Validate checks the configuration for values the service cannot start with.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.RiotAPIKey == "":
		return fmt.Errorf("%w: riot_api_key must be set", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.ScanConcurrency < 0:
		return fmt.Errorf("%w: scan_concurrency must not be negative", ErrInvalidConfig)
	case c.RiotMatchCount <= 0 || c.RiotMatchCount > 100:
		return fmt.Errorf("%w: riot_match_count must be within 1..100", ErrInvalidConfig)
	case c.RiotRequestsPerSecond <= 0 || c.RiotBurst <= 0:
		return fmt.Errorf("%w: riot rate limit must be positive", ErrInvalidConfig)
	case c.RiotMaxRateLimitRetries < 0:
		return fmt.Errorf("%w: riot_max_rate_limit_retries must not be negative", ErrInvalidConfig)
	}
	switch c.StorageDriver {
	case StorageMemory, StorageSQLite, StoragePostgres:
	default:
		return fmt.Errorf("%w: unknown storage_driver %q", ErrInvalidConfig, c.StorageDriver)
	}
	if c.StorageDriver != StorageMemory && c.StorageDSN == "" {
		return fmt.Errorf("%w: storage_dsn required for %s", ErrInvalidConfig, c.StorageDriver)
	}
	switch c.LockDriver {
	case LockLocal:
	case LockRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: redis_addr required for redis lock", ErrInvalidConfig)
		}
		// The lock must outlive every cycle it guards.
		if c.CycleTimeout <= 0 || c.CycleTimeout >= c.LockTTL {
			return fmt.Errorf("%w: cycle_timeout must be positive and below lock_ttl for redis lock", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown lock_driver %q", ErrInvalidConfig, c.LockDriver)
	}
	if c.TriggerRedisList != "" && c.RedisAddr == "" {
		return fmt.Errorf("%w: redis_addr required for trigger_redis_list", ErrInvalidConfig)
	}
	return nil
}

// ValidateTrigger checks only what pushing onto the Redis trigger list needs.
func (c *Config) ValidateTrigger() error {
	switch {
	case c.TriggerRedisList == "":
		return fmt.Errorf("%w: trigger_redis_list must be set to enqueue", ErrInvalidConfig)
	case c.RedisAddr == "":
		return fmt.Errorf("%w: redis_addr required for trigger_redis_list", ErrInvalidConfig)
	}
	return nil
}

// UsesRedis reports whether any component needs a Redis client.
func (c *Config) UsesRedis() bool {
	return c.LockDriver == LockRedis || c.TriggerRedisList != ""
}
