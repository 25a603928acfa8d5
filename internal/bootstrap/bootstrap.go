// Package bootstrap turns a loaded Config into the concrete adapters shared by the
// server and the command line tools.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/okian/champstock/internal/adapters/lock"
	"github.com/okian/champstock/internal/adapters/repository"
	"github.com/okian/champstock/internal/adapters/repository/postgres"
	"github.com/okian/champstock/internal/adapters/repository/sqlite"
	"github.com/okian/champstock/internal/adapters/riot"
	service "github.com/okian/champstock/internal/app"
	"github.com/okian/champstock/internal/config"
	"github.com/okian/champstock/internal/domain/frontier"
	"github.com/okian/champstock/internal/domain/scoring"
	"github.com/okian/champstock/pkg/logger"
)

// StoreWriter is a store that can also seed rosters.
type StoreWriter interface {
	repository.Store
	repository.RosterWriter
}

// OpenStore opens the configured storage driver.
func OpenStore(ctx context.Context, cfg *config.Config) (StoreWriter, error) {
	switch cfg.StorageDriver {
	case config.StorageMemory:
		return repository.NewMemoryStore(), nil
	case config.StorageSQLite:
		s, err := sqlite.New(cfg.StorageDSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.StorageDSN, err)
		}
		return s, nil
	case config.StoragePostgres:
		s, err := postgres.Open(ctx, cfg.StorageDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unknown storage_driver %q", config.ErrInvalidConfig, cfg.StorageDriver)
	}
}

// OpenRedis returns a client when any component needs one, nil otherwise.
func OpenRedis(ctx context.Context, cfg *config.Config) (redis.UniversalClient, error) {
	if !cfg.UsesRedis() {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
	}
	return client, nil
}

// NewLocker returns the configured per-market locker.
func NewLocker(cfg *config.Config, client redis.UniversalClient) lock.Locker {
	if cfg.LockDriver == config.LockRedis && client != nil {
		return lock.NewRedis(client, cfg.LockTTL)
	}
	return lock.NewLocal()
}

// NewRiotClient builds the match data gateway from config.
func NewRiotClient(cfg *config.Config, log logger.Logger) *riot.Client {
	return riot.NewClient(cfg.RiotAPIKey,
		riot.WithBaseURL(cfg.RiotBaseURL),
		riot.WithRateLimit(cfg.RiotRequestsPerSecond, cfg.RiotBurst),
		riot.WithRetryPolicy(cfg.RiotMaxRateLimitRetries, cfg.RiotDefaultRetryAfter, cfg.RiotMaxBackoff),
		riot.WithRequestTimeout(cfg.RiotRequestTimeout),
		riot.WithLogger(log.Named("riot")))
}

// LoadModels loads every role artifact. A missing or corrupt artifact is a startup error.
func LoadModels(ctx context.Context, cfg *config.Config) (*scoring.Registry, error) {
	reg := scoring.NewRegistry(scoring.WithDir(cfg.ModelsDir))
	if err := reg.Ensure(ctx); err != nil {
		return nil, fmt.Errorf("load models from %s: %w", cfg.ModelsDir, err)
	}
	return reg, nil
}

// NewUpdater wires the per-market update cycle.
func NewUpdater(cfg *config.Config, store repository.Store, models *scoring.Registry,
	client *riot.Client, locker lock.Locker, log logger.Logger) *service.Updater {
	scanner := frontier.NewScanner(store, models,
		frontier.WithMatchCount(cfg.RiotMatchCount),
		frontier.WithLogger(log.Named("frontier")))
	return service.NewUpdater(store, scanner,
		func() frontier.Gateway { return client.ForCycle() },
		service.WithLocker(locker),
		service.WithScanConcurrency(cfg.ScanConcurrency),
		service.WithCycleTimeout(cfg.CycleTimeout),
		service.WithUpdaterLogger(log.Named("updater")))
}
