package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/storefront/internal/config"
	"github.com/utafrali/storefront/internal/storage"
	"github.com/utafrali/storefront/internal/storage/file"
	"github.com/utafrali/storefront/internal/storage/memory"
	"github.com/utafrali/storefront/internal/storage/postgres"
	redisstore "github.com/utafrali/storefront/internal/storage/redis"
	"github.com/utafrali/storefront/pkg/database"
	"github.com/utafrali/storefront/pkg/health"
)

// purger deletes snapshots that have not been written since cutoff.
type purger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// openStore connects the configured storage driver and registers its
// readiness check as critical.
func (a *App) openStore(ctx context.Context, healthHandler *health.Handler) (storage.Store, error) {
	cfg := a.cfg

	switch cfg.StorageDriver {
	case config.DriverFile:
		store, err := file.Open(cfg.StorageFilePath)
		if err != nil {
			return nil, fmt.Errorf("open cart file store: %w", err)
		}
		healthHandler.RegisterCritical("storage", store.Ping)
		a.logger.Info("using file cart storage", slog.String("path", store.Path()))
		return store, nil

	case config.DriverRedis:
		rdb, err := database.NewRedisClient(ctx, database.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.closers = append(a.closers, closer{name: "redis", close: rdb.Close})

		store := redisstore.NewStore(rdb, cfg.CartTTLDuration())
		healthHandler.RegisterCritical("storage", store.Ping)
		a.logger.Info("connected to Redis",
			slog.String("addr", cfg.RedisAddr),
			slog.Int("db", cfg.RedisDB),
		)
		return store, nil

	case config.DriverPostgres:
		pool, err := database.NewPostgresPool(ctx, database.DefaultPostgresConfig(cfg.PostgresDSN), a.logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.closers = append(a.closers, closer{name: "postgres", close: func() error {
			pool.Close()
			return nil
		}})

		if err := database.RunMigrations(ctx, pool, postgres.Migrations(), a.logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}

		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, a.logger)
		if err := database.RegisterPoolMetrics(pool, "storefront"); err != nil {
			return nil, fmt.Errorf("register pool metrics: %w", err)
		}

		store := postgres.NewStore(pool)
		a.purger = store
		healthHandler.RegisterCritical("storage", pool.Ping)
		a.logger.Info("connected to PostgreSQL")
		return store, nil

	default:
		a.logger.Warn("using in-memory cart storage; carts are lost on restart")
		return memory.NewStore(), nil
	}
}

// runPurge drops abandoned snapshots once per interval. Redis expires keys
// on its own, so only the postgres driver needs this.
func (a *App) runPurge(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-a.cfg.CartTTLDuration())
			n, err := a.purger.PurgeOlderThan(ctx, cutoff)
			if err != nil {
				a.logger.Error("cart snapshot purge failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				a.logger.Info("purged abandoned carts", slog.Int64("count", n))
			}
		}
	}
}
