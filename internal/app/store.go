package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/snapgallery/backoffice/internal/audit"
	"github.com/snapgallery/backoffice/internal/audit/gormstore"
	"github.com/snapgallery/backoffice/internal/audit/memstore"
	"github.com/snapgallery/backoffice/internal/audit/pgstore"
	"github.com/snapgallery/backoffice/internal/platform/cache"
	"github.com/snapgallery/backoffice/internal/platform/db"
)

// OpenStore builds the audit store selected by AUDIT_STORE. The returned
// close function releases the underlying connections.
func OpenStore(ctx context.Context, cfg *Config, logger *slog.Logger) (audit.Store, func(), error) {
	return OpenStoreWithClock(ctx, cfg, logger, nil)
}

// OpenStoreWithClock is OpenStore with an explicit timestamp source.
func OpenStoreWithClock(ctx context.Context, cfg *Config, logger *slog.Logger, clock audit.Clock) (audit.Store, func(), error) {
	switch cfg.AuditStore {
	case StoreMemory:
		logger.Warn("audit store is in-memory; entries are lost on restart")
		return memstore.New(clock), func() {}, nil
	case StoreSQLite:
		gdb, err := gormstore.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		store := gormstore.New(gdb, clock)
		if err := store.Migrate(ctx); err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if sqlDB, err := gdb.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return store, closeFn, nil
	case StorePostgres:
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return nil, nil, err
		}
		err = db.WithTx(ctx, pool, func(tx pgx.Tx) error {
			return pgstore.New(tx, nil).EnsureSchema(ctx)
		})
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("app: ensure audit schema: %w", err)
		}
		return pgstore.New(pool, clock), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("app: unsupported audit store %q", cfg.AuditStore)
	}
}

// OpenRedis connects to REDIS_ADDR. When Redis is unreachable the stats
// cache is disabled and a nil client is returned.
func OpenRedis(ctx context.Context, cfg *Config, logger *slog.Logger) *redis.Client {
	client, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, stats cache disabled", slog.Any("error", err))
		return nil
	}
	return client
}
