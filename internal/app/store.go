package app

import (
	"context"
	"fmt"
	"log/slog"

	"licensehub/internal/config"
	"licensehub/internal/store"
	"licensehub/internal/store/memory"
	"licensehub/internal/store/postgres"
	"licensehub/internal/store/redis"
	"licensehub/internal/store/sqlite"
)

// OpenStore connects the store selected by cfg.Driver and applies its
// migrations where it has any.
func OpenStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (store.Store, error) {
	switch cfg.Driver {
	case store.DriverMemory:
		logger.WarnContext(ctx, "using in-memory store, licenses are lost on restart")
		return memory.New(), nil

	case store.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return s, nil

	case store.DriverRedis:
		client, err := redis.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return redis.New(client, cfg.RedisPrefix, logger), nil

	case store.DriverPostgres:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.MaxConns)
		if err != nil {
			return nil, err
		}
		if err := postgres.RunMigrations(ctx, db); err != nil {
			if sqlDB, dbErr := db.DB(); dbErr == nil {
				_ = sqlDB.Close()
			}
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return postgres.New(db, logger), nil
	}
	return nil, fmt.Errorf("unknown store driver: %q", cfg.Driver)
}
