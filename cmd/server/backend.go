package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openshelf/lending-hub/internal/application/lending"
	"github.com/openshelf/lending-hub/internal/config"
	"github.com/openshelf/lending-hub/internal/domain/message"
	"github.com/openshelf/lending-hub/internal/infrastructure/boltstore"
	"github.com/openshelf/lending-hub/internal/infrastructure/gormstore"
	"github.com/openshelf/lending-hub/internal/infrastructure/memory"
	"github.com/openshelf/lending-hub/internal/infrastructure/postgres"
	"github.com/openshelf/lending-hub/internal/migrations"
)

type backend struct {
	store    lending.Store
	messages message.Repository
	close    func()
}

func openBackend(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*backend, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		applied, err := postgres.RunMigrations(ctx, pool, migrations.FS)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		for _, name := range applied {
			logger.Info().Str("migration", name).Msg("migration applied")
		}
		return &backend{
			store:    postgres.NewStore(pool),
			messages: postgres.NewMessageRepository(pool),
			close:    pool.Close,
		}, nil

	case config.DriverGormPostgres, config.DriverSQLite:
		dialect, dsn := gormstore.DialectPostgres, cfg.DatabaseURL
		if cfg.StoreDriver == config.DriverSQLite {
			dialect, dsn = gormstore.DialectSQLite, cfg.SQLitePath
		}
		db, err := gormstore.Open(dialect, dsn)
		if err != nil {
			return nil, err
		}
		return &backend{
			store:    gormstore.NewStore(db),
			messages: gormstore.NewMessageRepository(db),
			close: func() {
				if sqlDB, err := db.DB(); err == nil {
					_ = sqlDB.Close()
				}
			},
		}, nil

	case config.DriverBolt:
		db, err := boltstore.Open(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
		return &backend{
			store:    boltstore.NewStore(db),
			messages: boltstore.NewMessageRepository(db),
			close:    func() { _ = db.Close() },
		}, nil

	case config.DriverMemory:
		logger.Warn().Msg("memory store selected, state is lost on restart")
		return &backend{
			store:    memory.NewStore(),
			messages: memory.NewMessageRepository(),
			close:    func() {},
		}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
