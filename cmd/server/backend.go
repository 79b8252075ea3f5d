package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/emilythestrangee/devoverflow/backend/internal/config"
	"github.com/emilythestrangee/devoverflow/backend/internal/database"
	"github.com/emilythestrangee/devoverflow/backend/internal/ledger"
	"github.com/emilythestrangee/devoverflow/backend/internal/mongostore"
)

// backend is the configured ledger store plus its lifecycle hooks.
type backend struct {
	store   ledger.Store
	migrate func(ctx context.Context) error
	close   func()
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := database.New(cfg)
		if err != nil {
			return nil, err
		}
		return &backend{
			store:   db,
			migrate: db.Migrate,
			close: func() {
				if err := db.Close(); err != nil {
					zap.L().Error("failed to close database", zap.Error(err))
				}
			},
		}, nil

	case config.DriverMongo:
		store, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return &backend{
			store:   store,
			migrate: store.EnsureIndexes,
			close: func() {
				if err := store.Close(context.Background()); err != nil {
					zap.L().Error("failed to close mongo client", zap.Error(err))
				}
			},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}
