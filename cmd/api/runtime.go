package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"teamworks/api/internal/app"
	"teamworks/api/internal/config"
	"teamworks/api/internal/logging"
	"teamworks/api/internal/search"
	"teamworks/api/internal/store"
)

// backend is the data store picked by STORE_BACKEND together with its
// shutdown hook.
type backend interface {
	app.DataStore
	Close(ctx context.Context) error
}

func loadConfig() (config.Config, *log.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logging.New(cfg.LogLevel, cfg.LogFormat), nil
}

// openStore connects the configured backend. Postgres migrations run only
// when migrate is set.
func openStore(ctx context.Context, cfg config.Config, logger *log.Logger, migrate bool) (backend, error) {
	switch cfg.StoreBackend {
	case config.BackendMongo:
		client, db, err := store.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		mongoStore := store.NewMongoStore(client, db)
		if err := mongoStore.EnsureIndexes(ctx); err != nil {
			_ = mongoStore.Close(ctx)
			return nil, fmt.Errorf("ensure indexes: %w", err)
		}
		logger.Info("store ready", "backend", cfg.StoreBackend, "database", cfg.MongoDatabase)
		return mongoStore, nil
	default:
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if migrate {
			applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
			if err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("migrations: %w", err)
			}
			for _, version := range applied {
				logger.Info("migration applied", "version", version)
			}
		}
		logger.Info("store ready", "backend", config.BackendPostgres)
		return store.NewPostgresStore(db), nil
	}
}

// newSearch wires Meilisearch when MEILI_URL is set. The returned close
// function is always safe to call.
func newSearch(cfg config.Config, fallback search.Fallback, logger *log.Logger) (*search.Service, func()) {
	if strings.TrimSpace(cfg.MeiliURL) == "" {
		logger.Info("meilisearch not configured, using store search")
		return search.NewService(nil, fallback, logger), func() {}
	}
	engine := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger.WithPrefix("meilisearch"))
	return search.NewService(engine, fallback, logger), engine.Close
}
