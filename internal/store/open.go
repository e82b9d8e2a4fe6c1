package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/CosmoTheDev/devops-atlas/internal/config"
	"github.com/CosmoTheDev/devops-atlas/internal/database"
)

// Open builds the engine selected by cfg.Database.Driver and returns a Store
// over the default schema.
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	engine, err := OpenEngine(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(engine, DefaultSchema()), nil
}

// OpenEngine opens and prepares the configured storage engine.
func OpenEngine(ctx context.Context, cfg *config.Config) (Engine, error) {
	if cfg.Database.Driver == "badger" {
		e, err := OpenBadger(BadgerConfig{
			Dir:        cfg.Database.BadgerDir,
			InMemory:   cfg.Database.InMemory,
			GCSchedule: cfg.Store.BadgerGCSchedule,
			GCRatio:    cfg.Store.BadgerGCRatio,
			Logger:     slog.Default(),
		})
		if err != nil {
			return nil, err
		}
		return e, nil
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s store: %w", db.Driver(), err)
	}
	return NewSQLEngine(db), nil
}
