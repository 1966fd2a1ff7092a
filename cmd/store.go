package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/opstrata/outage-cli/internal/store"
)

func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "outage.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		pool := &store.PoolConfig{
			MaxConns: cfg.Store.Pool.MaxConns,
			MinConns: cfg.Store.Pool.MinConns,
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
