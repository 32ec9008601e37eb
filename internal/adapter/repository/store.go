package repository

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/hive-corporation/vantage/internal/config"
	"github.com/hive-corporation/vantage/internal/core/ports"
)

var (
	_ ports.Store = (*MemoryRepository)(nil)
	_ ports.Store = (*PostgresRepository)(nil)
	_ ports.Store = (*SQLiteRepository)(nil)
)

// Open returns the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (ports.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryRepository(), nil
	case "postgres":
		repo, err := OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case "sqlite":
		repo, err := OpenSQLite(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, eris.Errorf("repository: unsupported store driver %q", cfg.Driver)
	}
}
