package dbwriter

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/your-org/bar-forecast/internal/config"
)

// Open builds the Repository selected by cfg.Storage. For the timescale driver the
// migrations in cfg.Storage.Migrations are applied before the pool is opened.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Repository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Storage.Driver {
	case "none", "":
		return NewNopWriter(logger), nil
	case "memory":
		return NewInMemWriter(), nil
	case "sqlite":
		return NewSQLiteWriter(cfg.Storage.DSN, logger)
	case "timescale":
		dsn := cfg.Database.DSN()
		if err := Migrate(dsn, cfg.Storage.Migrations, logger); err != nil {
			return nil, err
		}
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("dbwriter: connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("dbwriter: ping: %w", err)
		}
		return NewTimescaleWriter(pool, cfg.Storage.BatchSize, logger)
	default:
		return nil, fmt.Errorf("%w: unknown storage driver %q", config.ErrInvalidConfig, cfg.Storage.Driver)
	}
}
