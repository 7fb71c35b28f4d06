package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mikoajp/EventHub-sub001/internal/config"
	"github.com/mikoajp/EventHub-sub001/internal/idempotency"
	"github.com/mikoajp/EventHub-sub001/internal/repository"
	"github.com/mikoajp/EventHub-sub001/internal/repository/pgrepo"
)

// Backend bundles the stores for the configured driver.
type Backend struct {
	Tickets     repository.TicketStore
	Idempotency idempotency.Store
	Ping        func(ctx context.Context) error
	Close       func()
}

// Connect opens the database selected by cfg.Driver and optionally applies
// the embedded schema.
func Connect(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*Backend, error) {
	switch cfg.Driver {
	case "mysql", "":
		db, err := Open(cfg)
		if err != nil {
			return nil, fmt.Errorf("open mysql: %w", err)
		}
		if cfg.Migrate {
			if err := ApplyMySQLSchema(ctx, db); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		return &Backend{
			Tickets:     repository.NewTicketRepo(db),
			Idempotency: repository.NewIdempotencyRepo(db),
			Ping:        db.PingContext,
			Close:       func() { _ = db.Close() },
		}, nil
	case "postgres":
		pool, err := NewPool(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		if cfg.Migrate {
			if err := ApplyPostgresSchema(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return &Backend{
			Tickets:     pgrepo.NewTicketRepo(pool),
			Idempotency: pgrepo.NewIdempotencyRepo(pool),
			Ping:        pool.Ping,
			Close:       pool.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}
}
