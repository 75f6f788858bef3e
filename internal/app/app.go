// Package app wires configuration into the concrete store and logger shared
// by cmd/server and cmd/payctl.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/warp/payroll-engine/api"
	"github.com/warp/payroll-engine/internal/config"
	"github.com/warp/payroll-engine/internal/logger"
	"github.com/warp/payroll-engine/store/postgres"
	"github.com/warp/payroll-engine/store/sqlite"
)

// Store is the full storage surface plus Close.
type Store interface {
	api.Store
	Close() error
}

// OpenStore opens the configured backend. PostgreSQL migrations are applied
// before connecting; SQLite creates its schema on open.
func OpenStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (Store, error) {
	switch cfg.Database.Driver {
	case "postgres":
		if err := postgres.Migrate(cfg.Database.URL); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		st, err := postgres.Open(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		log.Info("database opened", "driver", "postgres")
		return st, nil
	case "sqlite":
		st, err := sqlite.New(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		log.Info("database opened", "driver", "sqlite", "path", cfg.Database.Path)
		return st, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

// Logger builds and installs the default logger from the logging section.
func Logger(cfg *config.Config) (*slog.Logger, error) {
	return logger.Setup(logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
}
