// Package store opens the configured ledger backend.
package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/prn-tf/amplify-storage/internal/config"
	"github.com/prn-tf/amplify-storage/internal/repository"
	"github.com/prn-tf/amplify-storage/internal/repository/postgres"
	"github.com/prn-tf/amplify-storage/internal/repository/sqlite"
)

// Store is an opened database and its repositories.
type Store struct {
	Repos    *repository.Repositories
	Database repository.Database
	Driver   string
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.Database.Close()
}

// Open connects to the database selected by cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*Store, error) {
	logger = logger.With().Str("component", "store").Str("driver", cfg.Driver).Logger()

	switch cfg.Driver {
	case config.DriverPostgres:
		db, err := postgres.NewDB(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return &Store{
			Repos: &repository.Repositories{
				Users:   postgres.NewUserRepository(db.Pool),
				Records: postgres.NewStorageRecordRepository(db.Pool),
			},
			Database: db,
			Driver:   cfg.Driver,
		}, nil

	case config.DriverSQLite, "":
		db, err := sqlite.NewDB(ctx, sqlite.ConfigFromDatabase(cfg), logger)
		if err != nil {
			return nil, err
		}
		return &Store{
			Repos: &repository.Repositories{
				Users:   sqlite.NewUserRepository(db),
				Records: sqlite.NewStorageRecordRepository(db),
			},
			Database: db,
			Driver:   config.DriverSQLite,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
