package repository

import (
	"context"
)

// Repositories holds the ledger repositories of one database.
type Repositories struct {
	Users   UserRepository
	Records StorageRecordRepository
}

// DatabaseHealth is implemented by both database backends.
// It satisfies handler.DatabaseChecker for the health endpoint.
type DatabaseHealth interface {
	Ping(ctx context.Context) error
	Health(ctx context.Context) error
	Close() error
}

// Database is an opened ledger database with schema management.
type Database interface {
	DatabaseHealth

	// Migrate applies pending schema migrations.
	Migrate(ctx context.Context) error

	// Version returns the highest applied migration version.
	Version(ctx context.Context) (int, error)
}
