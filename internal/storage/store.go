// Package storage defines the Store interface that owns the persistence
// connection. Two backends are provided: SQLite (default, zero-config) and
// PostgreSQL.
package storage

import (
	"context"

	"github.com/jkaninda/mlinzi/internal/restart"
)

// Store is the persistence handle for mlinzi.
// Both SQLite and PostgreSQL backends implement this interface.
type Store interface {
	// RestartDocuments returns the document store holding pending restart
	// records. It shares the Store's connection.
	RestartDocuments() restart.DocumentStore

	// Ping checks the connection for readiness probes.
	Ping(ctx context.Context) error

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error

	// Driver returns the storage driver name ("sqlite" or "postgres").
	Driver() string
}

// DriverSQLite is the SQLite driver name.
const DriverSQLite = "sqlite"

// DriverPostgres is the PostgreSQL driver name.
const DriverPostgres = "postgres"
