// Package database defines named database connections used by readers, writers,
// migrations and the SQL job repository.
package database

import (
	"database/sql"

	dbconfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/config"
)

// DBConnection represents one open, pooled database handle.
type DBConnection interface {
	// Name returns the configuration key of the connection (e.g., "metadata").
	Name() string
	// Type returns the database type (e.g., "sqlite").
	Type() string
	// Config returns the database configuration associated with this connection.
	Config() dbconfig.DatabaseConfig
	// GetSQLDB returns the underlying *sql.DB connection.
	GetSQLDB() (*sql.DB, error)
	// Close closes the pool.
	Close() error
}

// DBProvider opens connections by name from the app.adaptor.database configuration.
type DBProvider interface {
	// GetConnection retrieves a database connection with the specified name.
	// The same instance is returned on every call until CloseAll.
	GetConnection(name string) (DBConnection, error)
	// CloseAll closes all connections managed by this provider.
	CloseAll() error
}
