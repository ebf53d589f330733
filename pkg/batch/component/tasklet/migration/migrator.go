package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

type command string

const (
	commandUp   command = "up"
	commandDown command = "down"
)

// golangMigrator implements Migrator for one connection.
type golangMigrator struct {
	dbConn database.DBConnection
	dbType string
}

// NewMigrator creates a new Migrator over dbConn.
func NewMigrator(dbConn database.DBConnection) Migrator {
	return &golangMigrator{
		dbConn: dbConn,
		dbType: dbConn.Type(),
	}
}

// databaseDriver returns the golang-migrate driver for the connection type.
func (m *golangMigrator) databaseDriver(sqlDB *sql.DB, tableName string) (migratedb.Driver, error) {
	switch m.dbType {
	case "postgres":
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: tableName})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: tableName})
	case "sqlite":
		return sqlite.WithInstance(sqlDB, &sqlite.Config{MigrationsTable: tableName})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", m.dbType)
	}
}

func (m *golangMigrator) run(ctx context.Context, migrationFS fs.FS, path string, cmd command, tableName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger.Infof("Executing migration '%s' (DB: %s, Path: %s, Table: %s)", cmd, m.dbConn.Name(), path, tableName)

	sqlDB, err := m.dbConn.GetSQLDB()
	if err != nil {
		return err
	}
	sourceDriver, err := iofs.New(migrationFS, path)
	if err != nil {
		return fmt.Errorf("failed to create iofs source driver for path %s: %w", path, err)
	}
	// The migrate instance is not closed: closing it would close the shared pool.
	defer sourceDriver.Close()

	dbDriver, err := m.databaseDriver(sqlDB, tableName)
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}
	mInstance, err := migrate.NewWithInstance("iofs", sourceDriver, m.dbType, dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	switch cmd {
	case commandUp:
		err = mInstance.Up()
	case commandDown:
		err = mInstance.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		if version, dirty, verr := mInstance.Version(); verr == nil {
			logger.Errorf("Migration '%s' stopped at version %d (dirty=%t).", cmd, version, dirty)
		}
		return fmt.Errorf("migration '%s' failed (DB: %s, Path: %s): %w", cmd, m.dbType, path, err)
	}

	logger.Infof("Migration '%s' completed successfully.", cmd)
	return nil
}

func (m *golangMigrator) Up(ctx context.Context, migrationFS fs.FS, path string, tableName string) error {
	return m.run(ctx, migrationFS, path, commandUp, tableName)
}

func (m *golangMigrator) Down(ctx context.Context, migrationFS fs.FS, path string, tableName string) error {
	return m.run(ctx, migrationFS, path, commandDown, tableName)
}
