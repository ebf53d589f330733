package migration

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

const taskletName = "migration_tasklet"

// MigrationTasklet runs a migration command against a named connection.
type MigrationTasklet struct {
	provider    database.DBProvider
	dbRef       string
	migrationFS fs.FS
	// migrationDir defaults to the connection type ("sqlite", "mysql", "postgres").
	migrationDir string
	command      command
	table        string
	newMigrator  func(database.DBConnection) Migrator
}

var _ port.Tasklet = (*MigrationTasklet)(nil)

// TaskletOption configures a MigrationTasklet.
type TaskletOption func(*MigrationTasklet)

// WithMigrationDir sets the directory inside the migration FS.
func WithMigrationDir(dir string) TaskletOption {
	return func(t *MigrationTasklet) { t.migrationDir = dir }
}

// WithDown makes the tasklet roll back instead of apply.
func WithDown() TaskletOption {
	return func(t *MigrationTasklet) { t.command = commandDown }
}

// WithMigrationsTable overrides the history table (AppMigrationsTable by default).
func WithMigrationsTable(table string) TaskletOption {
	return func(t *MigrationTasklet) { t.table = table }
}

// NewMigrationTasklet creates a tasklet migrating dbRef with the scripts in migrationFS.
func NewMigrationTasklet(provider database.DBProvider, dbRef string, migrationFS fs.FS, opts ...TaskletOption) (*MigrationTasklet, error) {
	if provider == nil {
		return nil, exception.NewConfigurationError(taskletName, "MigrationTasklet requires a DBProvider", nil)
	}
	if dbRef == "" {
		return nil, exception.NewConfigurationError(taskletName, "MigrationTasklet requires a database reference", nil)
	}
	if migrationFS == nil {
		return nil, exception.NewConfigurationError(taskletName, "MigrationTasklet requires a migration FS", nil)
	}
	t := &MigrationTasklet{
		provider:    provider,
		dbRef:       dbRef,
		migrationFS: migrationFS,
		command:     commandUp,
		table:       AppMigrationsTable,
		newMigrator: NewMigrator,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Execute implements port.Tasklet.
func (t *MigrationTasklet) Execute(ctx context.Context, stepExecution *model.StepExecution) error {
	dbConn, err := t.provider.GetConnection(t.dbRef)
	if err != nil {
		return err
	}
	dir := t.migrationDir
	if dir == "" {
		dir = dbConn.Type()
		logger.Debugf("Using DB type '%s' as migration directory.", dir)
	}

	migrator := t.newMigrator(dbConn)
	switch t.command {
	case commandDown:
		err = migrator.Down(ctx, t.migrationFS, dir, t.table)
	default:
		err = migrator.Up(ctx, t.migrationFS, dir, t.table)
	}
	if err != nil {
		return exception.NewBatchError(taskletName, fmt.Sprintf("migration '%s' of '%s' failed", t.command, t.dbRef), err, false, false)
	}
	logger.Infof("Step '%s': migration '%s' of '%s' applied.", stepExecution.StepName, t.command, t.dbRef)
	return nil
}
