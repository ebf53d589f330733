package sql_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbconfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	_ "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	sqlrepo "github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/repository/sql"
	batchtest "github.com/tigerroll/chunkbatch/pkg/batch/test"
)

func newRepository(t *testing.T) *sqlrepo.GormJobRepository {
	t.Helper()
	p := gormadapter.NewProviderFromConfigs(map[string]dbconfig.DatabaseConfig{
		"metadata": {Type: "sqlite", Database: filepath.Join(t.TempDir(), "metadata.db"), Pool: dbconfig.PoolConfig{MaxOpenConns: 1}},
	})
	t.Cleanup(func() { _ = p.CloseAll() })
	conn, err := p.GetGormConnection("metadata")
	require.NoError(t, err)

	repo := sqlrepo.NewGormJobRepository(conn)
	require.NoError(t, repo.Migrate(context.Background()))
	return repo
}

func TestGormJobRepository(t *testing.T) {
	batchtest.RunJobRepositoryContract(t, func(t *testing.T) repository.JobRepository {
		return newRepository(t)
	})
}

func TestGormJobRepository_MigrateTwice(t *testing.T) {
	repo := newRepository(t)
	assert.NoError(t, repo.Migrate(context.Background()))
}

func TestGormJobRepository_ExecutionOfUnknownInstance(t *testing.T) {
	repo := newRepository(t)
	ji := batchtest.NewTestJobInstance("exportJob", batchtest.NewTestJobParameters(map[string]interface{}{"run.id": int64(1)}))
	err := repo.SaveJobExecution(context.Background(), batchtest.NewTestJobExecution(ji))
	assert.ErrorIs(t, err, repository.ErrJobInstanceNotFound)
}
