// Package repository wires the job repository selected by app.infrastructure.job_repository.
package repository

import (
	"context"

	"go.uber.org/fx"

	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	domainrepo "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/repository/inmemory"
	sqlrepo "github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// JobRepositoryParams defines the dependencies of NewJobRepository.
type JobRepositoryParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Config    *config.Config
	Provider  *gormadapter.GormProvider `optional:"true"`
}

// NewJobRepository returns the in-memory repository or a migrated GormJobRepository.
func NewJobRepository(p JobRepositoryParams) (domainrepo.JobRepository, error) {
	repoCfg := p.Config.App.Infrastructure.JobRepository
	if repoCfg.Type != config.JobRepositorySQL {
		logger.Infof("Using the in-memory job repository. Run history is lost on exit.")
		return inmemory.NewInMemoryJobRepository(), nil
	}
	if p.Provider == nil {
		return nil, exception.NewConfigurationError("job_repository", "the sql job repository requires the gorm database module", nil)
	}
	conn, err := p.Provider.GetGormConnection(repoCfg.DBRef)
	if err != nil {
		return nil, err
	}
	repo := sqlrepo.NewGormJobRepository(conn)
	if err := repo.Migrate(context.Background()); err != nil {
		return nil, err
	}
	logger.Infof("Using the SQL job repository on '%s' (%s).", repoCfg.DBRef, conn.Type())
	p.Lifecycle.Append(fx.Hook{OnStop: func(context.Context) error { return repo.Close() }})
	return repo, nil
}

// Module provides domainrepo.JobRepository.
var Module = fx.Provide(NewJobRepository)
