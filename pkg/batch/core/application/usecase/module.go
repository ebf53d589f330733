package usecase

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	repository "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
)

// LauncherParams defines dependencies for SimpleJobLauncher.
type LauncherParams struct {
	fx.In
	JobRepository repository.JobRepository
	Incrementer   port.JobParametersIncrementer `optional:"true"`
}

// NewJobLauncher provides a SimpleJobLauncher from the fx graph.
func NewJobLauncher(p LauncherParams) *SimpleJobLauncher {
	return NewSimpleJobLauncher(p.JobRepository, p.Incrementer)
}

// Module is the Fx module for JobLauncher and JobExplorer.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewSimpleJobExplorer,
		fx.As(new(JobExplorer)),
	)),
	fx.Provide(fx.Annotate(
		NewJobLauncher,
		fx.As(new(JobLauncher)),
	)),
)
