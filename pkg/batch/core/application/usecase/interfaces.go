package usecase

import (
	"context"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// JobLauncher starts a Job with JobParameters.
type JobLauncher interface {
	// Launch runs job to completion and returns its JobExecution.
	// The error returned here indicates an error in the launch process itself, not an error in the job's execution;
	// a failed job is reported through the returned JobExecution's status.
	Launch(ctx context.Context, job port.Job, params model.JobParameters) (*model.JobExecution, error)
	// Stop cancels the context of a running JobExecution.
	Stop(executionID string) bool
}

// JobExplorer is an interface for querying batch metadata (JobInstance, JobExecution, StepExecution).
type JobExplorer interface {
	// GetJobExecution retrieves a JobExecution by its ID.
	GetJobExecution(ctx context.Context, executionID string) (*model.JobExecution, error)

	// GetLastJobExecution retrieves the latest JobExecution of the instance identified by job name and parameters.
	GetLastJobExecution(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error)

	// GetStepExecutions retrieves the StepExecutions of a JobExecution in start order.
	GetStepExecutions(ctx context.Context, executionID string) ([]*model.StepExecution, error)
}
