// Package repository declares the metadata repository the job launcher and job runner
// record run identity and progress against.
package repository

import (
	"context"
	"errors"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// JobInstanceRepository persists JobInstances.
type JobInstanceRepository interface {
	// SaveJobInstance persists a new JobInstance.
	SaveJobInstance(ctx context.Context, instance *model.JobInstance) error
	// FindJobInstanceByJobNameAndParameters finds a JobInstance by job name and exact parameters.
	// It returns ErrJobInstanceNotFound when none exists.
	FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error)
}

// JobExecutionRepository persists JobExecutions.
type JobExecutionRepository interface {
	SaveJobExecution(ctx context.Context, execution *model.JobExecution) error
	UpdateJobExecution(ctx context.Context, execution *model.JobExecution) error
	FindJobExecutionByID(ctx context.Context, id string) (*model.JobExecution, error)
	// FindLatestJobExecution returns the most recently created execution of an instance.
	FindLatestJobExecution(ctx context.Context, jobInstanceID string) (*model.JobExecution, error)
}

// StepExecutionRepository persists StepExecutions.
type StepExecutionRepository interface {
	SaveStepExecution(ctx context.Context, execution *model.StepExecution) error
	UpdateStepExecution(ctx context.Context, execution *model.StepExecution) error
	FindStepExecutionsByJobExecutionID(ctx context.Context, jobExecutionID string) ([]*model.StepExecution, error)
}

// JobRepository is the full metadata repository.
type JobRepository interface {
	JobInstanceRepository
	JobExecutionRepository
	StepExecutionRepository

	// Close releases resources (such as database connections) used by the repository.
	Close() error
}

var (
	// ErrJobInstanceNotFound is returned when no JobInstance matches.
	ErrJobInstanceNotFound = errors.New("job instance not found")
	// ErrJobExecutionNotFound is returned when no JobExecution matches.
	ErrJobExecutionNotFound = errors.New("job execution not found")
	// ErrStepExecutionNotFound is returned when no StepExecution matches.
	ErrStepExecutionNotFound = errors.New("step execution not found")
	// ErrOptimisticLock is returned when an update targets a stale version.
	ErrOptimisticLock = errors.New("optimistic locking failure")
)

func init() {
	exception.RegisterErrorType("ErrJobInstanceNotFound", ErrJobInstanceNotFound)
	exception.RegisterErrorType("ErrJobExecutionNotFound", ErrJobExecutionNotFound)
	exception.RegisterErrorType("ErrStepExecutionNotFound", ErrStepExecutionNotFound)
	exception.RegisterErrorType("ErrOptimisticLock", ErrOptimisticLock)
}
