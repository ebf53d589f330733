package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

var (
	// ErrJobInstanceAlreadyComplete is returned when the instance for the given name and parameters already completed.
	ErrJobInstanceAlreadyComplete = errors.New("job instance already complete")
	// ErrJobExecutionAlreadyRunning is returned when the instance still has an unfinished execution.
	ErrJobExecutionAlreadyRunning = errors.New("job execution already running")
)

func init() {
	exception.RegisterErrorType("ErrJobInstanceAlreadyComplete", ErrJobInstanceAlreadyComplete)
	exception.RegisterErrorType("ErrJobExecutionAlreadyRunning", ErrJobExecutionAlreadyRunning)
}

// SimpleJobLauncher implements JobLauncher for local, synchronous execution.
type SimpleJobLauncher struct {
	jobRepository repository.JobRepository
	incrementer   port.JobParametersIncrementer
	// activeJobCancellations holds the cancel functions for running jobs.
	activeJobCancellations map[string]context.CancelFunc
	mu                     sync.Mutex
}

var _ JobLauncher = (*SimpleJobLauncher)(nil)

// NewSimpleJobLauncher creates a new SimpleJobLauncher. incrementer may be nil.
func NewSimpleJobLauncher(repo repository.JobRepository, incrementer port.JobParametersIncrementer) *SimpleJobLauncher {
	return &SimpleJobLauncher{
		jobRepository:          repo,
		incrementer:            incrementer,
		activeJobCancellations: make(map[string]context.CancelFunc),
	}
}

func (l *SimpleJobLauncher) registerCancelFunc(executionID string, cancelFunc context.CancelFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.activeJobCancellations[executionID] = cancelFunc
	logger.Debugf("Registered CancelFunc for JobExecution (ID: %s).", executionID)
}

func (l *SimpleJobLauncher) unregisterCancelFunc(executionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.activeJobCancellations, executionID)
	logger.Debugf("Unregistered CancelFunc for JobExecution (ID: %s).", executionID)
}

// Stop cancels a running JobExecution. It reports whether the execution was found.
func (l *SimpleJobLauncher) Stop(executionID string) bool {
	l.mu.Lock()
	cancel, ok := l.activeJobCancellations[executionID]
	l.mu.Unlock()
	if ok {
		logger.Infof("Stopping JobExecution (ID: %s).", executionID)
		cancel()
	}
	return ok
}

// Launch resolves the run identity of job, records a new JobExecution and runs it.
func (l *SimpleJobLauncher) Launch(ctx context.Context, job port.Job, jobParameters model.JobParameters) (*model.JobExecution, error) {
	const op = "job_launcher"
	if job == nil {
		return nil, exception.NewConfigurationError(op, "job must not be nil", nil)
	}
	jobName := job.Name()

	if l.incrementer != nil {
		jobParameters = l.incrementer.GetNext(jobParameters)
		logger.Infof("Generated new JobParameters using JobParametersIncrementer: %s", jobParameters.String())
	}
	logger.Infof("Launching Job '%s'. Parameters: %s", jobName, jobParameters.String())

	jobInstance, err := l.resolveInstance(ctx, jobName, jobParameters)
	if err != nil {
		return nil, err
	}

	jobExecution := model.NewJobExecution(jobInstance.ID, jobName, jobInstance.Parameters)
	if err := l.jobRepository.SaveJobExecution(ctx, jobExecution); err != nil {
		return nil, exception.NewBatchError(op, "failed to save JobExecution", err, false, false)
	}
	logger.Debugf("Saved JobExecution (ID: %s) for JobInstance (ID: %s).", jobExecution.ID, jobInstance.ID)

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	l.registerCancelFunc(jobExecution.ID, cancel)
	defer l.unregisterCancelFunc(jobExecution.ID)

	if err := job.Run(jobCtx, jobExecution); err != nil {
		logger.Warnf("Job '%s' (Execution ID: %s) ended with an error: %v", jobName, jobExecution.ID, err)
	}
	return jobExecution, nil
}

// resolveInstance finds or creates the JobInstance for jobName and params.
// A previous FAILED execution does not block a new one; the new execution reuses the instance.
func (l *SimpleJobLauncher) resolveInstance(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error) {
	const op = "job_launcher"

	existing, err := l.jobRepository.FindJobInstanceByJobNameAndParameters(ctx, jobName, params)
	if err != nil && !errors.Is(err, repository.ErrJobInstanceNotFound) {
		return nil, exception.NewBatchError(op, "failed to search for existing JobInstance", err, false, false)
	}

	if existing == nil {
		jobInstance, err := model.NewJobInstance(jobName, params)
		if err != nil {
			return nil, err
		}
		if err := l.jobRepository.SaveJobInstance(ctx, jobInstance); err != nil {
			return nil, exception.NewBatchError(op, fmt.Sprintf("failed to save new JobInstance for '%s'", jobName), err, false, false)
		}
		logger.Infof("Created and saved new JobInstance (ID: %s, JobName: %s).", jobInstance.ID, jobName)
		return jobInstance, nil
	}

	latest, err := l.jobRepository.FindLatestJobExecution(ctx, existing.ID)
	if errors.Is(err, repository.ErrJobExecutionNotFound) {
		return existing, nil
	}
	if err != nil {
		return nil, exception.NewBatchError(op, "failed to search for the latest JobExecution", err, false, false)
	}

	switch {
	case latest.Status == model.BatchStatusCompleted:
		return nil, exception.NewBatchError(op,
			fmt.Sprintf("JobInstance (ID: %s) of job '%s' already completed with parameters %s", existing.ID, jobName, params), ErrJobInstanceAlreadyComplete, false, false)
	case !latest.Status.IsFinished():
		return nil, exception.NewBatchError(op,
			fmt.Sprintf("a running JobExecution (ID: %s, Status: %s) already exists for JobInstance (ID: %s)", latest.ID, latest.Status, existing.ID), ErrJobExecutionAlreadyRunning, false, false)
	default:
		logger.Infof("Previous JobExecution (ID: %s) of JobInstance (ID: %s) ended %s; creating a new JobExecution.", latest.ID, existing.ID, latest.Status)
		return existing, nil
	}
}
