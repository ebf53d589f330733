// Package runner sequences the steps of a job and records their progress in the job repository.
package runner

import (
	"context"
	"time"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// SimpleJob runs its steps one after another and stops at the first step that does not complete.
type SimpleJob struct {
	name           string
	steps          []port.Step
	jobRepository  repository.JobRepository
	jobListeners   []port.JobExecutionListener
	metricRecorder metrics.MetricRecorder
	tracer         metrics.Tracer
}

// Verify that SimpleJob implements the port.Job interface.
var _ port.Job = (*SimpleJob)(nil)

// Option configures a SimpleJob.
type Option func(*SimpleJob)

// WithJobListener registers a job listener.
func WithJobListener(l port.JobExecutionListener) Option {
	return func(j *SimpleJob) { j.jobListeners = append(j.jobListeners, l) }
}

// WithMetricRecorder sets the metric recorder.
func WithMetricRecorder(r metrics.MetricRecorder) Option {
	return func(j *SimpleJob) {
		if r != nil {
			j.metricRecorder = r
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t metrics.Tracer) Option {
	return func(j *SimpleJob) {
		if t != nil {
			j.tracer = t
		}
	}
}

// NewSimpleJob creates a new instance of SimpleJob.
func NewSimpleJob(name string, jobRepository repository.JobRepository, steps []port.Step, opts ...Option) (*SimpleJob, error) {
	if name == "" {
		return nil, exception.NewConfigurationError("SimpleJob", "job name must not be empty", nil)
	}
	if jobRepository == nil {
		return nil, exception.NewConfigurationError(name, "job requires a job repository", nil)
	}
	if len(steps) == 0 {
		return nil, exception.NewConfigurationError(name, "job requires at least one step", nil)
	}
	seen := make(map[string]struct{}, len(steps))
	for _, s := range steps {
		if s == nil {
			return nil, exception.NewConfigurationError(name, "job step must not be nil", nil)
		}
		if _, dup := seen[s.Name()]; dup {
			return nil, exception.NewConfigurationError(name, "duplicate step name '"+s.Name()+"'", nil)
		}
		seen[s.Name()] = struct{}{}
	}
	j := &SimpleJob{
		name:           name,
		steps:          steps,
		jobRepository:  jobRepository,
		metricRecorder: metrics.NewNoOpMetricRecorder(),
		tracer:         metrics.NewNoOpTracer(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Name returns the job name.
func (j *SimpleJob) Name() string {
	return j.name
}

// Steps returns the step names in execution order.
func (j *SimpleJob) Steps() []string {
	names := make([]string, len(j.steps))
	for i, s := range j.steps {
		names[i] = s.Name()
	}
	return names
}

// Run executes the steps in order and moves jobExecution to COMPLETED or FAILED.
// The returned error is the error of the failed step, or a repository error.
func (j *SimpleJob) Run(ctx context.Context, jobExecution *model.JobExecution) error {
	ctx, endSpan := j.tracer.StartJobSpan(ctx, jobExecution)
	defer endSpan()
	// Metadata writes outlive cancellation so the terminal state is always recorded.
	repoCtx := context.WithoutCancel(ctx)

	logger.Infof("Job '%s' (Execution ID: %s) starting.", j.name, jobExecution.ID)
	start := time.Now()

	if err := jobExecution.MarkAsStarted(); err != nil {
		return exception.NewBatchError(j.name, "failed to start job execution", err, false, false)
	}
	j.metricRecorder.RecordJobStart(ctx, jobExecution)
	for _, l := range j.jobListeners {
		l.BeforeJob(ctx, jobExecution)
	}
	if err := j.jobRepository.UpdateJobExecution(repoCtx, jobExecution); err != nil {
		return j.fail(ctx, jobExecution, "", exception.NewBatchError(j.name, "failed to update JobExecution status to RUNNING", err, false, false), start)
	}

	for _, step := range j.steps {
		if err := ctx.Err(); err != nil {
			return j.fail(ctx, jobExecution, step.Name(), exception.NewBatchError(j.name, "job cancelled before step '"+step.Name()+"'", err, false, false), start)
		}

		stepExecution := model.NewStepExecution(jobExecution, step.Name())
		jobExecution.AddStepExecution(stepExecution)
		if err := j.jobRepository.SaveStepExecution(repoCtx, stepExecution); err != nil {
			return j.fail(ctx, jobExecution, step.Name(), exception.NewBatchError(j.name, "failed to save StepExecution", err, false, false), start)
		}

		result := step.Execute(ctx, stepExecution)

		if err := j.jobRepository.UpdateStepExecution(repoCtx, stepExecution); err != nil {
			logger.Errorf("Job '%s': failed to update StepExecution '%s' (ID: %s): %v", j.name, step.Name(), stepExecution.ID, err)
			if result.Completed() {
				return j.fail(ctx, jobExecution, step.Name(), exception.NewBatchError(j.name, "failed to update StepExecution", err, false, false), start)
			}
		}

		if !result.Completed() {
			cause := result.Err
			if cause == nil {
				cause = exception.NewBatchErrorf(j.name, "step '%s' ended with status %s", step.Name(), result.Status)
			}
			return j.fail(ctx, jobExecution, step.Name(), cause, start)
		}
	}

	if err := jobExecution.MarkAsCompleted(); err != nil {
		logger.Errorf("Job '%s': %v", j.name, err)
	}
	j.finish(ctx, jobExecution, start)
	return nil
}

func (j *SimpleJob) fail(ctx context.Context, jobExecution *model.JobExecution, stepName string, cause error, start time.Time) error {
	j.tracer.RecordError(ctx, j.name, cause)
	if err := jobExecution.MarkAsFailed(stepName, cause); err != nil {
		logger.Errorf("Job '%s': %v", j.name, err)
	}
	logger.Errorf("Job '%s' failed at step '%s': %v", j.name, stepName, cause)
	j.finish(ctx, jobExecution, start)
	return cause
}

func (j *SimpleJob) finish(ctx context.Context, jobExecution *model.JobExecution, start time.Time) {
	if err := j.jobRepository.UpdateJobExecution(context.WithoutCancel(ctx), jobExecution); err != nil {
		logger.Errorf("Job '%s': failed to update final JobExecution (ID: %s) state: %v", j.name, jobExecution.ID, err)
	}
	j.metricRecorder.RecordJobEnd(ctx, jobExecution)
	j.metricRecorder.RecordDuration(ctx, "job", time.Since(start), map[string]string{"job_name": j.name, "status": string(jobExecution.Status)})
	for _, l := range j.jobListeners {
		l.AfterJob(ctx, jobExecution)
	}
	logger.Infof("Job '%s' (Execution ID: %s) finished. ExitStatus: %s", j.name, jobExecution.ID, jobExecution.ExitStatus)
}
