// Package tasklet implements a step that runs a single Tasklet instead of a chunk loop.
package tasklet

import (
	"context"
	"time"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// TaskletStep runs one Tasklet as a step.
type TaskletStep struct {
	name                   string
	tasklet                port.Tasklet
	stepExecutionListeners []port.StepExecutionListener
	metricRecorder         metrics.MetricRecorder
	tracer                 metrics.Tracer
}

// Option configures a TaskletStep.
type Option func(*TaskletStep)

// WithStepListener registers a step listener.
func WithStepListener(l port.StepExecutionListener) Option {
	return func(s *TaskletStep) { s.stepExecutionListeners = append(s.stepExecutionListeners, l) }
}

// WithMetricRecorder sets the metric recorder.
func WithMetricRecorder(r metrics.MetricRecorder) Option {
	return func(s *TaskletStep) {
		if r != nil {
			s.metricRecorder = r
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t metrics.Tracer) Option {
	return func(s *TaskletStep) {
		if t != nil {
			s.tracer = t
		}
	}
}

// NewTaskletStep creates a new TaskletStep instance.
func NewTaskletStep(name string, tasklet port.Tasklet, opts ...Option) (*TaskletStep, error) {
	if name == "" {
		return nil, exception.NewConfigurationError("TaskletStep", "step name must not be empty", nil)
	}
	if tasklet == nil {
		return nil, exception.NewConfigurationError(name, "tasklet step requires a tasklet", nil)
	}
	s := &TaskletStep{
		name:           name,
		tasklet:        tasklet,
		metricRecorder: metrics.NewNoOpMetricRecorder(),
		tracer:         metrics.NewNoOpTracer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name returns the step name.
func (s *TaskletStep) Name() string {
	return s.name
}

// Execute runs the Tasklet and fixes the terminal status of stepExecution.
func (s *TaskletStep) Execute(ctx context.Context, stepExecution *model.StepExecution) model.StepResult {
	logger.Infof("TaskletStep '%s' executing.", s.name)
	ctx = port.GetContextWithStepExecution(ctx, stepExecution)
	ctx, endSpan := s.tracer.StartStepSpan(ctx, stepExecution)
	defer endSpan()

	start := time.Now()
	s.metricRecorder.RecordStepStart(ctx, stepExecution)
	for _, l := range s.stepExecutionListeners {
		l.BeforeStep(ctx, stepExecution)
	}

	err := s.run(ctx, stepExecution)
	if err != nil {
		s.tracer.RecordError(ctx, s.name, err)
		if terr := stepExecution.MarkAsFailed(err); terr != nil {
			logger.Errorf("TaskletStep '%s': %v", s.name, terr)
		}
		logger.Errorf("TaskletStep '%s' failed: %v", s.name, err)
	} else if terr := stepExecution.MarkAsCompleted(); terr != nil {
		logger.Errorf("TaskletStep '%s': %v", s.name, terr)
	}

	result := stepExecution.Result()
	s.metricRecorder.RecordStepEnd(ctx, stepExecution)
	s.metricRecorder.RecordDuration(ctx, "step", time.Since(start), map[string]string{"step_name": s.name, "status": string(result.Status)})
	for _, l := range s.stepExecutionListeners {
		l.AfterStep(ctx, stepExecution)
	}
	if stepExecution.Status != result.Status {
		stepExecution.Status = result.Status
		stepExecution.ExitStatus = result.Status.ToExitStatus()
	}

	logger.Infof("TaskletStep '%s' finished. ExitStatus: %s", s.name, stepExecution.ExitStatus)
	return result
}

func (s *TaskletStep) run(ctx context.Context, stepExecution *model.StepExecution) error {
	if err := ctx.Err(); err != nil {
		return exception.NewBatchError(s.name, "step cancelled", err, false, false)
	}
	if err := stepExecution.MarkAsRunning(); err != nil {
		return err
	}
	if err := s.tasklet.Execute(ctx, stepExecution); err != nil {
		if exception.IsBatchError(err) {
			return err
		}
		return exception.NewBatchError(s.name, "tasklet execution failed", err, false, false)
	}
	return nil
}
