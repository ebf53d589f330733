// Package listener holds general purpose listeners and aggregates the listener modules.
package listener

import (
	"context"
	"sync"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// JobCompletionSignaler closes Done when a job ends. It only observes; step pools are drained by their executors.
type JobCompletionSignaler struct {
	done chan struct{}
	once sync.Once
	last *model.JobExecution
}

// NewJobCompletionSignaler creates a new instance of JobCompletionSignaler.
func NewJobCompletionSignaler() *JobCompletionSignaler {
	return &JobCompletionSignaler{done: make(chan struct{})}
}

// Done is closed after the first AfterJob.
func (l *JobCompletionSignaler) Done() <-chan struct{} { return l.done }

// Execution returns the execution that closed Done, or nil while the job is running.
func (l *JobCompletionSignaler) Execution() *model.JobExecution {
	select {
	case <-l.done:
		return l.last
	default:
		return nil
	}
}

func (l *JobCompletionSignaler) BeforeJob(ctx context.Context, jobExecution *model.JobExecution) {}

func (l *JobCompletionSignaler) AfterJob(ctx context.Context, jobExecution *model.JobExecution) {
	l.once.Do(func() {
		logger.Infof("JobCompletionSignaler: Job '%s' (ID: %s) finished with %s.", jobExecution.JobName, jobExecution.ID, jobExecution.Status)
		l.last = jobExecution
		close(l.done)
	})
}

var _ port.JobExecutionListener = (*JobCompletionSignaler)(nil)
