// Package port defines the core interfaces (ports) of the batch engine.
// Readers, writers, steps, jobs and listeners are all expressed here so that
// engine packages depend only on these contracts.
package port

import (
	"context"
	"errors"
	"fmt"
	"io"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
)

// ErrNoMoreItems signals that a reader or assembler is exhausted.
// It wraps io.EOF so that errors.Is(err, io.EOF) also holds.
var ErrNoMoreItems = fmt.Errorf("no more items to read: %w", io.EOF)

// IsEndOfSource reports whether err marks the end of a source.
func IsEndOfSource(err error) bool {
	return errors.Is(err, ErrNoMoreItems) || errors.Is(err, io.EOF)
}

// ItemReader reads records one at a time from a source.
type ItemReader[O any] interface {
	// Open acquires the underlying access handle.
	Open(ctx context.Context) error
	// Read returns the next record, or ErrNoMoreItems when the source is exhausted.
	Read(ctx context.Context) (O, error)
	// Close releases the handle. Calling Close more than once is safe.
	Close(ctx context.Context) error
}

// ItemWriter writes a chunk of records within a transaction.
type ItemWriter[I any] interface {
	// Open prepares the sink.
	Open(ctx context.Context) error
	// Write stages every item of the chunk into t.
	// Nothing becomes visible until t is committed.
	Write(ctx context.Context, t tx.Tx, items []I) error
	// Close releases the sink. Calling Close more than once is safe.
	Close(ctx context.Context) error
}

// ItemProcessor transforms one record into another.
type ItemProcessor[I, O any] func(ctx context.Context, item I) (O, error)

// Tasklet is a single unit of work run by a tasklet step.
type Tasklet interface {
	Execute(ctx context.Context, stepExecution *model.StepExecution) error
}

// TaskletFunc adapts a function to Tasklet.
type TaskletFunc func(ctx context.Context, stepExecution *model.StepExecution) error

// Execute calls f.
func (f TaskletFunc) Execute(ctx context.Context, stepExecution *model.StepExecution) error {
	return f(ctx, stepExecution)
}

// Step is one unit of a job.
type Step interface {
	// Name returns the step name.
	Name() string
	// Execute runs the step to a terminal state and returns its result.
	// The step transitions stepExecution itself; the caller persists it.
	Execute(ctx context.Context, stepExecution *model.StepExecution) model.StepResult
}

// Job sequences steps.
type Job interface {
	// Name returns the job name.
	Name() string
	// Run executes the job, updating jobExecution to a terminal state.
	Run(ctx context.Context, jobExecution *model.JobExecution) error
}

// JobParametersIncrementer derives the parameters of the next run.
type JobParametersIncrementer interface {
	GetNext(params model.JobParameters) model.JobParameters
}

// JobExecutionListener observes job start and end.
type JobExecutionListener interface {
	BeforeJob(ctx context.Context, jobExecution *model.JobExecution)
	AfterJob(ctx context.Context, jobExecution *model.JobExecution)
}

// StepExecutionListener observes step start and end.
// AfterStep is called exactly once, after the terminal status is fixed,
// and cannot change that status.
type StepExecutionListener interface {
	BeforeStep(ctx context.Context, stepExecution *model.StepExecution)
	AfterStep(ctx context.Context, stepExecution *model.StepExecution)
}

// ChunkListener observes chunk transactions.
type ChunkListener interface {
	BeforeChunk(ctx context.Context, stepExecution *model.StepExecution, sequence int)
	AfterChunk(ctx context.Context, stepExecution *model.StepExecution, sequence int, size int)
	AfterChunkError(ctx context.Context, stepExecution *model.StepExecution, sequence int, err error)
}

// ItemReadListener is notified of read failures before the step reacts to them.
type ItemReadListener interface {
	OnReadError(ctx context.Context, err error)
}

// ItemWriteListener is notified of chunk write failures.
type ItemWriteListener interface {
	OnWriteError(ctx context.Context, sequence int, err error)
}

type contextKey string

const stepExecutionKey contextKey = "stepExecution"

// GetContextWithStepExecution returns a copy of ctx carrying se.
func GetContextWithStepExecution(ctx context.Context, se *model.StepExecution) context.Context {
	return context.WithValue(ctx, stepExecutionKey, se)
}

// GetStepExecutionFromContext returns the StepExecution stored in ctx, or nil.
func GetStepExecutionFromContext(ctx context.Context) *model.StepExecution {
	se, _ := ctx.Value(stepExecutionKey).(*model.StepExecution)
	return se
}
