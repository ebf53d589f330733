// Package item implements the chunk-oriented step: records are read one at a time,
// grouped into chunks, and each chunk is written and committed as one transaction.
package item

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	multierror "github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// ChunkStep reads records of type I, transforms them to O and writes them in chunks.
//
// Chunks are dispatched to a bounded worker pool. Workers run the processor
// concurrently, but each chunk's write and commit happens under a gate that admits
// chunks strictly in sequence order. When chunk k fails, chunks 1..k-1 are committed
// and nothing from chunk k onwards reaches the sink.
type ChunkStep[I, O any] struct {
	name      string
	reader    port.ItemReader[I]
	processor port.ItemProcessor[I, O]
	writer    port.ItemWriter[O]
	txManager tx.TransactionManager
	settings

	activeWorkers atomic.Int32
	peakWorkers   atomic.Int32
}

// NewChunkStep creates a ChunkStep that writes records unchanged.
// When txManager is nil the writer must implement tx.TransactionManager itself.
func NewChunkStep[T any](
	name string,
	reader port.ItemReader[T],
	writer port.ItemWriter[T],
	txManager tx.TransactionManager,
	opts ...Option,
) (*ChunkStep[T, T], error) {
	identity := func(_ context.Context, item T) (T, error) { return item, nil }
	return NewProcessingChunkStep[T, T](name, reader, identity, writer, txManager, opts...)
}

// NewProcessingChunkStep creates a ChunkStep that runs processor on every record before writing it.
func NewProcessingChunkStep[I, O any](
	name string,
	reader port.ItemReader[I],
	processor port.ItemProcessor[I, O],
	writer port.ItemWriter[O],
	txManager tx.TransactionManager,
	opts ...Option,
) (*ChunkStep[I, O], error) {
	s := &ChunkStep[I, O]{
		name:      name,
		reader:    reader,
		processor: processor,
		writer:    writer,
		txManager: txManager,
		settings:  defaultSettings(),
	}
	for _, opt := range opts {
		opt(&s.settings)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ChunkStep[I, O]) validate() error {
	switch {
	case s.name == "":
		return exception.NewConfigurationError("ChunkStep", "step name must not be empty", nil)
	case s.reader == nil:
		return exception.NewConfigurationError(s.name, "chunk step requires a reader", nil)
	case s.writer == nil:
		return exception.NewConfigurationError(s.name, "chunk step requires a writer", nil)
	case s.processor == nil:
		return exception.NewConfigurationError(s.name, "chunk step requires a processor", nil)
	case s.chunkSize < 1:
		return exception.NewConfigurationError(s.name, fmt.Sprintf("chunk size must be at least 1, got %d", s.chunkSize), nil)
	case s.workers < 1:
		return exception.NewConfigurationError(s.name, fmt.Sprintf("worker count must be at least 1, got %d", s.workers), nil)
	case s.readErrorPolicy == ReadErrorAbsorb && s.readSkipLimit < 0:
		return exception.NewConfigurationError(s.name, fmt.Sprintf("read skip limit must not be negative, got %d", s.readSkipLimit), nil)
	}
	if s.txManager == nil {
		m, ok := any(s.writer).(tx.TransactionManager)
		if !ok {
			return exception.NewConfigurationError(s.name, "chunk step requires a transaction manager or a transactional writer", nil)
		}
		s.txManager = m
	}
	return nil
}

// Name returns the step name.
func (s *ChunkStep[I, O]) Name() string { return s.name }

// ChunkSize returns the configured chunk size.
func (s *ChunkStep[I, O]) ChunkSize() int { return s.chunkSize }

// Workers returns the configured pool size.
func (s *ChunkStep[I, O]) Workers() int { return s.workers }

// ActiveWorkers returns the number of workers currently handling a chunk.
// It is zero whenever Execute is not running.
func (s *ChunkStep[I, O]) ActiveWorkers() int { return int(s.activeWorkers.Load()) }

// PeakWorkers returns the highest number of workers seen busy at once since the step was created.
func (s *ChunkStep[I, O]) PeakWorkers() int { return int(s.peakWorkers.Load()) }

// Execute runs the step to a terminal state.
// Read counters are published on stepExecution when the step ends; write-side counters
// are updated as chunks commit.
func (s *ChunkStep[I, O]) Execute(ctx context.Context, stepExecution *model.StepExecution) model.StepResult {
	ctx = port.GetContextWithStepExecution(ctx, stepExecution)
	ctx, endSpan := s.tracer.StartStepSpan(ctx, stepExecution)
	defer endSpan()

	logger.Infof("ChunkStep '%s' executing. chunkSize=%d workers=%d", s.name, s.chunkSize, s.workers)
	start := time.Now()
	s.metricRecorder.RecordStepStart(ctx, stepExecution)
	for _, l := range s.stepListeners {
		l.BeforeStep(ctx, stepExecution)
	}

	runErr := s.run(ctx, stepExecution)
	if runErr != nil {
		s.tracer.RecordError(ctx, s.name, runErr)
		if err := stepExecution.MarkAsFailed(runErr); err != nil {
			logger.Errorf("ChunkStep '%s': %v", s.name, err)
		}
		logger.Errorf("ChunkStep '%s' failed: %v", s.name, runErr)
	} else if err := stepExecution.MarkAsCompleted(); err != nil {
		logger.Errorf("ChunkStep '%s': %v", s.name, err)
	}

	result := stepExecution.Result()
	s.metricRecorder.RecordStepEnd(ctx, stepExecution)
	s.metricRecorder.RecordDuration(ctx, "step", time.Since(start), map[string]string{"step_name": s.name, "status": string(result.Status)})
	for _, l := range s.stepListeners {
		l.AfterStep(ctx, stepExecution)
	}
	if stepExecution.Status != result.Status {
		logger.Warnf("ChunkStep '%s': listener changed status to %s, restoring %s", s.name, stepExecution.Status, result.Status)
		stepExecution.Status = result.Status
		stepExecution.ExitStatus = result.Status.ToExitStatus()
	}

	logger.Infof("ChunkStep '%s' finished. ExitStatus: %s read=%d write=%d commit=%d rollback=%d skip=%d",
		s.name, stepExecution.ExitStatus, result.ReadCount, result.WriteCount, result.CommitCount, result.RollbackCount, result.ReadSkipCount)
	return result
}

// run opens the resources, drives the dispatch loop and closes the resources again.
// The returned error is the first failure of the step.
func (s *ChunkStep[I, O]) run(ctx context.Context, se *model.StepExecution) (err error) {
	if err := s.reader.Open(ctx); err != nil {
		return asConfigurationError(s.name, "failed to open reader", err)
	}
	if err := s.writer.Open(ctx); err != nil {
		openErr := asConfigurationError(s.name, "failed to open writer", err)
		if cerr := s.reader.Close(ctx); cerr != nil {
			return multierror.Append(openErr, cerr)
		}
		return openErr
	}
	defer func() {
		var closeErr *multierror.Error
		if cerr := s.writer.Close(ctx); cerr != nil {
			closeErr = multierror.Append(closeErr, exception.NewWriteError(s.name, "failed to close writer", cerr))
		}
		if cerr := s.reader.Close(ctx); cerr != nil {
			closeErr = multierror.Append(closeErr, exception.NewReadError(s.name, "failed to close reader", cerr))
		}
		if closeErr.ErrorOrNil() == nil {
			return
		}
		if err == nil {
			err = closeErr.ErrorOrNil()
			return
		}
		logger.Warnf("ChunkStep '%s': close failed after step error: %v", s.name, closeErr)
	}()

	if err := se.MarkAsOpened(); err != nil {
		return err
	}

	reader := &observedReader[I]{
		ItemReader: s.reader,
		step:       s.name,
		policy:     s.readErrorPolicy,
		limit:      s.readSkipLimit,
		listeners:  s.readListeners,
		onSkip:     func(ctx context.Context) { s.metricRecorder.RecordReadSkip(ctx, se) },
	}
	assembler, err := NewAssembler[I](reader, s.chunkSize)
	if err != nil {
		return err
	}
	defer func() {
		se.ReadCount += reader.read
		se.ReadSkipCount += reader.skipped
	}()

	return s.dispatch(ctx, se, assembler)
}

// dispatch reads chunks on the calling goroutine and hands them to the worker pool.
// It stops reading on the first failure or on cancellation, then waits for every
// dispatched chunk to finish.
func (s *ChunkStep[I, O]) dispatch(ctx context.Context, se *model.StepExecution, assembler *Assembler[I]) error {
	var (
		g       errgroup.Group
		gate    = newCommitGate()
		first   firstError
		aborted atomic.Bool
	)
	g.SetLimit(s.workers)

	// Dispatched chunks finish their write even if ctx is cancelled meanwhile.
	workCtx := context.WithoutCancel(ctx)

	for !aborted.Load() {
		if err := ctx.Err(); err != nil {
			logger.Warnf("ChunkStep '%s' cancelled; waiting for in-flight chunks.", s.name)
			first.set(exception.NewBatchError(s.name, "step cancelled", err, false, false))
			break
		}
		chunk, err := assembler.Next(ctx)
		if port.IsEndOfSource(err) {
			break
		}
		if err != nil {
			first.set(err)
			break
		}
		if err := se.MarkAsRunning(); err != nil {
			first.set(err)
			break
		}
		s.metricRecorder.RecordItemRead(ctx, se, chunk.Len())
		logger.Debugf("ChunkStep '%s': dispatching chunk %d (%d items)", s.name, chunk.Sequence, chunk.Len())

		g.Go(func() error {
			n := s.activeWorkers.Add(1)
			defer s.activeWorkers.Add(-1)
			s.recordPeak(n)
			if err := s.handleChunk(workCtx, se, chunk, gate, &aborted); err != nil {
				first.set(err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return first.get()
}

// handleChunk processes one chunk and, once all earlier chunks are done, writes and commits it.
func (s *ChunkStep[I, O]) handleChunk(ctx context.Context, se *model.StepExecution, chunk Chunk[I], gate *commitGate, aborted *atomic.Bool) error {
	ctx, endSpan := s.tracer.StartChunkSpan(ctx, se, chunk.Sequence)
	defer endSpan()

	items, procErr := s.process(ctx, chunk.Items)

	gate.enter(chunk.Sequence)
	defer gate.leave()

	if aborted.Load() {
		logger.Debugf("ChunkStep '%s': discarding chunk %d after an earlier failure", s.name, chunk.Sequence)
		return nil
	}
	for _, l := range s.chunkListeners {
		l.BeforeChunk(ctx, se, chunk.Sequence)
	}
	if procErr != nil {
		aborted.Store(true)
		s.notifyChunkError(ctx, se, chunk.Sequence, procErr)
		return procErr
	}

	if err := s.writeChunk(ctx, chunk.Sequence, items); err != nil {
		aborted.Store(true)
		se.RollbackCount++
		s.metricRecorder.RecordChunkRollback(ctx, se)
		s.tracer.RecordError(ctx, s.name, err)
		for _, l := range s.writeListeners {
			l.OnWriteError(ctx, chunk.Sequence, err)
		}
		s.notifyChunkError(ctx, se, chunk.Sequence, err)
		return err
	}

	se.WriteCount += len(items)
	se.CommitCount++
	se.LastUpdated = time.Now()
	s.metricRecorder.RecordItemWrite(ctx, se, len(items))
	s.metricRecorder.RecordChunkCommit(ctx, se)
	for _, l := range s.chunkListeners {
		l.AfterChunk(ctx, se, chunk.Sequence, len(items))
	}
	return nil
}

func (s *ChunkStep[I, O]) process(ctx context.Context, in []I) ([]O, error) {
	out := make([]O, 0, len(in))
	for _, item := range in {
		o, err := s.processor(ctx, item)
		if err != nil {
			return nil, exception.NewBatchError(s.name, "failed to process item", err, false, false)
		}
		out = append(out, o)
	}
	return out, nil
}

// writeChunk stages items in a new transaction and commits it, rolling back on any failure.
func (s *ChunkStep[I, O]) writeChunk(ctx context.Context, sequence int, items []O) error {
	t, err := s.txManager.Begin(ctx)
	if err != nil {
		return exception.NewWriteError(s.name, fmt.Sprintf("failed to begin transaction for chunk %d", sequence), err)
	}
	if err := s.writer.Write(ctx, t, items); err != nil {
		s.rollback(ctx, t, sequence)
		return exception.NewWriteError(s.name, fmt.Sprintf("failed to write chunk %d", sequence), err)
	}
	if err := s.txManager.Commit(ctx, t); err != nil {
		s.rollback(ctx, t, sequence)
		return exception.NewWriteError(s.name, fmt.Sprintf("failed to commit chunk %d", sequence), err)
	}
	logger.Debugf("ChunkStep '%s': committed chunk %d (tx %s, %d items)", s.name, sequence, t.ID(), len(items))
	return nil
}

func (s *ChunkStep[I, O]) rollback(ctx context.Context, t tx.Tx, sequence int) {
	if err := s.txManager.Rollback(ctx, t); err != nil {
		logger.Errorf("ChunkStep '%s': rollback of chunk %d failed: %v", s.name, sequence, err)
	}
}

func (s *ChunkStep[I, O]) notifyChunkError(ctx context.Context, se *model.StepExecution, sequence int, err error) {
	for _, l := range s.chunkListeners {
		l.AfterChunkError(ctx, se, sequence, err)
	}
}

func (s *ChunkStep[I, O]) recordPeak(n int32) {
	for {
		peak := s.peakWorkers.Load()
		if n <= peak || s.peakWorkers.CompareAndSwap(peak, n) {
			return
		}
	}
}

func asConfigurationError(module, message string, err error) error {
	if exception.IsConfigurationError(err) {
		return err
	}
	return exception.NewConfigurationError(module, message, err)
}

// commitGate admits chunks one at a time in sequence order, starting at 1.
type commitGate struct {
	mu   sync.Mutex
	cond *sync.Cond
	next int
}

func newCommitGate() *commitGate {
	g := &commitGate{next: 1}
	g.cond = sync.NewCond(&g.mu)
	return g
}

func (g *commitGate) enter(sequence int) {
	g.mu.Lock()
	for g.next != sequence {
		g.cond.Wait()
	}
	g.mu.Unlock()
}

func (g *commitGate) leave() {
	g.mu.Lock()
	g.next++
	g.mu.Unlock()
	g.cond.Broadcast()
}

// firstError keeps the first error set on it.
type firstError struct {
	mu  sync.Mutex
	err error
}

func (f *firstError) set(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err == nil {
		f.err = err
	}
}

func (f *firstError) get() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// observedReader counts reads, notifies read listeners and applies the read error policy.
// It is only used from the dispatching goroutine.
type observedReader[T any] struct {
	port.ItemReader[T]
	step      string
	policy    ReadErrorPolicy
	limit     int
	listeners []port.ItemReadListener
	onSkip    func(ctx context.Context)

	read    int
	skipped int
}

func (r *observedReader[T]) Read(ctx context.Context) (T, error) {
	for {
		item, err := r.ItemReader.Read(ctx)
		if err == nil {
			r.read++
			return item, nil
		}
		if port.IsEndOfSource(err) {
			return item, err
		}
		if !exception.IsBatchError(err) {
			err = exception.NewReadError(r.step, "failed to read item", err)
		}
		for _, l := range r.listeners {
			l.OnReadError(ctx, err)
		}
		if r.policy != ReadErrorAbsorb || exception.IsConfigurationError(err) {
			return item, err
		}
		if r.skipped >= r.limit {
			return item, exception.NewBatchError(r.step, fmt.Sprintf("read skip limit %d exceeded", r.limit), err, false, false)
		}
		r.skipped++
		r.onSkip(ctx)
		logger.Warnf("ChunkStep '%s': skipped unreadable item (%d/%d): %v", r.step, r.skipped, r.limit, err)
	}
}
