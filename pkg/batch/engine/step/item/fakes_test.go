package item

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
)

var errBoom = errors.New("boom")

// sliceReader returns items in order; failAt maps a read index (0-based) to an error.
type sliceReader[T any] struct {
	items   []T
	failAt  map[int]error
	onRead  func(idx int)
	openErr error

	pos    int
	calls  int
	opened bool
	closed int
}

func newSliceReader[T any](items ...T) *sliceReader[T] {
	return &sliceReader[T]{items: items, failAt: map[int]error{}}
}

func (r *sliceReader[T]) Open(context.Context) error {
	if r.openErr != nil {
		return r.openErr
	}
	r.opened = true
	return nil
}

func (r *sliceReader[T]) Read(context.Context) (T, error) {
	var zero T
	idx := r.calls
	r.calls++
	if err, ok := r.failAt[idx]; ok {
		return zero, err
	}
	if r.pos >= len(r.items) {
		return zero, port.ErrNoMoreItems
	}
	item := r.items[r.pos]
	r.pos++
	if r.onRead != nil {
		r.onRead(r.pos)
	}
	return item, nil
}

func (r *sliceReader[T]) Close(context.Context) error {
	r.closed++
	return nil
}

type memTx[T any] struct {
	id     string
	seq    int
	staged []T
}

func (t *memTx[T]) ID() string { return t.id }

// memWriter is a transactional in-memory sink. failOnWrite fails the n-th Write call (1-based).
type memWriter[T any] struct {
	mu          sync.Mutex
	committed   [][]T
	begun       int
	rollbacks   int
	failOnWrite int
	writes      int
	openErr     error
	closed      int
}

func (w *memWriter[T]) Open(context.Context) error { return w.openErr }

func (w *memWriter[T]) Write(_ context.Context, t tx.Tx, items []T) error {
	w.mu.Lock()
	w.writes++
	n := w.writes
	w.mu.Unlock()
	if n == w.failOnWrite {
		return fmt.Errorf("write %d: %w", n, errBoom)
	}
	mt := t.(*memTx[T])
	mt.staged = append(mt.staged, items...)
	return nil
}

func (w *memWriter[T]) Close(context.Context) error {
	w.closed++
	return nil
}

func (w *memWriter[T]) Begin(context.Context) (tx.Tx, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.begun++
	return &memTx[T]{id: fmt.Sprintf("mem-%d", w.begun)}, nil
}

func (w *memWriter[T]) Commit(_ context.Context, t tx.Tx) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.committed = append(w.committed, t.(*memTx[T]).staged)
	return nil
}

func (w *memWriter[T]) Rollback(context.Context, tx.Tx) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rollbacks++
	return nil
}

func (w *memWriter[T]) flattened() []T {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []T
	for _, c := range w.committed {
		out = append(out, c...)
	}
	return out
}

type recordingListener struct {
	mu          sync.Mutex
	beforeStep  int
	afterStep   int
	afterStatus model.BatchStatus
	chunks      []int
	chunkErrors []int
	readErrors  []error
	writeErrors []int
	overrideTo  model.BatchStatus
}

func (l *recordingListener) BeforeStep(context.Context, *model.StepExecution) { l.beforeStep++ }

func (l *recordingListener) AfterStep(_ context.Context, se *model.StepExecution) {
	l.afterStep++
	l.afterStatus = se.Status
	if l.overrideTo != "" {
		se.Status = l.overrideTo
	}
}

func (l *recordingListener) BeforeChunk(context.Context, *model.StepExecution, int) {}

func (l *recordingListener) AfterChunk(_ context.Context, _ *model.StepExecution, seq int, _ int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.chunks = append(l.chunks, seq)
}

func (l *recordingListener) AfterChunkError(_ context.Context, _ *model.StepExecution, seq int, _ error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.chunkErrors = append(l.chunkErrors, seq)
}

func (l *recordingListener) OnReadError(_ context.Context, err error) {
	l.readErrors = append(l.readErrors, err)
}

func (l *recordingListener) OnWriteError(_ context.Context, seq int, _ error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeErrors = append(l.writeErrors, seq)
}

func ints(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}
