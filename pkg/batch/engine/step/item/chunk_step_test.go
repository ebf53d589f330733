package item

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

func newExecution(name string) *model.StepExecution {
	je := model.NewJobExecution("instance-1", "testJob", model.NewJobParameters())
	return model.NewStepExecution(je, name)
}

func TestChunkStep_WritesChunksInReadOrder(t *testing.T) {
	r := newSliceReader(2, 3, 1)
	w := &memWriter[int]{}
	step, err := NewChunkStep[int]("exportStep", r, w, nil, WithChunkSize(2))
	require.NoError(t, err)

	se := newExecution("exportStep")
	res := step.Execute(context.Background(), se)

	require.NoError(t, res.Err)
	assert.Equal(t, model.BatchStatusCompleted, res.Status)
	assert.Equal(t, [][]int{{2, 3}, {1}}, w.committed)
	assert.Equal(t, 3, res.ReadCount)
	assert.Equal(t, 3, res.WriteCount)
	assert.Equal(t, 2, res.CommitCount)
	assert.Equal(t, 0, res.RollbackCount)
	assert.Equal(t, model.ExitStatusCompleted, se.ExitStatus)
	assert.NotNil(t, se.EndTime)
	assert.Equal(t, 1, r.closed)
	assert.Equal(t, 1, w.closed)
}

func TestChunkStep_EmptySourceCompletes(t *testing.T) {
	w := &memWriter[int]{}
	step, err := NewChunkStep[int]("empty", newSliceReader[int](), w, nil)
	require.NoError(t, err)

	res := step.Execute(context.Background(), newExecution("empty"))

	assert.Equal(t, model.BatchStatusCompleted, res.Status)
	assert.Zero(t, res.CommitCount)
	assert.Zero(t, w.begun)
}

func TestChunkStep_WriteFailureKeepsEarlierChunks(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run("workers="+strconv.Itoa(workers), func(t *testing.T) {
			const chunkSize, failing = 3, 4
			w := &memWriter[int]{failOnWrite: failing}
			l := &recordingListener{}
			step, err := NewChunkStep[int]("exportStep", newSliceReader(ints(30)...), w, nil,
				WithChunkSize(chunkSize), WithWorkers(workers),
				WithStepListener(l), WithChunkListener(l), WithWriteListener(l))
			require.NoError(t, err)

			res := step.Execute(context.Background(), newExecution("exportStep"))

			assert.Equal(t, model.BatchStatusFailed, res.Status)
			require.Error(t, res.Err)
			assert.True(t, exception.IsWriteError(res.Err))
			assert.ErrorIs(t, res.Err, errBoom)
			assert.Equal(t, ints((failing-1)*chunkSize), w.flattened())
			assert.Equal(t, failing-1, res.CommitCount)
			assert.Equal(t, 1, res.RollbackCount)
			assert.Equal(t, []int{1, 2, 3}, l.chunks)
			assert.Equal(t, []int{failing}, l.chunkErrors)
			assert.Equal(t, []int{failing}, l.writeErrors)
			assert.Equal(t, 1, l.afterStep)
			assert.Equal(t, model.BatchStatusFailed, l.afterStatus)
			assert.Zero(t, step.ActiveWorkers())
		})
	}
}

func TestChunkStep_WorkersProcessConcurrently(t *testing.T) {
	w := &memWriter[string]{}
	processor := func(_ context.Context, n int) (string, error) {
		time.Sleep(20 * time.Millisecond)
		return fmt.Sprintf("item-%d", n), nil
	}
	step, err := NewProcessingChunkStep[int, string]("parallel", newSliceReader(ints(16)...), processor, w, nil,
		WithChunkSize(2), WithWorkers(4))
	require.NoError(t, err)

	res := step.Execute(context.Background(), newExecution("parallel"))

	require.NoError(t, res.Err)
	assert.Equal(t, 8, res.CommitCount)
	assert.Greater(t, step.PeakWorkers(), 1)
	assert.LessOrEqual(t, step.PeakWorkers(), 4)
	assert.Zero(t, step.ActiveWorkers())

	want := make([]string, 0, 16)
	for _, n := range ints(16) {
		want = append(want, fmt.Sprintf("item-%d", n))
	}
	assert.Equal(t, want, w.flattened())
}

func TestChunkStep_ProcessorErrorFailsChunk(t *testing.T) {
	w := &memWriter[int]{}
	processor := func(_ context.Context, n int) (int, error) {
		if n == 5 {
			return 0, errBoom
		}
		return n * 10, nil
	}
	step, err := NewProcessingChunkStep[int, int]("proc", newSliceReader(ints(9)...), processor, w, nil, WithChunkSize(2))
	require.NoError(t, err)

	res := step.Execute(context.Background(), newExecution("proc"))

	assert.Equal(t, model.BatchStatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, errBoom)
	assert.Equal(t, []int{10, 20, 30, 40}, w.flattened())
}

func TestChunkStep_ReadErrorFatalByDefault(t *testing.T) {
	r := newSliceReader(ints(10)...)
	r.failAt[5] = errBoom
	w := &memWriter[int]{}
	l := &recordingListener{}
	step, err := NewChunkStep[int]("read", r, w, nil, WithChunkSize(2), WithReadListener(l), WithStepListener(l))
	require.NoError(t, err)

	res := step.Execute(context.Background(), newExecution("read"))

	assert.Equal(t, model.BatchStatusFailed, res.Status)
	assert.True(t, exception.IsReadError(res.Err))
	assert.ErrorIs(t, res.Err, errBoom)
	require.Len(t, l.readErrors, 1)
	assert.ErrorIs(t, l.readErrors[0], errBoom)
	assert.Equal(t, []int{1, 2, 3, 4}, w.flattened())
	assert.Equal(t, 5, res.ReadCount)
	assert.Equal(t, 1, l.afterStep)
	assert.Equal(t, 1, r.closed)
}

func TestChunkStep_ReadErrorAbsorbed(t *testing.T) {
	r := newSliceReader(ints(6)...)
	r.failAt[1] = errBoom
	r.failAt[4] = errBoom
	w := &memWriter[int]{}
	l := &recordingListener{}
	step, err := NewChunkStep[int]("absorb", r, w, nil,
		WithChunkSize(4), WithReadErrorPolicy(ReadErrorAbsorb), WithReadListener(l))
	require.NoError(t, err)

	res := step.Execute(context.Background(), newExecution("absorb"))

	require.NoError(t, res.Err)
	assert.Equal(t, model.BatchStatusCompleted, res.Status)
	assert.Equal(t, ints(6), w.flattened())
	assert.Equal(t, 2, res.ReadSkipCount)
	assert.Equal(t, 6, res.ReadCount)
	assert.Len(t, l.readErrors, 2)
}

func TestChunkStep_ReadSkipLimitExceeded(t *testing.T) {
	r := newSliceReader(ints(6)...)
	r.failAt[1] = errBoom
	r.failAt[2] = errBoom
	step, err := NewChunkStep[int]("absorb", r, &memWriter[int]{}, nil,
		WithReadErrorPolicy(ReadErrorAbsorb), WithReadSkipLimit(1))
	require.NoError(t, err)

	res := step.Execute(context.Background(), newExecution("absorb"))

	assert.Equal(t, model.BatchStatusFailed, res.Status)
	assert.True(t, exception.IsReadError(res.Err))
	assert.Equal(t, 1, res.ReadSkipCount)
}

func TestChunkStep_CancellationLetsInFlightChunksFinish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := newSliceReader(ints(20)...)
	r.onRead = func(pos int) {
		if pos == 4 {
			cancel()
		}
	}
	w := &memWriter[int]{}
	step, err := NewChunkStep[int]("cancel", r, w, nil, WithChunkSize(2), WithWorkers(2))
	require.NoError(t, err)

	res := step.Execute(ctx, newExecution("cancel"))

	assert.Equal(t, model.BatchStatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, []int{1, 2, 3, 4}, w.flattened())
	assert.Zero(t, w.rollbacks)
	assert.Zero(t, step.ActiveWorkers())
}

func TestChunkStep_OpenFailure(t *testing.T) {
	r := newSliceReader(1, 2)
	w := &memWriter[int]{openErr: errBoom}
	l := &recordingListener{}
	step, err := NewChunkStep[int]("open", r, w, nil, WithStepListener(l))
	require.NoError(t, err)

	res := step.Execute(context.Background(), newExecution("open"))

	assert.Equal(t, model.BatchStatusFailed, res.Status)
	assert.True(t, exception.IsConfigurationError(res.Err))
	assert.ErrorIs(t, res.Err, errBoom)
	assert.Equal(t, 1, r.closed)
	assert.Zero(t, w.begun)
	assert.Equal(t, 1, l.beforeStep)
	assert.Equal(t, 1, l.afterStep)
}

func TestChunkStep_ListenerCannotOverrideStatus(t *testing.T) {
	l := &recordingListener{overrideTo: model.BatchStatusCompleted}
	step, err := NewChunkStep[int]("override", newSliceReader(1, 2, 3), &memWriter[int]{failOnWrite: 1}, nil,
		WithStepListener(l))
	require.NoError(t, err)

	se := newExecution("override")
	res := step.Execute(context.Background(), se)

	assert.Equal(t, model.BatchStatusFailed, res.Status)
	assert.Equal(t, model.BatchStatusFailed, se.Status)
	assert.Equal(t, model.ExitStatusFailed, se.ExitStatus)
	assert.Equal(t, 1, l.afterStep)
}

func TestNewChunkStep_Validation(t *testing.T) {
	r := newSliceReader(1)
	w := &memWriter[int]{}

	tests := []struct {
		name string
		opts []Option
	}{
		{"zero chunk size", []Option{WithChunkSize(0)}},
		{"negative chunk size", []Option{WithChunkSize(-1)}},
		{"zero workers", []Option{WithWorkers(0)}},
		{"negative skip limit", []Option{WithReadErrorPolicy(ReadErrorAbsorb), WithReadSkipLimit(-1)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewChunkStep[int]("s", r, w, nil, tc.opts...)
			require.Error(t, err)
			assert.True(t, exception.IsConfigurationError(err))
		})
	}

	_, err := NewChunkStep[int]("s", r, nonTxWriter{}, nil)
	assert.True(t, exception.IsConfigurationError(err))

	step, err := NewChunkStep[int]("s", r, w, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultChunkSize, step.ChunkSize())
	assert.Equal(t, 1, step.Workers())
	assert.Equal(t, "s", step.Name())
}

type nonTxWriter struct{}

func (nonTxWriter) Open(context.Context) error { return nil }
func (nonTxWriter) Write(context.Context, tx.Tx, []int) error {
	return errors.New("unused")
}
func (nonTxWriter) Close(context.Context) error { return nil }
