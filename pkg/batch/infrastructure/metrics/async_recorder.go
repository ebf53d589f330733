package metrics

import (
	"context"
	"sync"
	"time"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// DefaultAsyncBufferSize is used when NewAsyncMetricRecorder is given a non-positive size.
const DefaultAsyncBufferSize = 100

// metricEvent is one deferred call on the synchronous recorder.
type metricEvent struct {
	kind   string
	record func(metrics.MetricRecorder)
}

// AsyncMetricRecorder hands measurements to a worker goroutine so that chunk workers never block on a backend.
// Executions are copied when queued; the recorder sees their state at the time of the call.
type AsyncMetricRecorder struct {
	eventQueue   chan metricEvent
	stopCh       chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	syncRecorder metrics.MetricRecorder
}

// NewAsyncMetricRecorder starts the worker goroutine. Close stops it.
func NewAsyncMetricRecorder(bufferSize int, syncRecorder metrics.MetricRecorder) *AsyncMetricRecorder {
	if bufferSize <= 0 {
		bufferSize = DefaultAsyncBufferSize
	}
	r := &AsyncMetricRecorder{
		eventQueue:   make(chan metricEvent, bufferSize),
		stopCh:       make(chan struct{}),
		syncRecorder: syncRecorder,
	}
	r.wg.Add(1)
	go r.run()
	logger.Debugf("AsyncMetricRecorder: Worker goroutine started (buffer size: %d).", bufferSize)
	return r
}

func (r *AsyncMetricRecorder) run() {
	defer r.wg.Done()
	for {
		select {
		case event := <-r.eventQueue:
			event.record(r.syncRecorder)
		case <-r.stopCh:
			remaining := 0
			for {
				select {
				case event := <-r.eventQueue:
					event.record(r.syncRecorder)
					remaining++
				default:
					logger.Debugf("AsyncMetricRecorder: Worker goroutine stopped. Processed %d remaining events.", remaining)
					return
				}
			}
		}
	}
}

// Close drains the queue and stops the worker. Events sent after Close are discarded.
func (r *AsyncMetricRecorder) Close() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		r.wg.Wait()
	})
}

func (r *AsyncMetricRecorder) send(kind string, record func(metrics.MetricRecorder)) {
	select {
	case <-r.stopCh:
		logger.Warnf("AsyncMetricRecorder: recorder is closed (type: %s). Event discarded.", kind)
		return
	default:
	}
	select {
	case r.eventQueue <- metricEvent{kind: kind, record: record}:
	default:
		logger.Warnf("AsyncMetricRecorder: Event queue is full (type: %s). Event discarded.", kind)
	}
}

func (r *AsyncMetricRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	ctx, je := context.WithoutCancel(ctx), *execution
	r.send("job_start", func(m metrics.MetricRecorder) { m.RecordJobStart(ctx, &je) })
}

func (r *AsyncMetricRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	ctx, je := context.WithoutCancel(ctx), *execution
	r.send("job_end", func(m metrics.MetricRecorder) { m.RecordJobEnd(ctx, &je) })
}

func (r *AsyncMetricRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {
	ctx, se := context.WithoutCancel(ctx), *execution
	r.send("step_start", func(m metrics.MetricRecorder) { m.RecordStepStart(ctx, &se) })
}

func (r *AsyncMetricRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	ctx, se := context.WithoutCancel(ctx), *execution
	r.send("step_end", func(m metrics.MetricRecorder) { m.RecordStepEnd(ctx, &se) })
}

func (r *AsyncMetricRecorder) RecordItemRead(ctx context.Context, execution *model.StepExecution, count int) {
	ctx, se := context.WithoutCancel(ctx), stepRef(execution)
	r.send("item_read", func(m metrics.MetricRecorder) { m.RecordItemRead(ctx, se, count) })
}

func (r *AsyncMetricRecorder) RecordItemWrite(ctx context.Context, execution *model.StepExecution, count int) {
	ctx, se := context.WithoutCancel(ctx), stepRef(execution)
	r.send("item_write", func(m metrics.MetricRecorder) { m.RecordItemWrite(ctx, se, count) })
}

func (r *AsyncMetricRecorder) RecordReadSkip(ctx context.Context, execution *model.StepExecution) {
	ctx, se := context.WithoutCancel(ctx), stepRef(execution)
	r.send("read_skip", func(m metrics.MetricRecorder) { m.RecordReadSkip(ctx, se) })
}

func (r *AsyncMetricRecorder) RecordChunkCommit(ctx context.Context, execution *model.StepExecution) {
	ctx, se := context.WithoutCancel(ctx), stepRef(execution)
	r.send("chunk_commit", func(m metrics.MetricRecorder) { m.RecordChunkCommit(ctx, se) })
}

func (r *AsyncMetricRecorder) RecordChunkRollback(ctx context.Context, execution *model.StepExecution) {
	ctx, se := context.WithoutCancel(ctx), stepRef(execution)
	r.send("chunk_rollback", func(m metrics.MetricRecorder) { m.RecordChunkRollback(ctx, se) })
}

func (r *AsyncMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	ctx = context.WithoutCancel(ctx)
	copied := make(map[string]string, len(tags))
	for k, v := range tags {
		copied[k] = v
	}
	r.send("duration", func(m metrics.MetricRecorder) { m.RecordDuration(ctx, name, duration, copied) })
}

// stepRef copies the identity of a running step. Its counters are owned by the chunk workers.
func stepRef(execution *model.StepExecution) *model.StepExecution {
	return &model.StepExecution{
		ID:             execution.ID,
		StepName:       execution.StepName,
		JobExecutionID: execution.JobExecutionID,
		JobName:        execution.JobName,
	}
}

var _ metrics.MetricRecorder = (*AsyncMetricRecorder)(nil)
