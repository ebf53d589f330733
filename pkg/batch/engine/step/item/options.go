package item

import (
	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
)

// ReadErrorPolicy decides what a chunk step does after a failed read.
type ReadErrorPolicy int

const (
	// ReadErrorFatal aborts the step on the first read error.
	ReadErrorFatal ReadErrorPolicy = iota
	// ReadErrorAbsorb skips the failed record and keeps reading, up to the read skip limit.
	ReadErrorAbsorb
)

const (
	// DefaultChunkSize is used when WithChunkSize is not given.
	DefaultChunkSize = 10
	// DefaultReadSkipLimit bounds ReadErrorAbsorb when WithReadSkipLimit is not given.
	DefaultReadSkipLimit = 10
)

type settings struct {
	chunkSize       int
	workers         int
	readErrorPolicy ReadErrorPolicy
	readSkipLimit   int
	stepListeners   []port.StepExecutionListener
	chunkListeners  []port.ChunkListener
	readListeners   []port.ItemReadListener
	writeListeners  []port.ItemWriteListener
	metricRecorder  metrics.MetricRecorder
	tracer          metrics.Tracer
}

func defaultSettings() settings {
	return settings{
		chunkSize:      DefaultChunkSize,
		workers:        1,
		readSkipLimit:  DefaultReadSkipLimit,
		metricRecorder: metrics.NewNoOpMetricRecorder(),
		tracer:         metrics.NewNoOpTracer(),
	}
}

// Option configures a ChunkStep.
type Option func(*settings)

// WithChunkSize sets the number of records per chunk.
func WithChunkSize(n int) Option {
	return func(s *settings) { s.chunkSize = n }
}

// WithWorkers sets the size of the step's worker pool.
// With more than one worker, chunks are processed concurrently but still commit one
// at a time in read order.
func WithWorkers(n int) Option {
	return func(s *settings) { s.workers = n }
}

// WithReadErrorPolicy sets the read error policy. The default is ReadErrorFatal.
func WithReadErrorPolicy(p ReadErrorPolicy) Option {
	return func(s *settings) { s.readErrorPolicy = p }
}

// WithReadSkipLimit sets how many read errors ReadErrorAbsorb tolerates.
func WithReadSkipLimit(n int) Option {
	return func(s *settings) { s.readSkipLimit = n }
}

// WithStepListener registers a step listener.
func WithStepListener(l port.StepExecutionListener) Option {
	return func(s *settings) { s.stepListeners = append(s.stepListeners, l) }
}

// WithChunkListener registers a chunk listener.
func WithChunkListener(l port.ChunkListener) Option {
	return func(s *settings) { s.chunkListeners = append(s.chunkListeners, l) }
}

// WithReadListener registers a read error listener.
func WithReadListener(l port.ItemReadListener) Option {
	return func(s *settings) { s.readListeners = append(s.readListeners, l) }
}

// WithWriteListener registers a write error listener.
func WithWriteListener(l port.ItemWriteListener) Option {
	return func(s *settings) { s.writeListeners = append(s.writeListeners, l) }
}

// WithMetricRecorder sets the metric recorder.
func WithMetricRecorder(r metrics.MetricRecorder) Option {
	return func(s *settings) {
		if r != nil {
			s.metricRecorder = r
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t metrics.Tracer) Option {
	return func(s *settings) {
		if t != nil {
			s.tracer = t
		}
	}
}
