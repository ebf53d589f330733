// Package metrics defines the observability contracts the engine reports through.
// Concrete backends (Prometheus, OpenTelemetry) live in infrastructure/metrics.
package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// MetricRecorder records job, step and chunk measurements.
type MetricRecorder interface {
	RecordJobStart(ctx context.Context, execution *model.JobExecution)
	RecordJobEnd(ctx context.Context, execution *model.JobExecution)
	RecordStepStart(ctx context.Context, execution *model.StepExecution)
	RecordStepEnd(ctx context.Context, execution *model.StepExecution)
	// RecordItemRead adds count successfully read records.
	RecordItemRead(ctx context.Context, execution *model.StepExecution, count int)
	// RecordItemWrite adds count committed records.
	RecordItemWrite(ctx context.Context, execution *model.StepExecution, count int)
	RecordReadSkip(ctx context.Context, execution *model.StepExecution)
	RecordChunkCommit(ctx context.Context, execution *model.StepExecution)
	RecordChunkRollback(ctx context.Context, execution *model.StepExecution)
	RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string)
}

// NoOpMetricRecorder discards every measurement.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a new NoOpMetricRecorder.
func NewNoOpMetricRecorder() MetricRecorder { return &NoOpMetricRecorder{} }

func (r *NoOpMetricRecorder) RecordJobStart(context.Context, *model.JobExecution)        {}
func (r *NoOpMetricRecorder) RecordJobEnd(context.Context, *model.JobExecution)          {}
func (r *NoOpMetricRecorder) RecordStepStart(context.Context, *model.StepExecution)      {}
func (r *NoOpMetricRecorder) RecordStepEnd(context.Context, *model.StepExecution)        {}
func (r *NoOpMetricRecorder) RecordItemRead(context.Context, *model.StepExecution, int)  {}
func (r *NoOpMetricRecorder) RecordItemWrite(context.Context, *model.StepExecution, int) {}
func (r *NoOpMetricRecorder) RecordReadSkip(context.Context, *model.StepExecution)       {}
func (r *NoOpMetricRecorder) RecordChunkCommit(context.Context, *model.StepExecution)    {}
func (r *NoOpMetricRecorder) RecordChunkRollback(context.Context, *model.StepExecution)  {}
func (r *NoOpMetricRecorder) RecordDuration(context.Context, string, time.Duration, map[string]string) {
}

var _ MetricRecorder = (*NoOpMetricRecorder)(nil)
