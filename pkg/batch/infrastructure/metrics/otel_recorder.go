package metrics

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
)

// OtelMetricRecorder records measurements as OpenTelemetry instruments, for export over OTLP.
type OtelMetricRecorder struct {
	jobDuration  metric.Float64Histogram
	jobsRunning  metric.Int64UpDownCounter
	stepDuration metric.Float64Histogram
	itemsRead    metric.Int64Counter
	itemsWritten metric.Int64Counter
	readSkips    metric.Int64Counter
	commits      metric.Int64Counter
	rollbacks    metric.Int64Counter
	operations   metric.Float64Histogram
}

// NewOtelMetricRecorder creates the instruments on mp, or on the global provider when mp is nil.
func NewOtelMetricRecorder(mp metric.MeterProvider) (*OtelMetricRecorder, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	var (
		r    OtelMetricRecorder
		errs error
		err  error
	)
	collect := func(e error) {
		if e != nil {
			errs = multierror.Append(errs, e)
		}
	}
	r.jobDuration, err = meter.Float64Histogram("batch.job.duration", metric.WithUnit("s"), metric.WithDescription("Duration of batch job executions."))
	collect(err)
	r.jobsRunning, err = meter.Int64UpDownCounter("batch.job.running", metric.WithDescription("Number of job executions currently running."))
	collect(err)
	r.stepDuration, err = meter.Float64Histogram("batch.step.duration", metric.WithUnit("s"), metric.WithDescription("Duration of batch step executions."))
	collect(err)
	r.itemsRead, err = meter.Int64Counter("batch.step.items.read", metric.WithDescription("Items read by step."))
	collect(err)
	r.itemsWritten, err = meter.Int64Counter("batch.step.items.written", metric.WithDescription("Items committed by step."))
	collect(err)
	r.readSkips, err = meter.Int64Counter("batch.step.read.skips", metric.WithDescription("Read errors absorbed by step."))
	collect(err)
	r.commits, err = meter.Int64Counter("batch.step.commits", metric.WithDescription("Chunk commits by step."))
	collect(err)
	r.rollbacks, err = meter.Int64Counter("batch.step.rollbacks", metric.WithDescription("Chunk rollbacks by step."))
	collect(err)
	r.operations, err = meter.Float64Histogram("batch.operation.duration", metric.WithUnit("s"), metric.WithDescription("Wall-clock duration of jobs and steps."))
	collect(err)
	if errs != nil {
		return nil, errs
	}
	return &r, nil
}

func stepAttrs(execution *model.StepExecution) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("job_name", execution.JobName),
		attribute.String("step_name", execution.StepName),
	)
}

func (r *OtelMetricRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	r.jobsRunning.Add(ctx, 1, metric.WithAttributes(attribute.String("job_name", execution.JobName)))
}

func (r *OtelMetricRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	r.jobsRunning.Add(ctx, -1, metric.WithAttributes(attribute.String("job_name", execution.JobName)))
	if execution.EndTime != nil {
		r.jobDuration.Record(ctx, execution.EndTime.Sub(execution.StartTime).Seconds(), metric.WithAttributes(
			attribute.String("job_name", execution.JobName),
			attribute.String("status", string(execution.Status)),
		))
	}
}

func (r *OtelMetricRecorder) RecordStepStart(context.Context, *model.StepExecution) {}

func (r *OtelMetricRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	if execution.EndTime == nil {
		return
	}
	r.stepDuration.Record(ctx, execution.EndTime.Sub(execution.StartTime).Seconds(), metric.WithAttributes(
		attribute.String("job_name", execution.JobName),
		attribute.String("step_name", execution.StepName),
		attribute.String("status", string(execution.Status)),
	))
}

func (r *OtelMetricRecorder) RecordItemRead(ctx context.Context, execution *model.StepExecution, count int) {
	r.itemsRead.Add(ctx, int64(count), stepAttrs(execution))
}

func (r *OtelMetricRecorder) RecordItemWrite(ctx context.Context, execution *model.StepExecution, count int) {
	r.itemsWritten.Add(ctx, int64(count), stepAttrs(execution))
}

func (r *OtelMetricRecorder) RecordReadSkip(ctx context.Context, execution *model.StepExecution) {
	r.readSkips.Add(ctx, 1, stepAttrs(execution))
}

func (r *OtelMetricRecorder) RecordChunkCommit(ctx context.Context, execution *model.StepExecution) {
	r.commits.Add(ctx, 1, stepAttrs(execution))
}

func (r *OtelMetricRecorder) RecordChunkRollback(ctx context.Context, execution *model.StepExecution) {
	r.rollbacks.Add(ctx, 1, stepAttrs(execution))
}

func (r *OtelMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	attrs := make([]attribute.KeyValue, 0, len(tags)+1)
	attrs = append(attrs, attribute.String("operation", name))
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	r.operations.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

var _ metrics.MetricRecorder = (*OtelMetricRecorder)(nil)
