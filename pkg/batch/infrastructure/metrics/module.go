package metrics

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/fx"

	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	"github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/telemetry"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// BackendPrometheus selects the Prometheus recorder and its /metrics endpoint.
const BackendPrometheus = "prometheus"

// ObservabilityParams are the dependencies of NewObservability.
type ObservabilityParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Config    *config.Config
	Telemetry *telemetry.Provider `optional:"true"`
}

// ObservabilityResult provides the engine-facing recorder and tracer.
type ObservabilityResult struct {
	fx.Out
	Recorder metrics.MetricRecorder
	Tracer   metrics.Tracer
}

// NewObservability picks the recorder and tracer configured under app.observability.
// Disabled signals get no-op implementations.
func NewObservability(p ObservabilityParams) (ObservabilityResult, error) {
	obs := p.Config.App.Observability

	var tracer metrics.Tracer = metrics.NewNoOpTracer()
	if obs.Tracing.Enabled && p.Telemetry != nil && p.Telemetry.TracerProvider != nil {
		tracer = NewOtelTracer(p.Telemetry.TracerProvider)
	}

	recorder, err := newRecorder(p.Lifecycle, obs.Metrics, p.Telemetry)
	if err != nil {
		return ObservabilityResult{}, err
	}
	if obs.Metrics.Enabled && obs.Metrics.AsyncBufferSize > 0 {
		async := NewAsyncMetricRecorder(obs.Metrics.AsyncBufferSize, recorder)
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(context.Context) error {
				async.Close()
				return nil
			},
		})
		recorder = async
	}
	return ObservabilityResult{Recorder: recorder, Tracer: tracer}, nil
}

func newRecorder(lc fx.Lifecycle, cfg config.MetricsConfig, tp *telemetry.Provider) (metrics.MetricRecorder, error) {
	if !cfg.Enabled {
		return metrics.NewNoOpMetricRecorder(), nil
	}
	switch strings.ToLower(cfg.Backend) {
	case BackendPrometheus:
		recorder := NewPrometheusRecorder()
		if cfg.Listen != "" {
			server := NewMetricsServer(cfg.Listen, recorder.Handler())
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error { return server.Start() },
				OnStop:  server.Shutdown,
			})
		}
		return recorder, nil
	case telemetry.BackendOtel:
		if tp == nil || tp.MeterProvider == nil {
			return nil, exception.NewConfigurationError("metrics", "the otel metrics backend requires telemetry.Module", nil)
		}
		recorder, err := NewOtelMetricRecorder(tp.MeterProvider)
		if err != nil {
			return nil, err
		}
		return recorder, nil
	default:
		return nil, exception.NewConfigurationError("metrics", fmt.Sprintf("unknown metrics backend '%s'", cfg.Backend), nil)
	}
}

// Module provides metrics.MetricRecorder and metrics.Tracer.
var Module = fx.Provide(NewObservability)
