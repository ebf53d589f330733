// Package telemetry builds the OpenTelemetry trace and meter providers and their OTLP exporters.
package telemetry

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"

	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"

	// BackendOtel selects OTLP metric export.
	BackendOtel = "otel"
)

// Provider owns the SDK providers. A nil field means that signal is disabled.
type Provider struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
}

// NewProvider creates the providers enabled in cfg. It does not install them globally.
func NewProvider(ctx context.Context, cfg config.ObservabilityConfig) (*Provider, error) {
	res := resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))
	p := &Provider{}

	if cfg.Tracing.Enabled {
		exporter, err := newTraceExporter(ctx, cfg.Tracing)
		if err != nil {
			return nil, err
		}
		p.TracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		logger.Infof("Telemetry: exporting spans over OTLP/%s to %s.", strings.ToLower(cfg.Tracing.Protocol), cfg.Tracing.Endpoint)
	}

	if cfg.Metrics.Enabled && strings.EqualFold(cfg.Metrics.Backend, BackendOtel) {
		target := metricTarget(cfg)
		exporter, err := newMetricExporter(ctx, target)
		if err != nil {
			if p.TracerProvider != nil {
				_ = p.TracerProvider.Shutdown(ctx)
			}
			return nil, err
		}
		p.MeterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
			sdkmetric.WithResource(res),
		)
		logger.Infof("Telemetry: exporting metrics over OTLP/%s to %s.", strings.ToLower(target.Protocol), target.Endpoint)
	}
	return p, nil
}

func newTraceExporter(ctx context.Context, cfg config.TracingConfig) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Protocol) {
	case ProtocolGRPC:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	case ProtocolHTTP:
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, exception.NewConfigurationError("telemetry", fmt.Sprintf("unknown OTLP protocol '%s'", cfg.Protocol), nil)
	}
}

// metricTarget returns the collector settings for metric export. Protocol and
// transport security come from tracing; the endpoint does too unless
// metrics set their own.
func metricTarget(cfg config.ObservabilityConfig) config.TracingConfig {
	target := cfg.Tracing
	if cfg.Metrics.Endpoint != "" {
		target.Endpoint = cfg.Metrics.Endpoint
	}
	return target
}

func newMetricExporter(ctx context.Context, cfg config.TracingConfig) (sdkmetric.Exporter, error) {
	switch strings.ToLower(cfg.Protocol) {
	case ProtocolGRPC:
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, opts...)
	case ProtocolHTTP:
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)
	default:
		return nil, exception.NewConfigurationError("telemetry", fmt.Sprintf("unknown OTLP protocol '%s'", cfg.Protocol), nil)
	}
}

// Shutdown flushes and stops every provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs error
	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("tracer provider: %w", err))
		}
	}
	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("meter provider: %w", err))
		}
	}
	return errs
}

// NewProviderWithLifecycle creates the providers, installs them globally and shuts them down on stop.
func NewProviderWithLifecycle(lc fx.Lifecycle, cfg *config.Config) (*Provider, error) {
	p, err := NewProvider(context.Background(), cfg.App.Observability)
	if err != nil {
		return nil, err
	}
	if p.TracerProvider != nil {
		otel.SetTracerProvider(p.TracerProvider)
	}
	if p.MeterProvider != nil {
		otel.SetMeterProvider(p.MeterProvider)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return p.Shutdown(ctx)
		},
	})
	return p, nil
}

// Module provides *Provider.
var Module = fx.Provide(NewProviderWithLifecycle)
