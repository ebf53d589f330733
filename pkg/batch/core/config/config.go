// Package config provides structures and utilities for managing application configuration.
package config

import (
	"fmt"
	"strings"

	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/configbinder"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// EmbeddedConfig holds the content of the configuration file, typically passed from main.go.
type EmbeddedConfig []byte

// Read error policies accepted by BatchConfig.ReadErrorPolicy.
const (
	ReadErrorPolicyFatal  = "fatal"
	ReadErrorPolicyAbsorb = "absorb"
)

// Job repository types accepted by JobRepositoryConfig.Type.
const (
	JobRepositoryInMemory = "inmemory"
	JobRepositorySQL      = "sql"
)

// OutputConfig describes where a chunk step writes its records.
type OutputConfig struct {
	// File is the output path of the flat file or parquet writer.
	File string `yaml:"file"`
	// Append keeps existing content of File instead of truncating it.
	Append bool `yaml:"append"`
	// Format is "csv" or "parquet".
	Format string `yaml:"format"`
	// Delimiter separates fields in csv output.
	Delimiter string `yaml:"delimiter"`
}

// BatchConfig holds configuration specific to the batch processing engine.
type BatchConfig struct {
	// Name selects the job to run.
	Name string `yaml:"name"`
	// ChunkSize is the number of records committed per transaction.
	ChunkSize int `yaml:"chunk_size"`
	// Workers is the size of the chunk worker pool.
	Workers int `yaml:"workers"`
	// PageSize is the page size of paging readers.
	PageSize int `yaml:"page_size"`
	// ReadErrorPolicy is "fatal" or "absorb".
	ReadErrorPolicy string `yaml:"read_error_policy"`
	// ReadSkipLimit bounds the absorb policy.
	ReadSkipLimit int `yaml:"read_skip_limit"`
	// Output configures the sink.
	Output OutputConfig `yaml:"output"`
	// SourceDBRef names the database adaptor records are read from.
	SourceDBRef string `yaml:"source_db_ref"`
	// PublishRef names the storage adaptor the output is uploaded to. Empty disables publishing.
	PublishRef string `yaml:"publish_ref"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level (e.g., "INFO", "DEBUG", "TRACE").
	Level string `yaml:"level"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	// Timezone is the application timezone (e.g., "UTC", "Asia/Tokyo").
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
}

// JobRepositoryConfig selects the metadata repository.
type JobRepositoryConfig struct {
	// Type is "inmemory" or "sql".
	Type string `yaml:"type"`
	// DBRef names the database adaptor used by the sql repository (e.g., "metadata").
	DBRef string `yaml:"db_ref"`
}

// InfrastructureConfig holds logical dependency settings for infrastructure components.
type InfrastructureConfig struct {
	JobRepository JobRepositoryConfig `yaml:"job_repository"`
}

// MetricsConfig configures metric export.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	// Backend is "prometheus" or "otel".
	Backend string `yaml:"backend"`
	// Listen is the address of the Prometheus /metrics endpoint.
	Listen string `yaml:"listen"`
	// Endpoint is the OTLP collector address for the otel backend. Empty uses the tracing endpoint.
	Endpoint string `yaml:"endpoint"`
	// AsyncBufferSize is the queue size of the asynchronous recorder. Zero records synchronously.
	AsyncBufferSize int `yaml:"async_buffer_size"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
	// Endpoint is the OTLP collector address.
	Endpoint string `yaml:"endpoint"`
	// Protocol is "grpc" or "http".
	Protocol string `yaml:"protocol"`
	Insecure bool   `yaml:"insecure"`
}

// ObservabilityConfig groups metrics and tracing.
type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name"`
	Metrics     MetricsConfig `yaml:"metrics"`
	Tracing     TracingConfig `yaml:"tracing"`
}

// AppConfig holds all configuration under the "app" top-level key.
type AppConfig struct {
	Batch          BatchConfig          `yaml:"batch"`
	System         SystemConfig         `yaml:"system"`
	Infrastructure InfrastructureConfig `yaml:"infrastructure"`
	Observability  ObservabilityConfig  `yaml:"observability"`
	// AdaptorConfigs holds raw adaptor settings keyed by kind ("database", "storage") and then by name.
	AdaptorConfigs map[string]interface{} `yaml:"adaptor"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	App AppConfig `yaml:"app"`
	// EmbeddedConfig holds configuration loaded from an embedded source, not from YAML.
	EmbeddedConfig EmbeddedConfig `yaml:"-"`
}

// NewConfig returns a new instance of Config with default values.
func NewConfig() *Config {
	return &Config{
		App: AppConfig{
			Batch: BatchConfig{
				ChunkSize:       10,
				Workers:         1,
				PageSize:        10,
				ReadErrorPolicy: ReadErrorPolicyFatal,
				ReadSkipLimit:   10,
				Output:          OutputConfig{Format: "csv", Delimiter: ","},
				SourceDBRef:     "source",
			},
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: "INFO"},
			},
			Infrastructure: InfrastructureConfig{
				JobRepository: JobRepositoryConfig{Type: JobRepositoryInMemory, DBRef: "metadata"},
			},
			Observability: ObservabilityConfig{
				ServiceName: "chunkbatch",
				Metrics:     MetricsConfig{Backend: "prometheus", Listen: ":9090"},
				Tracing:     TracingConfig{Protocol: "grpc", Endpoint: "localhost:4317"},
			},
			AdaptorConfigs: map[string]interface{}{},
		},
	}
}

// Validate reports the first invalid setting as a configuration error.
func (c *Config) Validate() error {
	b := c.App.Batch
	switch {
	case b.ChunkSize < 1:
		return exception.NewConfigurationError(moduleName, fmt.Sprintf("app.batch.chunk_size must be at least 1, got %d", b.ChunkSize), nil)
	case b.Workers < 1:
		return exception.NewConfigurationError(moduleName, fmt.Sprintf("app.batch.workers must be at least 1, got %d", b.Workers), nil)
	case b.PageSize < 1:
		return exception.NewConfigurationError(moduleName, fmt.Sprintf("app.batch.page_size must be at least 1, got %d", b.PageSize), nil)
	case b.ReadSkipLimit < 0:
		return exception.NewConfigurationError(moduleName, fmt.Sprintf("app.batch.read_skip_limit must not be negative, got %d", b.ReadSkipLimit), nil)
	}
	switch strings.ToLower(b.ReadErrorPolicy) {
	case ReadErrorPolicyFatal, ReadErrorPolicyAbsorb:
	default:
		return exception.NewConfigurationError(moduleName, fmt.Sprintf("unknown app.batch.read_error_policy '%s'", b.ReadErrorPolicy), nil)
	}
	switch c.App.Infrastructure.JobRepository.Type {
	case JobRepositoryInMemory:
	case JobRepositorySQL:
		if c.App.Infrastructure.JobRepository.DBRef == "" {
			return exception.NewConfigurationError(moduleName, "app.infrastructure.job_repository.db_ref is required for the sql job repository", nil)
		}
	default:
		return exception.NewConfigurationError(moduleName, fmt.Sprintf("unknown job repository type '%s'", c.App.Infrastructure.JobRepository.Type), nil)
	}
	return nil
}

// DecodeAdaptorConfigs decodes every entry under app.adaptor.<kind> into T.
// It returns an empty map when the kind is absent.
func DecodeAdaptorConfigs[T any](cfg *Config, kind string) (map[string]T, error) {
	out := make(map[string]T)
	raw, ok := cfg.App.AdaptorConfigs[kind]
	if !ok || raw == nil {
		return out, nil
	}
	entries, ok := raw.(map[string]interface{})
	if !ok {
		return nil, exception.NewConfigurationError(moduleName, fmt.Sprintf("app.adaptor.%s must be a mapping, got %T", kind, raw), nil)
	}
	for name, entry := range entries {
		var v T
		if err := configbinder.Bind(entry, &v); err != nil {
			return nil, exception.NewConfigurationError(moduleName, fmt.Sprintf("failed to decode app.adaptor.%s.%s", kind, name), err)
		}
		out[name] = v
	}
	return out, nil
}
