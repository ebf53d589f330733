package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

const sampleYAML = `
app:
  batch:
    name: personExportJob
    chunk_size: 50
    workers: 4
    output:
      file: /tmp/out.csv
      append: true
  infrastructure:
    job_repository:
      type: sql
      db_ref: metadata
  adaptor:
    database:
      metadata:
        type: sqlite
        database: ${CHUNKBATCH_TEST_DB_PATH}
        pool:
          max_open_conns: 1
    storage:
      archive:
        type: local
        base_dir: /var/archive
`

func TestLoadConfig_YAMLOverridesDefaults(t *testing.T) {
	t.Setenv("CHUNKBATCH_TEST_DB_PATH", "/tmp/meta.db")

	cfg, err := LoadConfig("testdata/missing.env", EmbeddedConfig(sampleYAML), nil)
	require.NoError(t, err)

	assert.Equal(t, "personExportJob", cfg.App.Batch.Name)
	assert.Equal(t, 50, cfg.App.Batch.ChunkSize)
	assert.Equal(t, 4, cfg.App.Batch.Workers)
	assert.True(t, cfg.App.Batch.Output.Append)
	// Untouched keys keep their defaults.
	assert.Equal(t, 10, cfg.App.Batch.PageSize)
	assert.Equal(t, ReadErrorPolicyFatal, cfg.App.Batch.ReadErrorPolicy)
	assert.Equal(t, "INFO", cfg.App.System.Logging.Level)
	assert.Equal(t, JobRepositorySQL, cfg.App.Infrastructure.JobRepository.Type)
}

func TestLoadConfig_EnvironmentWins(t *testing.T) {
	t.Setenv("CHUNKBATCH_APP_BATCH_CHUNK_SIZE", "7")
	t.Setenv("CHUNKBATCH_APP_BATCH_OUTPUT_APPEND", "false")
	t.Setenv("CHUNKBATCH_APP_SYSTEM_LOGGING_LEVEL", "DEBUG")
	t.Setenv("CHUNKBATCH_APP_ADAPTOR_DATABASE_METADATA_PASSWORD", "s3cret")

	cfg, err := LoadConfig("testdata/missing.env", EmbeddedConfig(sampleYAML), nil)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.App.Batch.ChunkSize)
	assert.False(t, cfg.App.Batch.Output.Append)
	assert.Equal(t, "DEBUG", cfg.App.System.Logging.Level)

	db := cfg.App.AdaptorConfigs["database"].(map[string]interface{})["metadata"].(map[string]interface{})
	assert.Equal(t, "s3cret", db["password"])
}

func TestLoadConfig_InvalidEnvValue(t *testing.T) {
	t.Setenv("CHUNKBATCH_APP_BATCH_WORKERS", "many")

	_, err := LoadConfig("testdata/missing.env", EmbeddedConfig(sampleYAML), nil)
	require.Error(t, err)
	assert.True(t, exception.IsConfigurationError(err))
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	_, err := LoadConfig("testdata/missing.env", EmbeddedConfig("app: [unclosed"), nil)
	require.Error(t, err)
	assert.True(t, exception.IsConfigurationError(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"zero chunk size", func(c *Config) { c.App.Batch.ChunkSize = 0 }, false},
		{"zero workers", func(c *Config) { c.App.Batch.Workers = 0 }, false},
		{"zero page size", func(c *Config) { c.App.Batch.PageSize = 0 }, false},
		{"negative skip limit", func(c *Config) { c.App.Batch.ReadSkipLimit = -1 }, false},
		{"absorb policy", func(c *Config) { c.App.Batch.ReadErrorPolicy = "ABSORB" }, true},
		{"unknown policy", func(c *Config) { c.App.Batch.ReadErrorPolicy = "retry" }, false},
		{"unknown repository", func(c *Config) { c.App.Infrastructure.JobRepository.Type = "redis" }, false},
		{"sql without db ref", func(c *Config) {
			c.App.Infrastructure.JobRepository = JobRepositoryConfig{Type: JobRepositorySQL}
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, exception.IsConfigurationError(err))
		})
	}
}

type testStorageConfig struct {
	Type    string `yaml:"type"`
	BaseDir string `yaml:"base_dir"`
}

type testDBConfig struct {
	Type     string `yaml:"type"`
	Database string `yaml:"database"`
	Pool     struct {
		MaxOpenConns int `yaml:"max_open_conns"`
	} `yaml:"pool"`
}

func TestDecodeAdaptorConfigs(t *testing.T) {
	t.Setenv("CHUNKBATCH_TEST_DB_PATH", "/tmp/meta.db")
	cfg, err := LoadConfig("testdata/missing.env", EmbeddedConfig(sampleYAML), nil)
	require.NoError(t, err)

	storages, err := DecodeAdaptorConfigs[testStorageConfig](cfg, "storage")
	require.NoError(t, err)
	assert.Equal(t, testStorageConfig{Type: "local", BaseDir: "/var/archive"}, storages["archive"])

	dbs, err := DecodeAdaptorConfigs[testDBConfig](cfg, "database")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/meta.db", dbs["metadata"].Database)
	assert.Equal(t, 1, dbs["metadata"].Pool.MaxOpenConns)

	none, err := DecodeAdaptorConfigs[testDBConfig](cfg, "queue")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDecodeAdaptorConfigs_NotAMapping(t *testing.T) {
	cfg := NewConfig()
	cfg.App.AdaptorConfigs["database"] = "oops"
	_, err := DecodeAdaptorConfigs[testDBConfig](cfg, "database")
	require.Error(t, err)
	assert.True(t, exception.IsConfigurationError(err))
}
