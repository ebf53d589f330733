package job_test

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/example/person-export/internal/job"
	"github.com/tigerroll/chunkbatch/example/person-export/internal/person"
	dbconfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	_ "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	storageconfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/config"
	_ "github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/repository/inmemory"
	"github.com/tigerroll/chunkbatch/pkg/batch/listener"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

const seededPeople = 25

func newConfig(t *testing.T, name string) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.App.Batch.Name = name
	cfg.App.Batch.ChunkSize = 10
	cfg.App.Batch.Workers = 4
	cfg.App.Batch.Output.File = filepath.Join(t.TempDir(), "person.csv")
	return cfg
}

func newDependencies(t *testing.T) job.Dependencies {
	t.Helper()
	db := gormadapter.NewProviderFromConfigs(map[string]dbconfig.DatabaseConfig{
		"source": {Type: "sqlite", Database: filepath.Join(t.TempDir(), "source.db") + "?_journal_mode=WAL&_busy_timeout=5000"},
	})
	t.Cleanup(func() { _ = db.CloseAll() })
	return job.Dependencies{
		Repository: inmemory.NewInMemoryJobRepository(),
		Database:   db,
	}
}

func withStorage(t *testing.T, deps *job.Dependencies) string {
	t.Helper()
	dir := t.TempDir()
	p := storage.NewProviderFromConfigs(map[string]storageconfig.StorageConfig{
		"out": {Type: "local", BaseDir: dir},
	})
	t.Cleanup(func() { _ = p.CloseAll() })
	deps.Storage = p
	return dir
}

func launch(t *testing.T, cfg *config.Config, deps job.Dependencies) *model.JobExecution {
	t.Helper()
	j, err := job.Build(cfg, deps)
	require.NoError(t, err)
	je, err := usecase.NewSimpleJobLauncher(deps.Repository, nil).Launch(context.Background(), j, model.NewJobParameters())
	require.NoError(t, err)
	return je
}

func readLines(t *testing.T, file string) []string {
	t.Helper()
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

// assertOrderedByAgeThenID checks the csv export is totally ordered by (age, id).
func assertOrderedByAgeThenID(t *testing.T, lines []string) {
	t.Helper()
	type key struct{ age, id int }
	keys := make([]key, 0, len(lines))
	for _, line := range lines {
		f := strings.Split(line, ",")
		require.Len(t, f, 4, line)
		id, err := strconv.Atoi(f[0])
		require.NoError(t, err)
		age, err := strconv.Atoi(f[2])
		require.NoError(t, err)
		keys = append(keys, key{age: age, id: id})
	}
	assert.True(t, sort.SliceIsSorted(keys, func(i, j int) bool {
		if keys[i].age != keys[j].age {
			return keys[i].age < keys[j].age
		}
		return keys[i].id < keys[j].id
	}))
}

func TestCursorItemReadBatch_ExportsInAgeOrder(t *testing.T) {
	cfg := newConfig(t, job.CursorItemReadBatch)
	deps := newDependencies(t)

	je := launch(t, cfg, deps)

	require.Equal(t, model.BatchStatusCompleted, je.Status, je.Failures)
	lines := readLines(t, cfg.App.Batch.Output.File)
	require.Len(t, lines, seededPeople)
	assert.Equal(t, "5,Erin,19,female", lines[0])
	assert.Equal(t, "14,Peggy,19,female", lines[1])
	assert.Contains(t, lines, "8,Heidi,23,unknown")
	assertOrderedByAgeThenID(t, lines)
}

func TestPagingItemReadBatch_MatchesCursorOutput(t *testing.T) {
	cursorCfg := newConfig(t, job.CursorItemReadBatch)
	launch(t, cursorCfg, newDependencies(t))

	pagingCfg := newConfig(t, job.PagingItemReadBatch)
	pagingCfg.App.Batch.PageSize = 7
	je := launch(t, pagingCfg, newDependencies(t))

	require.Equal(t, model.BatchStatusCompleted, je.Status, je.Failures)
	assert.Equal(t, readLines(t, cursorCfg.App.Batch.Output.File), readLines(t, pagingCfg.App.Batch.Output.File))
	require.Len(t, je.StepExecutions, 2)
	assert.Equal(t, seededPeople, je.StepExecutions[1].WriteCount)
}

func TestExport_PublishesCsvToStorage(t *testing.T) {
	cfg := newConfig(t, job.CursorItemReadBatch)
	cfg.App.Batch.PublishRef = "out"
	deps := newDependencies(t)
	dir := withStorage(t, &deps)
	signaler := listener.NewJobCompletionSignaler()
	deps.JobListeners = append(deps.JobListeners, signaler)

	je := launch(t, cfg, deps)

	require.Equal(t, model.BatchStatusCompleted, je.Status, je.Failures)
	require.Len(t, je.StepExecutions, 3)
	assert.Equal(t, "publishStep", je.StepExecutions[2].StepName)
	assert.Equal(t, readLines(t, cfg.App.Batch.Output.File), readLines(t, filepath.Join(dir, "person.csv")))

	select {
	case <-signaler.Done():
	default:
		t.Fatal("completion signaler was not closed")
	}
}

func TestExport_ParquetPartitionsByGender(t *testing.T) {
	cfg := newConfig(t, job.CursorItemReadBatch)
	cfg.App.Batch.Output.Format = job.FormatParquet
	cfg.App.Batch.Output.File = "export/person.parquet"
	cfg.App.Batch.PublishRef = "out"
	deps := newDependencies(t)
	dir := withStorage(t, &deps)

	je := launch(t, cfg, deps)

	require.Equal(t, model.BatchStatusCompleted, je.Status, je.Failures)
	require.Len(t, je.StepExecutions, 2, "parquet output is uploaded by the writer, not a publish step")
	for _, gender := range []string{"female", "male", "unknown"} {
		files, err := filepath.Glob(filepath.Join(dir, "export", "person", "gender="+gender, "*.parquet"))
		require.NoError(t, err)
		assert.Len(t, files, 1, gender)
	}
}

func TestExport_TableUpsertIsRerunnable(t *testing.T) {
	deps := newDependencies(t)
	for run := 0; run < 2; run++ {
		cfg := newConfig(t, job.PagingItemReadBatch)
		cfg.App.Batch.Output.Format = job.FormatTable
		cfg.App.Batch.Workers = 1

		j, err := job.Build(cfg, deps)
		require.NoError(t, err)
		params := model.NewJobParameters()
		params.Put("run", int64(run))
		je, err := usecase.NewSimpleJobLauncher(deps.Repository, nil).Launch(context.Background(), j, params)
		require.NoError(t, err)
		require.Equal(t, model.BatchStatusCompleted, je.Status, je.Failures)
	}

	conn, err := deps.Database.GetGormConnection("source")
	require.NoError(t, err)
	var rows []person.Record
	require.NoError(t, conn.Gorm().Order("id").Find(&rows).Error)
	require.Len(t, rows, seededPeople)
	assert.Equal(t, person.Record{ID: 1, Name: "Alice", Age: 34, Gender: "female"}, rows[0])
}

func TestImportBatch_RunsGreetingTasklet(t *testing.T) {
	cfg := newConfig(t, job.ImportBatch)
	deps := job.Dependencies{Repository: inmemory.NewInMemoryJobRepository()}

	je := launch(t, cfg, deps)

	require.Equal(t, model.BatchStatusCompleted, je.Status)
	require.Len(t, je.StepExecutions, 1)
	assert.Equal(t, "importStep", je.StepExecutions[0].StepName)
}

func TestBuild_RejectsInvalidConfiguration(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config, *job.Dependencies)
	}{
		{"unknown batch name", func(c *config.Config, _ *job.Dependencies) { c.App.Batch.Name = "NoSuchBatch" }},
		{"unknown output format", func(c *config.Config, _ *job.Dependencies) { c.App.Batch.Output.Format = "xml" }},
		{"parquet without storage", func(c *config.Config, _ *job.Dependencies) { c.App.Batch.Output.Format = job.FormatParquet }},
		{"publish without storage", func(c *config.Config, _ *job.Dependencies) { c.App.Batch.PublishRef = "out" }},
		{"export without database", func(_ *config.Config, d *job.Dependencies) { d.Database = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newConfig(t, job.CursorItemReadBatch)
			deps := newDependencies(t)
			tt.mutate(cfg, &deps)

			_, err := job.Build(cfg, deps)
			require.Error(t, err)
			assert.True(t, exception.IsConfigurationError(err), err)
		})
	}
}
