// Package job assembles the person export jobs selected by app.batch.name.
package job

import (
	"fmt"
	"path"
	"strings"

	"github.com/tigerroll/chunkbatch/example/person-export/internal/person"
	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	"github.com/tigerroll/chunkbatch/pkg/batch/component/step/reader"
	"github.com/tigerroll/chunkbatch/pkg/batch/component/step/writer"
	"github.com/tigerroll/chunkbatch/pkg/batch/component/tasklet/migration"
	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	repository "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/job/runner"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/item"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/tasklet"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// Job names accepted by app.batch.name.
const (
	CursorItemReadBatch = "CursorItemReadBatch"
	PagingItemReadBatch = "PagingItemReadBatch"
	ImportBatch         = "ImportBatch"
)

// Output formats accepted by app.batch.output.format.
const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
	FormatTable   = "table"
)

const (
	moduleName      = "person_job"
	migrateStepName = "migrateStep"
	exportStepName  = "exportStep"
	publishStepName = "publishStep"
	importStepName  = "importStep"
)

// Dependencies are the collaborators a job is assembled from.
// Storage is only needed for parquet output or publishing.
type Dependencies struct {
	Repository repository.JobRepository
	Database   *gormadapter.GormProvider
	Storage    storage.Provider
	Recorder   metrics.MetricRecorder
	Tracer     metrics.Tracer

	JobListeners   []port.JobExecutionListener
	StepListeners  []port.StepExecutionListener
	ChunkListeners []port.ChunkListener
	ReadListeners  []port.ItemReadListener
	WriteListeners []port.ItemWriteListener
}

// Build returns the job named by cfg.App.Batch.Name.
func Build(cfg *config.Config, deps Dependencies) (port.Job, error) {
	batch := cfg.App.Batch
	var (
		steps []port.Step
		err   error
	)
	switch batch.Name {
	case CursorItemReadBatch, PagingItemReadBatch:
		steps, err = exportSteps(batch, deps)
	case ImportBatch:
		steps, err = importSteps(deps)
	default:
		return nil, exception.NewConfigurationError(moduleName, fmt.Sprintf("unknown batch name '%s'", batch.Name), nil)
	}
	if err != nil {
		return nil, err
	}

	opts := []runner.Option{
		runner.WithMetricRecorder(deps.Recorder),
		runner.WithTracer(deps.Tracer),
	}
	for _, l := range deps.JobListeners {
		opts = append(opts, runner.WithJobListener(l))
	}
	return runner.NewSimpleJob(batch.Name, deps.Repository, steps, opts...)
}

func exportSteps(batch config.BatchConfig, deps Dependencies) ([]port.Step, error) {
	if deps.Database == nil {
		return nil, exception.NewConfigurationError(moduleName, "export jobs require the database module", nil)
	}
	migrate, err := migrationStep(batch.SourceDBRef, deps)
	if err != nil {
		return nil, err
	}
	export, err := exportStep(batch, deps)
	if err != nil {
		return nil, err
	}
	steps := []port.Step{migrate, export}

	// Parquet output is uploaded by its writer.
	if batch.PublishRef != "" && outputFormat(batch) == FormatCSV {
		publish, err := publishStep(batch, deps)
		if err != nil {
			return nil, err
		}
		steps = append(steps, publish)
	}
	return steps, nil
}

func migrationStep(dbRef string, deps Dependencies) (port.Step, error) {
	t, err := migration.NewMigrationTasklet(deps.Database, dbRef, person.Migrations())
	if err != nil {
		return nil, err
	}
	return tasklet.NewTaskletStep(migrateStepName, t, taskletOptions(deps)...)
}

func importSteps(deps Dependencies) ([]port.Step, error) {
	step, err := tasklet.NewTaskletStep(importStepName, NewGreetingTasklet("Hello from ImportBatch"), taskletOptions(deps)...)
	if err != nil {
		return nil, err
	}
	return []port.Step{step}, nil
}

func publishStep(batch config.BatchConfig, deps Dependencies) (port.Step, error) {
	if deps.Storage == nil {
		return nil, exception.NewConfigurationError(moduleName, "publishing requires the storage module", nil)
	}
	t, err := NewPublishTasklet(deps.Storage, batch.PublishRef, "", batch.Output.File)
	if err != nil {
		return nil, err
	}
	return tasklet.NewTaskletStep(publishStepName, t, taskletOptions(deps)...)
}

func exportStep(batch config.BatchConfig, deps Dependencies) (port.Step, error) {
	conn, err := deps.Database.GetGormConnection(batch.SourceDBRef)
	if err != nil {
		return nil, err
	}
	sqlDB, err := conn.GetSQLDB()
	if err != nil {
		return nil, err
	}

	var r port.ItemReader[person.Person]
	if batch.Name == PagingItemReadBatch {
		style := reader.QuestionPlaceholder
		if conn.Type() == "postgres" {
			style = reader.DollarPlaceholder
		}
		provider, err := reader.NewQueryProvider(
			person.Columns,
			"person",
			[]reader.SortKey{{Column: "age", Order: reader.Ascending}, {Column: "id", Order: reader.Ascending}},
			reader.WithPlaceholderStyle(style),
		)
		if err != nil {
			return nil, err
		}
		r, err = reader.NewSqlPagingReader(sqlDB, "personPagingReader", provider, batch.PageSize, person.MapRow)
		if err != nil {
			return nil, err
		}
	} else {
		r, err = reader.NewSqlCursorReader(sqlDB, "personCursorReader", person.CursorQuery, nil, person.MapRow)
		if err != nil {
			return nil, err
		}
	}

	opts := chunkOptions(batch, deps)
	switch outputFormat(batch) {
	case FormatCSV:
		w, err := writer.NewFlatFileWriter(
			"personCsvWriter",
			batch.Output.File,
			person.Fields,
			writer.WithAppend(batch.Output.Append),
			writer.WithDelimiter(batch.Output.Delimiter),
		)
		if err != nil {
			return nil, err
		}
		return item.NewChunkStep[person.Person](exportStepName, r, w, nil, opts...)
	case FormatParquet:
		if deps.Storage == nil || batch.PublishRef == "" {
			return nil, exception.NewConfigurationError(moduleName, "parquet output requires app.batch.publish_ref and the storage module", nil)
		}
		storageConn, err := deps.Storage.GetConnection(batch.PublishRef)
		if err != nil {
			return nil, err
		}
		w, err := writer.NewParquetWriter(
			"personParquetWriter",
			storageConn,
			writer.ParquetWriterConfig{StorageRef: batch.PublishRef, OutputBaseDir: parquetBaseDir(batch.Output.File)},
			func(r person.Record) (string, error) { return "gender=" + r.Gender, nil },
		)
		if err != nil {
			return nil, err
		}
		return item.NewProcessingChunkStep[person.Person, person.Record](exportStepName, r, person.ToRecord, w, nil, opts...)
	case FormatTable:
		w, err := writer.NewGormWriter[person.Record]("personTableWriter", conn, writer.WithUpsert([]string{"id"}))
		if err != nil {
			return nil, err
		}
		return item.NewProcessingChunkStep[person.Person, person.Record](exportStepName, r, person.ToRecord, w, nil, opts...)
	default:
		return nil, exception.NewConfigurationError(moduleName, fmt.Sprintf("unknown output format '%s'", batch.Output.Format), nil)
	}
}

func outputFormat(batch config.BatchConfig) string {
	f := strings.ToLower(strings.TrimSpace(batch.Output.Format))
	if f == "" {
		return FormatCSV
	}
	return f
}

// parquetBaseDir strips the extension of the configured output file, so
// "out/person.parquet" becomes the object prefix "out/person".
func parquetBaseDir(file string) string {
	if file == "" {
		return "person"
	}
	return strings.TrimSuffix(file, path.Ext(file))
}

func chunkOptions(batch config.BatchConfig, deps Dependencies) []item.Option {
	opts := []item.Option{
		item.WithChunkSize(batch.ChunkSize),
		item.WithWorkers(batch.Workers),
		item.WithReadSkipLimit(batch.ReadSkipLimit),
		item.WithMetricRecorder(deps.Recorder),
		item.WithTracer(deps.Tracer),
	}
	if strings.EqualFold(batch.ReadErrorPolicy, config.ReadErrorPolicyAbsorb) {
		opts = append(opts, item.WithReadErrorPolicy(item.ReadErrorAbsorb))
	}
	for _, l := range deps.StepListeners {
		opts = append(opts, item.WithStepListener(l))
	}
	for _, l := range deps.ChunkListeners {
		opts = append(opts, item.WithChunkListener(l))
	}
	for _, l := range deps.ReadListeners {
		opts = append(opts, item.WithReadListener(l))
	}
	for _, l := range deps.WriteListeners {
		opts = append(opts, item.WithWriteListener(l))
	}
	return opts
}

func taskletOptions(deps Dependencies) []tasklet.Option {
	opts := []tasklet.Option{
		tasklet.WithMetricRecorder(deps.Recorder),
		tasklet.WithTracer(deps.Tracer),
	}
	for _, l := range deps.StepListeners {
		opts = append(opts, tasklet.WithStepListener(l))
	}
	return opts
}
