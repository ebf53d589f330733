package job

import (
	"go.uber.org/fx"

	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	repository "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
)

// Params collects the job's dependencies and listener groups from the fx graph.
type Params struct {
	fx.In
	Config     *config.Config
	Repository repository.JobRepository
	Database   *gormadapter.GormProvider `optional:"true"`
	Storage    storage.Provider          `optional:"true"`
	Recorder   metrics.MetricRecorder    `optional:"true"`
	Tracer     metrics.Tracer            `optional:"true"`

	JobListeners   []port.JobExecutionListener  `group:"jobListeners"`
	StepListeners  []port.StepExecutionListener `group:"stepListeners"`
	ChunkListeners []port.ChunkListener         `group:"chunkListeners"`
	ReadListeners  []port.ItemReadListener      `group:"itemReadListeners"`
	WriteListeners []port.ItemWriteListener     `group:"itemWriteListeners"`
}

// NewJob builds the configured job from Params.
func NewJob(p Params) (port.Job, error) {
	return Build(p.Config, Dependencies{
		Repository:     p.Repository,
		Database:       p.Database,
		Storage:        p.Storage,
		Recorder:       p.Recorder,
		Tracer:         p.Tracer,
		JobListeners:   p.JobListeners,
		StepListeners:  p.StepListeners,
		ChunkListeners: p.ChunkListeners,
		ReadListeners:  p.ReadListeners,
		WriteListeners: p.WriteListeners,
	})
}

// Module provides the port.Job selected by app.batch.name.
var Module = fx.Provide(NewJob)
