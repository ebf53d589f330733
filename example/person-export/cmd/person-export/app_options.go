package main

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/example/person-export/internal/job"
	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	_ "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm/mysql"
	_ "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm/postgres"
	_ "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	_ "github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/gcs"
	_ "github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/local"
	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/support/incrementer"
	inframetrics "github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/metrics"
	"github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/repository"
	"github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/telemetry"
	"github.com/tigerroll/chunkbatch/pkg/batch/listener"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

const exitCodeJobFailed = 1

// GetApplicationOptions builds the fx options of the person export application.
func GetApplicationOptions(appCtx context.Context, envFilePath string, embeddedConfig config.EmbeddedConfig) []fx.Option {
	return []fx.Option{
		fx.Supply(
			embeddedConfig,
			fx.Annotate(envFilePath, fx.ResultTags(`name:"envFilePath"`)),
			fx.Annotate(appCtx, fx.As(new(context.Context)), fx.ResultTags(`name:"appCtx"`)),
		),
		logger.Module,
		config.Module,
		gormadapter.Module,
		storage.Module,
		repository.Module,
		telemetry.Module,
		inframetrics.Module,
		listener.Module,
		usecase.Module,
		incrementer.Module,
		job.Module,
		fx.Invoke(applyTimezone),
		fx.Invoke(fx.Annotate(startJobExecution, fx.ParamTags("", "", "", "", "", `name:"appCtx"`))),
	}
}

func applyTimezone(cfg *config.Config) error {
	loc, err := time.LoadLocation(cfg.App.System.Timezone)
	if err != nil {
		return err
	}
	time.Local = loc
	return nil
}

// startJobExecution launches the configured job once the application has started
// and shuts the application down when it ends.
func startJobExecution(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	launcher usecase.JobLauncher,
	j port.Job,
	signaler *listener.JobCompletionSignaler,
	appCtx context.Context,
) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go runJob(appCtx, shutdowner, launcher, j, signaler)
			return nil
		},
		OnStop: func(context.Context) error {
			logger.Infof("Application is shutting down.")
			return nil
		},
	})
}

func runJob(ctx context.Context, shutdowner fx.Shutdowner, launcher usecase.JobLauncher, j port.Job, signaler *listener.JobCompletionSignaler) {
	exitCode := 0
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Panic recovered in job execution: %v", r)
			exitCode = exitCodeJobFailed
		}
		if err := shutdowner.Shutdown(fx.ExitCode(exitCode)); err != nil {
			logger.Errorf("Failed to shutdown application: %v", err)
		}
	}()

	logger.Infof("Starting job '%s'...", j.Name())
	je, err := launcher.Launch(ctx, j, model.NewJobParameters())
	if err != nil {
		logger.Errorf("Failed to launch job '%s': %v", j.Name(), err)
		exitCode = exitCodeJobFailed
		return
	}
	<-signaler.Done()
	if je.Status != model.BatchStatusCompleted {
		logger.Errorf("Job '%s' (Execution ID: %s) ended with status %s: %v", j.Name(), je.ID, je.Status, je.Failures)
		exitCode = exitCodeJobFailed
		return
	}
	logger.Infof("Job '%s' (Execution ID: %s) completed.", j.Name(), je.ID)
}
