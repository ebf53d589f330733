package main

import (
	"context"
	_ "embed"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

//go:embed resources/application.yaml
var embeddedConfig []byte

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	envFilePath := os.Getenv("ENV_FILE_PATH")
	if envFilePath == "" {
		envFilePath = ".env"
	}

	app := fx.New(GetApplicationOptions(ctx, envFilePath, embeddedConfig)...)
	if err := app.Err(); err != nil {
		logger.Fatalf("Failed to build application: %v", err)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		logger.Fatalf("Failed to start application: %v", err)
	}

	done := <-app.Wait()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		logger.Errorf("Failed to stop application cleanly: %v", err)
	}
	_ = logger.Sync()
	os.Exit(done.ExitCode)
}
