package logging

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.SetLogLevel("DEBUG")
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
		logger.SetLogLevel("INFO")
	})
	return &buf
}

func TestLoggingListeners(t *testing.T) {
	buf := captureLogs(t)
	ctx := context.Background()
	je := model.NewJobExecution("instance-1", "exportJob", model.NewJobParameters())
	se := model.NewStepExecution(je, "exportStep")

	NewLoggingJobListener().BeforeJob(ctx, je)
	NewLoggingStepListener().BeforeStep(ctx, se)
	NewLoggingChunkListener().BeforeChunk(ctx, se, 1)
	NewLoggingChunkListener().AfterChunk(ctx, se, 1, 10)
	NewLoggingChunkListener().AfterChunkError(ctx, se, 2, errors.New("disk full"))
	NewLoggingItemWriteListener().OnWriteError(ctx, 2, errors.New("disk full"))
	NewLoggingStepListener().AfterStep(ctx, se)
	je.Status = model.BatchStatusFailed
	je.FailedStepName = "exportStep"
	NewLoggingJobListener().AfterJob(ctx, je)

	out := buf.String()
	assert.Contains(t, out, "BeforeJob - JobName: exportJob")
	assert.Contains(t, out, "BeforeStep - StepName: exportStep")
	assert.Contains(t, out, "AfterChunk - StepName: exportStep, Chunk: 1, Items: 10")
	assert.Contains(t, out, "Chunk: 2 rolled back: disk full")
	assert.Contains(t, out, "OnWriteError - Chunk: 2")
	assert.Contains(t, out, "FailedStep: exportStep")
}

func TestLoggingItemReadListener_NamesStepFromContext(t *testing.T) {
	buf := captureLogs(t)
	se := model.NewStepExecution(nil, "exportStep")
	ctx := port.GetContextWithStepExecution(context.Background(), se)

	NewLoggingItemReadListener().OnReadError(ctx, errors.New("bad row"))
	NewLoggingItemReadListener().OnReadError(context.Background(), errors.New("orphan"))

	assert.Contains(t, buf.String(), "OnReadError - StepName: exportStep, Error: bad row")
	assert.Contains(t, buf.String(), "OnReadError - orphan")
}
