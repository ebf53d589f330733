// Package logging provides listeners that report job, step and chunk events through the framework logger.
package logging

import (
	"context"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// --- Job Execution Listener ---

type LoggingJobListener struct{}

func NewLoggingJobListener() port.JobExecutionListener {
	return &LoggingJobListener{}
}

func (l *LoggingJobListener) BeforeJob(ctx context.Context, jobExecution *model.JobExecution) {
	logger.Infof("JobExecutionListener: BeforeJob - JobName: %s, ID: %s, Params: %v", jobExecution.JobName, jobExecution.ID, jobExecution.Parameters.Params)
}

func (l *LoggingJobListener) AfterJob(ctx context.Context, jobExecution *model.JobExecution) {
	if jobExecution.Status == model.BatchStatusFailed {
		logger.Errorf("JobExecutionListener: AfterJob - JobName: %s, Status: %s, FailedStep: %s, Failures: %v",
			jobExecution.JobName, jobExecution.Status, jobExecution.FailedStepName, jobExecution.Failures)
		return
	}
	logger.Infof("JobExecutionListener: AfterJob - JobName: %s, Status: %s, ExitStatus: %s", jobExecution.JobName, jobExecution.Status, jobExecution.ExitStatus)
}

var _ port.JobExecutionListener = (*LoggingJobListener)(nil)

// --- Step Execution Listener ---

type LoggingStepListener struct{}

func NewLoggingStepListener() port.StepExecutionListener {
	return &LoggingStepListener{}
}

func (l *LoggingStepListener) BeforeStep(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Infof("StepExecutionListener: BeforeStep - StepName: %s, ID: %s", stepExecution.StepName, stepExecution.ID)
}

func (l *LoggingStepListener) AfterStep(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Infof("StepExecutionListener: AfterStep - StepName: %s, Status: %s, Read: %d, Write: %d, Commits: %d, Rollbacks: %d, ReadSkips: %d",
		stepExecution.StepName, stepExecution.Status, stepExecution.ReadCount, stepExecution.WriteCount,
		stepExecution.CommitCount, stepExecution.RollbackCount, stepExecution.ReadSkipCount)
}

var _ port.StepExecutionListener = (*LoggingStepListener)(nil)

// --- Chunk Listener ---

type LoggingChunkListener struct{}

func NewLoggingChunkListener() port.ChunkListener {
	return &LoggingChunkListener{}
}

func (l *LoggingChunkListener) BeforeChunk(ctx context.Context, stepExecution *model.StepExecution, sequence int) {
	logger.Debugf("ChunkListener: BeforeChunk - StepName: %s, Chunk: %d", stepExecution.StepName, sequence)
}

func (l *LoggingChunkListener) AfterChunk(ctx context.Context, stepExecution *model.StepExecution, sequence int, size int) {
	logger.Debugf("ChunkListener: AfterChunk - StepName: %s, Chunk: %d, Items: %d", stepExecution.StepName, sequence, size)
}

func (l *LoggingChunkListener) AfterChunkError(ctx context.Context, stepExecution *model.StepExecution, sequence int, err error) {
	logger.Warnf("ChunkListener: AfterChunkError - StepName: %s, Chunk: %d rolled back: %v", stepExecution.StepName, sequence, err)
}

var _ port.ChunkListener = (*LoggingChunkListener)(nil)

// --- Item Read Listener ---

type LoggingItemReadListener struct{}

func NewLoggingItemReadListener() port.ItemReadListener {
	return &LoggingItemReadListener{}
}

func (l *LoggingItemReadListener) OnReadError(ctx context.Context, err error) {
	if se := port.GetStepExecutionFromContext(ctx); se != nil {
		logger.Errorf("ItemReadListener: OnReadError - StepName: %s, Error: %v", se.StepName, err)
		return
	}
	logger.Errorf("ItemReadListener: OnReadError - %v", err)
}

var _ port.ItemReadListener = (*LoggingItemReadListener)(nil)

// --- Item Write Listener ---

type LoggingItemWriteListener struct{}

func NewLoggingItemWriteListener() port.ItemWriteListener {
	return &LoggingItemWriteListener{}
}

func (l *LoggingItemWriteListener) OnWriteError(ctx context.Context, sequence int, err error) {
	logger.Errorf("ItemWriteListener: OnWriteError - Chunk: %d, Error: %v", sequence, err)
}

var _ port.ItemWriteListener = (*LoggingItemWriteListener)(nil)
