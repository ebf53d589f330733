package test

import (
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// NewTestJobParameters creates JobParameters for testing.
func NewTestJobParameters(params map[string]interface{}) model.JobParameters {
	jp := model.NewJobParameters()
	for k, v := range params {
		jp.Put(k, v)
	}
	return jp
}

// NewTestJobInstance creates a JobInstance for testing. It panics if params cannot be hashed.
func NewTestJobInstance(jobName string, params model.JobParameters) *model.JobInstance {
	ji, err := model.NewJobInstance(jobName, params)
	if err != nil {
		panic(err)
	}
	return ji
}

// NewTestJobExecution creates a JobExecution for testing.
func NewTestJobExecution(jobInstance *model.JobInstance) *model.JobExecution {
	return model.NewJobExecution(jobInstance.ID, jobInstance.JobName, jobInstance.Parameters)
}

// NewTestStepExecution creates a StepExecution for testing.
func NewTestStepExecution(jobExecution *model.JobExecution, stepName string) *model.StepExecution {
	return model.NewStepExecution(jobExecution, stepName)
}
