package model

import (
	"fmt"
	"time"

	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// JobInstance is the logical run of a job definition for one set of parameters.
type JobInstance struct {
	ID             string
	JobName        string
	Parameters     JobParameters
	ParametersHash string
	CreateTime     time.Time
	Version        int
}

// NewJobInstance creates a new instance of JobInstance.
func NewJobInstance(jobName string, params JobParameters) (*JobInstance, error) {
	params = params.Copy()
	hash, err := params.Hash()
	if err != nil {
		return nil, exception.NewBatchError("model", "failed to hash job parameters", err, false, false)
	}
	return &JobInstance{
		ID:             NewID(),
		JobName:        jobName,
		Parameters:     params,
		ParametersHash: hash,
		CreateTime:     time.Now(),
	}, nil
}

// JobExecution is one attempt at running a JobInstance.
type JobExecution struct {
	ID             string
	JobInstanceID  string
	JobName        string
	Parameters     JobParameters
	Status         BatchStatus
	ExitStatus     ExitStatus
	CreateTime     time.Time
	StartTime      time.Time
	EndTime        *time.Time
	LastUpdated    time.Time
	FailedStepName string
	Failures       []string
	StepExecutions []*StepExecution
	Version        int
}

// NewJobExecution creates a new instance of JobExecution in the CREATED state.
func NewJobExecution(jobInstanceID, jobName string, params JobParameters) *JobExecution {
	now := time.Now()
	return &JobExecution{
		ID:            NewID(),
		JobInstanceID: jobInstanceID,
		JobName:       jobName,
		Parameters:    params.Copy(),
		Status:        BatchStatusCreated,
		ExitStatus:    ExitStatusUnknown,
		CreateTime:    now,
		LastUpdated:   now,
	}
}

// TransitionTo moves the execution to newStatus, rejecting invalid transitions.
func (je *JobExecution) TransitionTo(newStatus BatchStatus) error {
	if !isValidTransition(je.Status, newStatus) {
		return fmt.Errorf("JobExecution (ID: %s): invalid state transition: %s -> %s", je.ID, je.Status, newStatus)
	}
	je.Status = newStatus
	je.LastUpdated = time.Now()
	return nil
}

// MarkAsStarted updates the JobExecution status to RUNNING.
func (je *JobExecution) MarkAsStarted() error {
	if err := je.TransitionTo(BatchStatusRunning); err != nil {
		return err
	}
	je.StartTime = je.LastUpdated
	je.ExitStatus = ExitStatusExecuting
	return nil
}

// MarkAsCompleted updates the JobExecution status to COMPLETED.
func (je *JobExecution) MarkAsCompleted() error {
	if err := je.TransitionTo(BatchStatusCompleted); err != nil {
		return err
	}
	je.finish(ExitStatusCompleted)
	return nil
}

// MarkAsFailed records the failing step and its first error and moves to FAILED.
func (je *JobExecution) MarkAsFailed(stepName string, err error) error {
	if terr := je.TransitionTo(BatchStatusFailed); terr != nil {
		return terr
	}
	je.FailedStepName = stepName
	je.AddFailureException(err)
	je.finish(ExitStatusFailed)
	return nil
}

func (je *JobExecution) finish(exit ExitStatus) {
	now := time.Now()
	je.ExitStatus = exit
	je.EndTime = &now
	je.LastUpdated = now
}

// AddFailureException records err's message once.
func (je *JobExecution) AddFailureException(err error) {
	if err == nil {
		return
	}
	msg := err.Error()
	for _, f := range je.Failures {
		if f == msg {
			return
		}
	}
	je.Failures = append(je.Failures, msg)
}

// AddStepExecution attaches se to this job execution.
func (je *JobExecution) AddStepExecution(se *StepExecution) {
	je.StepExecutions = append(je.StepExecutions, se)
}
