package model

import (
	"fmt"
	"time"
)

// StepExecution tracks the mutable progress of one step within a job execution.
// The step runner owns it exclusively while the step is running.
type StepExecution struct {
	ID             string
	StepName       string
	JobExecutionID string
	JobName        string
	Status         BatchStatus
	ExitStatus     ExitStatus
	StartTime      time.Time
	EndTime        *time.Time
	LastUpdated    time.Time
	ReadCount      int
	WriteCount     int
	CommitCount    int
	RollbackCount  int
	ReadSkipCount  int
	Failures       []string
	Version        int

	// firstErr is the error that made the step fail; it is not persisted.
	firstErr error
}

// NewStepExecution creates a new StepExecution in the CREATED state.
func NewStepExecution(jobExecution *JobExecution, stepName string) *StepExecution {
	now := time.Now()
	se := &StepExecution{
		ID:          NewID(),
		StepName:    stepName,
		Status:      BatchStatusCreated,
		ExitStatus:  ExitStatusUnknown,
		StartTime:   now,
		LastUpdated: now,
	}
	if jobExecution != nil {
		se.JobExecutionID = jobExecution.ID
		se.JobName = jobExecution.JobName
	}
	return se
}

// TransitionTo moves the step to newStatus, rejecting invalid transitions.
func (se *StepExecution) TransitionTo(newStatus BatchStatus) error {
	if !isValidTransition(se.Status, newStatus) {
		return fmt.Errorf("StepExecution (ID: %s): invalid state transition: %s -> %s", se.ID, se.Status, newStatus)
	}
	se.Status = newStatus
	se.LastUpdated = time.Now()
	if newStatus != BatchStatusCompleted && newStatus != BatchStatusFailed {
		se.ExitStatus = ExitStatusExecuting
	}
	return nil
}

// MarkAsOpened records that the step's reader and writer are open.
func (se *StepExecution) MarkAsOpened() error {
	return se.TransitionTo(BatchStatusOpened)
}

// MarkAsRunning records that the first unit of work has been dispatched.
func (se *StepExecution) MarkAsRunning() error {
	if se.Status == BatchStatusRunning {
		return nil
	}
	return se.TransitionTo(BatchStatusRunning)
}

// MarkAsCompleted updates the StepExecution status to COMPLETED.
func (se *StepExecution) MarkAsCompleted() error {
	if err := se.TransitionTo(BatchStatusCompleted); err != nil {
		return err
	}
	se.finish(ExitStatusCompleted)
	return nil
}

// MarkAsFailed updates the status to FAILED and keeps err as the first failure.
func (se *StepExecution) MarkAsFailed(err error) error {
	if terr := se.TransitionTo(BatchStatusFailed); terr != nil {
		return terr
	}
	if se.firstErr == nil {
		se.firstErr = err
	}
	if err != nil {
		se.Failures = append(se.Failures, err.Error())
	}
	se.finish(ExitStatusFailed)
	return nil
}

func (se *StepExecution) finish(exit ExitStatus) {
	now := time.Now()
	se.ExitStatus = exit
	se.EndTime = &now
	se.LastUpdated = now
}

// Err returns the error that failed the step, if any.
func (se *StepExecution) Err() error {
	return se.firstErr
}

// Result snapshots the terminal outcome of the step.
func (se *StepExecution) Result() StepResult {
	return StepResult{
		StepName:      se.StepName,
		Status:        se.Status,
		ReadCount:     se.ReadCount,
		WriteCount:    se.WriteCount,
		CommitCount:   se.CommitCount,
		RollbackCount: se.RollbackCount,
		ReadSkipCount: se.ReadSkipCount,
		Err:           se.firstErr,
	}
}

// StepResult is the immutable terminal outcome of one step execution.
type StepResult struct {
	StepName      string
	Status        BatchStatus
	ReadCount     int
	WriteCount    int
	CommitCount   int
	RollbackCount int
	ReadSkipCount int
	// Err is the first error encountered, nil when Status is COMPLETED.
	Err error
}

// Completed reports whether the step finished successfully.
func (r StepResult) Completed() bool {
	return r.Status == BatchStatusCompleted
}
