// Package model holds the domain types of a batch run: job parameters, job and step
// executions, their lifecycle states and the terminal StepResult.
package model

import "github.com/google/uuid"

// BatchStatus represents the lifecycle state of a job or step execution.
type BatchStatus string

const (
	// BatchStatusCreated is the initial state before any resource is acquired.
	BatchStatusCreated BatchStatus = "CREATED"
	// BatchStatusOpened means the step's source and sink are both live.
	BatchStatusOpened BatchStatus = "OPENED"
	// BatchStatusRunning means at least one unit of work is in flight.
	BatchStatusRunning BatchStatus = "RUNNING"
	// BatchStatusCompleted is terminal.
	BatchStatusCompleted BatchStatus = "COMPLETED"
	// BatchStatusFailed is terminal.
	BatchStatusFailed BatchStatus = "FAILED"
)

// String returns the string representation of the BatchStatus.
func (s BatchStatus) String() string {
	return string(s)
}

// IsFinished reports whether s is a terminal state.
func (s BatchStatus) IsFinished() bool {
	return s == BatchStatusCompleted || s == BatchStatusFailed
}

// ExitStatus is the externally reported outcome of an execution.
type ExitStatus string

const (
	ExitStatusUnknown   ExitStatus = "UNKNOWN"
	ExitStatusExecuting ExitStatus = "EXECUTING"
	ExitStatusCompleted ExitStatus = "COMPLETED"
	ExitStatusFailed    ExitStatus = "FAILED"
	ExitStatusNoop      ExitStatus = "NOOP"
)

// String returns the string representation of the ExitStatus.
func (s ExitStatus) String() string {
	return string(s)
}

// ToExitStatus maps a BatchStatus to its ExitStatus.
func (s BatchStatus) ToExitStatus() ExitStatus {
	switch s {
	case BatchStatusCompleted:
		return ExitStatusCompleted
	case BatchStatusFailed:
		return ExitStatusFailed
	case BatchStatusCreated:
		return ExitStatusUnknown
	default:
		return ExitStatusExecuting
	}
}

// validTransitions lists the allowed next states for each state.
// Terminal states have no entry.
var validTransitions = map[BatchStatus][]BatchStatus{
	BatchStatusCreated: {BatchStatusOpened, BatchStatusRunning, BatchStatusFailed},
	BatchStatusOpened:  {BatchStatusRunning, BatchStatusCompleted, BatchStatusFailed},
	BatchStatusRunning: {BatchStatusCompleted, BatchStatusFailed},
}

func isValidTransition(current, next BatchStatus) bool {
	for _, s := range validTransitions[current] {
		if s == next {
			return true
		}
	}
	return false
}

// NewID generates a new UUID string.
func NewID() string {
	return uuid.New().String()
}
