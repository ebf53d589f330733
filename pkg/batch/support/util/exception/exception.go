// Package exception provides the error taxonomy of the batch framework.
// Every error raised by readers, writers and step runners is a *BatchError carrying
// the module it came from and a Kind that tells the step runner how to react.
package exception

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
)

// Kind classifies a BatchError.
type Kind int

const (
	// KindUnknown is used for errors that have not been classified.
	KindUnknown Kind = iota
	// KindConfiguration marks invalid wiring detected before any record is processed,
	// such as an empty sort key set or an unreachable source or sink at open time.
	KindConfiguration
	// KindRead marks a failure while fetching records from a source.
	KindRead
	// KindWrite marks a failure while staging or committing a chunk to a sink.
	KindWrite
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "ConfigurationError"
	case KindRead:
		return "ReadError"
	case KindWrite:
		return "WriteError"
	default:
		return "UnknownError"
	}
}

// errorRegistry maps configuration-visible names to sentinel errors.
var errorRegistry = make(map[string]error)

var registryMutex sync.RWMutex

// RegisterErrorType registers a sentinel error under name.
// It panics if name is empty or prototype is nil.
func RegisterErrorType(name string, prototype error) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if name == "" {
		panic("Error type name cannot be empty")
	}
	if prototype == nil {
		panic(fmt.Sprintf("Cannot register nil prototype for name: %s", name))
	}
	errorRegistry[name] = prototype
}

// IsErrorTypeRegistered checks if the specified error type name is registered in the registry.
func IsErrorTypeRegistered(name string) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	_, ok := errorRegistry[name]
	return ok
}

// IsErrorOfType reports whether err matches the sentinel registered under name.
func IsErrorOfType(err error, name string) bool {
	if err == nil {
		return false
	}
	registryMutex.RLock()
	target, ok := errorRegistry[name]
	registryMutex.RUnlock()
	return ok && errors.Is(err, target)
}

// BatchError is the error type raised during batch processing.
type BatchError struct {
	// Module indicates where the error occurred (e.g., "reader", "writer", "config").
	Module string
	// Message is a concise description of the error.
	Message string
	// OriginalErr is the wrapped cause.
	OriginalErr error
	// Kind classifies the error.
	Kind Kind
	// StackTrace is the stack trace at the time of the error (for debugging).
	StackTrace string

	isRetryable bool
	isSkippable bool
}

// NewBatchError creates a new unclassified BatchError.
func NewBatchError(module, message string, originalErr error, isSkippable, isRetryable bool) *BatchError {
	return &BatchError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		Kind:        KindUnknown,
		StackTrace:  captureStack(),
		isRetryable: isRetryable,
		isSkippable: isSkippable,
	}
}

// NewBatchErrorf creates a new BatchError using a format string.
// If the last argument is an error it becomes the wrapped cause and is not formatted.
func NewBatchErrorf(module, format string, a ...interface{}) *BatchError {
	var cause error
	if len(a) > 0 {
		if err, ok := a[len(a)-1].(error); ok {
			cause = err
			a = a[:len(a)-1]
		}
	}
	return NewBatchError(module, fmt.Sprintf(format, a...), cause, false, false)
}

// NewConfigurationError creates a fatal error for invalid wiring.
func NewConfigurationError(module, message string, cause error) *BatchError {
	e := NewBatchError(module, message, cause, false, false)
	e.Kind = KindConfiguration
	return e
}

// NewReadError creates an error for a failed record fetch.
// Read errors are skippable so that an absorbing read policy may continue past them.
func NewReadError(module, message string, cause error) *BatchError {
	e := NewBatchError(module, message, cause, true, false)
	e.Kind = KindRead
	return e
}

// NewWriteError creates an error for a failed chunk write or commit.
func NewWriteError(module, message string, cause error) *BatchError {
	e := NewBatchError(module, message, cause, false, false)
	e.Kind = KindWrite
	return e
}

func captureStack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the original error for errors.Unwrap.
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable returns whether this error is retryable.
func (e *BatchError) IsRetryable() bool {
	return e.isRetryable
}

// IsSkippable returns whether this error is skippable.
func (e *BatchError) IsSkippable() bool {
	return e.isSkippable
}

// IsBatchError reports whether err or anything it wraps is a *BatchError.
func IsBatchError(err error) bool {
	var be *BatchError
	return errors.As(err, &be)
}

// KindOf returns the Kind of the outermost BatchError in err's chain.
func KindOf(err error) Kind {
	var be *BatchError
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindUnknown
}

// IsConfigurationError reports whether err is classified as a configuration error.
func IsConfigurationError(err error) bool { return hasKind(err, KindConfiguration) }

// IsReadError reports whether err is classified as a read error.
func IsReadError(err error) bool { return hasKind(err, KindRead) }

// IsWriteError reports whether err is classified as a write error.
func IsWriteError(err error) bool { return hasKind(err, KindWrite) }

// hasKind walks the whole chain, so a write error wrapped by a step error still matches.
func hasKind(err error, kind Kind) bool {
	for err != nil {
		if be, ok := err.(*BatchError); ok && be.Kind == kind {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsFatal reports whether err can be neither retried nor skipped.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var be *BatchError
	if errors.As(err, &be) {
		return !be.IsRetryable() && !be.IsSkippable()
	}
	return true
}

// ExtractErrorMessage returns the Message of a BatchError, or err.Error() otherwise.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var be *BatchError
	if errors.As(err, &be) {
		return be.Message
	}
	return err.Error()
}

func init() {
	RegisterErrorType("io.EOF", io.EOF)
	RegisterErrorType("context.DeadlineExceeded", context.DeadlineExceeded)
	RegisterErrorType("context.Canceled", context.Canceled)
	RegisterErrorType("sql.ErrNoRows", sql.ErrNoRows)
}
