package exception

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatchError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewWriteError("writer", "commit failed", cause)

	assert.Equal(t, "[writer] commit failed: disk full", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindWrite, err.Kind)
	assert.True(t, IsFatal(err))
}

func TestKindPredicates_MatchThroughWrapping(t *testing.T) {
	readErr := NewReadError("reader", "fetch failed", errors.New("conn reset"))
	wrapped := fmt.Errorf("step 'export': %w", readErr)

	assert.True(t, IsReadError(wrapped))
	assert.False(t, IsWriteError(wrapped))
	assert.False(t, IsConfigurationError(wrapped))
	assert.Equal(t, KindRead, KindOf(wrapped))
	assert.False(t, IsFatal(readErr), "read errors are skippable")
}

func TestNewBatchErrorf_TrailingErrorBecomesCause(t *testing.T) {
	cause := errors.New("bad")
	err := NewBatchErrorf("config", "unknown batch name %q", "Foo", cause)

	assert.Equal(t, `unknown batch name "Foo"`, err.Message)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, `unknown batch name "Foo"`, ExtractErrorMessage(err))
}

func TestRegistry(t *testing.T) {
	assert.True(t, IsErrorTypeRegistered("context.Canceled"))
	assert.False(t, IsErrorTypeRegistered("NoSuchError"))
	assert.True(t, IsErrorOfType(fmt.Errorf("x: %w", context.Canceled), "context.Canceled"))
	assert.Panics(t, func() { RegisterErrorType("", errors.New("x")) })
}
