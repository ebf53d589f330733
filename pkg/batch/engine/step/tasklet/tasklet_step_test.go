package tasklet

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

type countingListener struct {
	before, after int
}

func (l *countingListener) BeforeStep(context.Context, *model.StepExecution) { l.before++ }
func (l *countingListener) AfterStep(context.Context, *model.StepExecution)  { l.after++ }

func TestTaskletStep_Completes(t *testing.T) {
	var seen *model.StepExecution
	l := &countingListener{}
	step, err := NewTaskletStep("hello", port.TaskletFunc(func(ctx context.Context, se *model.StepExecution) error {
		seen = port.GetStepExecutionFromContext(ctx)
		assert.Equal(t, model.BatchStatusRunning, se.Status)
		return nil
	}), WithStepListener(l))
	require.NoError(t, err)

	se := model.NewStepExecution(nil, "hello")
	res := step.Execute(context.Background(), se)

	assert.True(t, res.Completed())
	assert.Same(t, se, seen)
	assert.Equal(t, model.ExitStatusCompleted, se.ExitStatus)
	assert.Equal(t, 1, l.before)
	assert.Equal(t, 1, l.after)
}

func TestTaskletStep_Fails(t *testing.T) {
	boom := errors.New("boom")
	l := &countingListener{}
	step, err := NewTaskletStep("fail", port.TaskletFunc(func(context.Context, *model.StepExecution) error {
		return boom
	}), WithStepListener(l))
	require.NoError(t, err)

	res := step.Execute(context.Background(), model.NewStepExecution(nil, "fail"))

	assert.Equal(t, model.BatchStatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, boom)
	assert.Equal(t, 1, l.after)
}

func TestTaskletStep_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	step, err := NewTaskletStep("cancel", port.TaskletFunc(func(context.Context, *model.StepExecution) error {
		ran = true
		return nil
	}))
	require.NoError(t, err)

	res := step.Execute(ctx, model.NewStepExecution(nil, "cancel"))

	assert.False(t, ran)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestNewTaskletStep_Validation(t *testing.T) {
	_, err := NewTaskletStep("", port.TaskletFunc(nil))
	assert.True(t, exception.IsConfigurationError(err))
	_, err = NewTaskletStep("x", nil)
	assert.True(t, exception.IsConfigurationError(err))
}
