package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobParameters_HashIsOrderAndTypeIndependent(t *testing.T) {
	a := NewJobParameters()
	a.Put("run.id", 1)
	a.Put("file", "out.csv")

	b := NewJobParameters()
	b.Put("file", "out.csv")
	b.Put("run.id", float64(1))

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
	assert.True(t, a.Equal(b))

	b.Put("run.id", 2)
	assert.False(t, a.Equal(b))
}

func TestJobParameters_ValueScanRoundTrip(t *testing.T) {
	p := NewJobParameters()
	p.Put("run.id", "1700000000000")

	v, err := p.Value()
	require.NoError(t, err)

	var out JobParameters
	require.NoError(t, out.Scan(v))
	id, ok := out.GetInt64("run.id")
	assert.True(t, ok)
	assert.Equal(t, int64(1700000000000), id)
}

func TestStepExecution_Lifecycle(t *testing.T) {
	je := NewJobExecution("inst", "exportJob", NewJobParameters())
	se := NewStepExecution(je, "export")

	assert.Equal(t, BatchStatusCreated, se.Status)
	assert.Equal(t, "exportJob", se.JobName)
	require.NoError(t, se.MarkAsOpened())
	require.NoError(t, se.MarkAsRunning())
	require.NoError(t, se.MarkAsRunning(), "re-entering RUNNING is a no-op")
	require.NoError(t, se.MarkAsCompleted())
	assert.Equal(t, ExitStatusCompleted, se.ExitStatus)
	assert.NotNil(t, se.EndTime)

	err := se.MarkAsFailed(errors.New("late"))
	assert.Error(t, err, "terminal states are final")
	assert.Equal(t, BatchStatusCompleted, se.Status)
}

func TestStepExecution_FailedResultKeepsFirstError(t *testing.T) {
	se := NewStepExecution(nil, "export")
	require.NoError(t, se.MarkAsOpened())
	first := errors.New("first")
	require.NoError(t, se.MarkAsFailed(first))

	res := se.Result()
	assert.Equal(t, BatchStatusFailed, res.Status)
	assert.False(t, res.Completed())
	assert.Same(t, first, res.Err)
}

func TestJobExecution_MarkAsFailedRecordsStep(t *testing.T) {
	je := NewJobExecution("inst", "exportJob", NewJobParameters())
	require.NoError(t, je.MarkAsStarted())
	require.NoError(t, je.MarkAsFailed("export", errors.New("disk full")))

	assert.Equal(t, BatchStatusFailed, je.Status)
	assert.Equal(t, "export", je.FailedStepName)
	assert.Equal(t, []string{"disk full"}, je.Failures)
}

func TestJobInstanceAndExecution_KeepTheirOwnParameters(t *testing.T) {
	params := NewJobParameters()
	params.Put("run.id", int64(1))

	ji, err := NewJobInstance("exportJob", params)
	require.NoError(t, err)
	je := NewJobExecution(ji.ID, ji.JobName, params)
	hash := ji.ParametersHash

	params.Put("run.id", int64(2))
	params.Put("extra", "x")

	id, ok := ji.Parameters.GetInt64("run.id")
	require.True(t, ok)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, 1, ji.Parameters.Len())
	assert.Equal(t, 1, je.Parameters.Len())

	rehashed, err := ji.Parameters.Hash()
	require.NoError(t, err)
	assert.Equal(t, hash, rehashed)
}
