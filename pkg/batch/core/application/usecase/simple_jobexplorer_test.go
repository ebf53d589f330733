package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/repository/inmemory"
)

func TestSimpleJobExplorer(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewInMemoryJobRepository()
	launcher := NewSimpleJobLauncher(repo, nil)
	je, err := launcher.Launch(ctx, &scriptedJob{}, params(5))
	require.NoError(t, err)
	require.NoError(t, repo.UpdateJobExecution(ctx, je))

	explorer := NewSimpleJobExplorer(repo)

	got, err := explorer.GetJobExecution(ctx, je.ID)
	require.NoError(t, err)
	assert.Equal(t, je.Status, got.Status)

	last, err := explorer.GetLastJobExecution(ctx, "exportJob", params(5))
	require.NoError(t, err)
	assert.Equal(t, je.ID, last.ID)

	_, err = explorer.GetLastJobExecution(ctx, "exportJob", params(6))
	assert.Error(t, err)

	steps, err := explorer.GetStepExecutions(ctx, je.ID)
	require.NoError(t, err)
	assert.Empty(t, steps)
}
