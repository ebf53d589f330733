package test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
)

// RunJobRepositoryContract checks the behaviour every repository.JobRepository must share.
// newRepo must return an empty repository; it is called once per subtest.
func RunJobRepositoryContract(t *testing.T, newRepo func(t *testing.T) repository.JobRepository) {
	ctx := context.Background()

	t.Run("instance lookup by name and parameters", func(t *testing.T) {
		repo := newRepo(t)
		params := NewTestJobParameters(map[string]interface{}{"run.id": int64(10), "file": "out.csv"})
		ji := NewTestJobInstance("exportJob", params)
		require.NoError(t, repo.SaveJobInstance(ctx, ji))

		same := NewTestJobParameters(map[string]interface{}{"file": "out.csv", "run.id": int64(10)})
		found, err := repo.FindJobInstanceByJobNameAndParameters(ctx, "exportJob", same)
		require.NoError(t, err)
		assert.Equal(t, ji.ID, found.ID)
		assert.Equal(t, ji.ParametersHash, found.ParametersHash)

		other := NewTestJobParameters(map[string]interface{}{"run.id": int64(11), "file": "out.csv"})
		_, err = repo.FindJobInstanceByJobNameAndParameters(ctx, "exportJob", other)
		assert.True(t, errors.Is(err, repository.ErrJobInstanceNotFound))

		_, err = repo.FindJobInstanceByJobNameAndParameters(ctx, "otherJob", params)
		assert.True(t, errors.Is(err, repository.ErrJobInstanceNotFound))
	})

	t.Run("duplicate instance is rejected", func(t *testing.T) {
		repo := newRepo(t)
		params := NewTestJobParameters(map[string]interface{}{"run.id": int64(1)})
		require.NoError(t, repo.SaveJobInstance(ctx, NewTestJobInstance("exportJob", params)))
		assert.Error(t, repo.SaveJobInstance(ctx, NewTestJobInstance("exportJob", params)))
	})

	t.Run("execution lifecycle", func(t *testing.T) {
		repo := newRepo(t)
		ji := NewTestJobInstance("exportJob", NewTestJobParameters(map[string]interface{}{"run.id": int64(1)}))
		require.NoError(t, repo.SaveJobInstance(ctx, ji))

		_, err := repo.FindLatestJobExecution(ctx, ji.ID)
		assert.True(t, errors.Is(err, repository.ErrJobExecutionNotFound))

		first := NewTestJobExecution(ji)
		require.NoError(t, repo.SaveJobExecution(ctx, first))
		require.NoError(t, first.MarkAsStarted())
		require.NoError(t, repo.UpdateJobExecution(ctx, first))
		require.NoError(t, first.MarkAsFailed("exportStep", errors.New("disk full")))
		require.NoError(t, repo.UpdateJobExecution(ctx, first))

		time.Sleep(5 * time.Millisecond)
		second := NewTestJobExecution(ji)
		require.NoError(t, repo.SaveJobExecution(ctx, second))

		latest, err := repo.FindLatestJobExecution(ctx, ji.ID)
		require.NoError(t, err)
		assert.Equal(t, second.ID, latest.ID)
		assert.Equal(t, model.BatchStatusCreated, latest.Status)

		loaded, err := repo.FindJobExecutionByID(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, model.BatchStatusFailed, loaded.Status)
		assert.Equal(t, model.ExitStatusFailed, loaded.ExitStatus)
		assert.Equal(t, "exportStep", loaded.FailedStepName)
		assert.Equal(t, []string{"disk full"}, loaded.Failures)
		assert.NotNil(t, loaded.EndTime)
		assert.Equal(t, int64(1), mustInt64(t, loaded.Parameters, "run.id"))

		_, err = repo.FindJobExecutionByID(ctx, "missing")
		assert.True(t, errors.Is(err, repository.ErrJobExecutionNotFound))
	})

	t.Run("stale update is rejected", func(t *testing.T) {
		repo := newRepo(t)
		ji := NewTestJobInstance("exportJob", NewTestJobParameters(map[string]interface{}{"run.id": int64(2)}))
		require.NoError(t, repo.SaveJobInstance(ctx, ji))
		je := NewTestJobExecution(ji)
		require.NoError(t, repo.SaveJobExecution(ctx, je))

		stale := *je
		require.NoError(t, repo.UpdateJobExecution(ctx, je))
		err := repo.UpdateJobExecution(ctx, &stale)
		assert.True(t, errors.Is(err, repository.ErrOptimisticLock))
	})

	t.Run("step executions", func(t *testing.T) {
		repo := newRepo(t)
		ji := NewTestJobInstance("exportJob", NewTestJobParameters(map[string]interface{}{"run.id": int64(3)}))
		require.NoError(t, repo.SaveJobInstance(ctx, ji))
		je := NewTestJobExecution(ji)
		require.NoError(t, repo.SaveJobExecution(ctx, je))

		export := NewTestStepExecution(je, "exportStep")
		require.NoError(t, repo.SaveStepExecution(ctx, export))
		require.NoError(t, export.MarkAsOpened())
		require.NoError(t, export.MarkAsRunning())
		export.ReadCount, export.WriteCount, export.CommitCount = 7, 7, 4
		require.NoError(t, export.MarkAsCompleted())
		require.NoError(t, repo.UpdateStepExecution(ctx, export))

		time.Sleep(5 * time.Millisecond)
		publish := NewTestStepExecution(je, "publishStep")
		require.NoError(t, repo.SaveStepExecution(ctx, publish))

		steps, err := repo.FindStepExecutionsByJobExecutionID(ctx, je.ID)
		require.NoError(t, err)
		require.Len(t, steps, 2)
		assert.Equal(t, "exportStep", steps[0].StepName)
		assert.Equal(t, model.BatchStatusCompleted, steps[0].Status)
		assert.Equal(t, 7, steps[0].WriteCount)
		assert.Equal(t, 4, steps[0].CommitCount)
		assert.Equal(t, "publishStep", steps[1].StepName)

		loaded, err := repo.FindJobExecutionByID(ctx, je.ID)
		require.NoError(t, err)
		assert.Len(t, loaded.StepExecutions, 2)

		missing := NewTestStepExecution(je, "ghost")
		assert.True(t, errors.Is(repo.UpdateStepExecution(ctx, missing), repository.ErrStepExecutionNotFound))
	})
}

func mustInt64(t *testing.T, params model.JobParameters, key string) int64 {
	t.Helper()
	v, ok := params.GetInt64(key)
	require.True(t, ok, "parameter %s", key)
	return v
}
