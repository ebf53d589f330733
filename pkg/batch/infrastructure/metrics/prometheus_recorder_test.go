package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

func newExecutions() (*model.JobExecution, *model.StepExecution) {
	je := model.NewJobExecution("instance-1", "exportJob", model.NewJobParameters())
	se := model.NewStepExecution(je, "exportStep")
	return je, se
}

func finish(start time.Time) *time.Time {
	end := start.Add(2 * time.Second)
	return &end
}

func TestPrometheusRecorder_Counters(t *testing.T) {
	ctx := context.Background()
	r := NewPrometheusRecorder()
	je, se := newExecutions()

	r.RecordJobStart(ctx, je)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobsRunning.WithLabelValues("exportJob")))

	r.RecordItemRead(ctx, se, 10)
	r.RecordItemRead(ctx, se, 3)
	r.RecordItemWrite(ctx, se, 10)
	r.RecordReadSkip(ctx, se)
	r.RecordChunkCommit(ctx, se)
	r.RecordChunkRollback(ctx, se)

	assert.Equal(t, 13.0, testutil.ToFloat64(r.stepReadCount.WithLabelValues("exportJob", "exportStep")))
	assert.Equal(t, 10.0, testutil.ToFloat64(r.stepWriteCount.WithLabelValues("exportJob", "exportStep")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stepReadSkipCount.WithLabelValues("exportJob", "exportStep")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stepCommitCount.WithLabelValues("exportJob", "exportStep")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stepRollbackCount.WithLabelValues("exportJob", "exportStep")))

	se.Status = model.BatchStatusCompleted
	se.EndTime = finish(se.StartTime)
	r.RecordStepEnd(ctx, se)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stepStatusCounter.WithLabelValues("exportJob", "exportStep", "COMPLETED")))

	je.Status = model.BatchStatusFailed
	je.EndTime = finish(je.StartTime)
	r.RecordJobEnd(ctx, je)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.jobsRunning.WithLabelValues("exportJob")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobStatusCounter.WithLabelValues("exportJob", "FAILED")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.jobDurationSeconds))
}

func TestPrometheusRecorder_Handler(t *testing.T) {
	r := NewPrometheusRecorder()
	_, se := newExecutions()
	r.RecordItemWrite(context.Background(), se, 5)
	r.RecordDuration(context.Background(), "step", time.Second, map[string]string{"status": "COMPLETED"})

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `batch_step_write_total{job_name="exportJob",step_name="exportStep"} 5`)
	assert.Contains(t, string(body), `batch_operation_duration_seconds_count{operation="step",status="COMPLETED"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
