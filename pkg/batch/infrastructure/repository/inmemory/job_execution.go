package inmemory

import (
	"context"
	"fmt"
	"sort"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
)

// SaveJobExecution persists a new JobExecution.
// It returns an error if a JobExecution with the same ID already exists.
func (r *InMemoryJobRepository) SaveJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobExecutions[jobExecution.ID]; exists {
		return fmt.Errorf("JobExecution with ID %s already exists", jobExecution.ID)
	}
	if _, exists := r.jobInstances[jobExecution.JobInstanceID]; !exists {
		return fmt.Errorf("JobExecution %s refers to unknown JobInstance %s: %w", jobExecution.ID, jobExecution.JobInstanceID, repository.ErrJobInstanceNotFound)
	}
	r.jobExecutions[jobExecution.ID] = cloneJobExecution(jobExecution)
	return nil
}

// UpdateJobExecution updates an existing JobExecution and bumps its Version.
// It returns repository.ErrOptimisticLock if the stored version differs from jobExecution.Version.
func (r *InMemoryJobRepository) UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.jobExecutions[jobExecution.ID]
	if !exists {
		return fmt.Errorf("JobExecution with ID %s not found for update: %w", jobExecution.ID, repository.ErrJobExecutionNotFound)
	}
	if stored.Version != jobExecution.Version {
		return fmt.Errorf("JobExecution %s: stored version %d, got %d: %w", jobExecution.ID, stored.Version, jobExecution.Version, repository.ErrOptimisticLock)
	}
	jobExecution.Version++
	r.jobExecutions[jobExecution.ID] = cloneJobExecution(jobExecution)
	return nil
}

// FindJobExecutionByID finds a JobExecution by its ID.
// It also loads and associates all related StepExecutions with the JobExecution object.
func (r *InMemoryJobRepository) FindJobExecutionByID(ctx context.Context, id string) (*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	jobExecution, ok := r.jobExecutions[id]
	if !ok {
		return nil, repository.ErrJobExecutionNotFound
	}
	return r.withSteps(jobExecution), nil
}

// FindLatestJobExecution returns the most recently created JobExecution of a JobInstance.
func (r *InMemoryJobRepository) FindLatestJobExecution(ctx context.Context, jobInstanceID string) (*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *model.JobExecution
	for _, je := range r.jobExecutions {
		if je.JobInstanceID != jobInstanceID {
			continue
		}
		if latest == nil || je.CreateTime.After(latest.CreateTime) {
			latest = je
		}
	}
	if latest == nil {
		return nil, repository.ErrJobExecutionNotFound
	}
	return r.withSteps(latest), nil
}

// withSteps returns a copy of jobExecution with its StepExecutions attached in start order.
// The caller must hold r.mu.
func (r *InMemoryJobRepository) withSteps(jobExecution *model.JobExecution) *model.JobExecution {
	out := cloneJobExecution(jobExecution)
	for _, se := range r.stepExecutions {
		if se.JobExecutionID == out.ID {
			cp := *se
			out.StepExecutions = append(out.StepExecutions, &cp)
		}
	}
	sort.SliceStable(out.StepExecutions, func(i, j int) bool {
		return out.StepExecutions[i].StartTime.Before(out.StepExecutions[j].StartTime)
	})
	return out
}

func cloneJobExecution(je *model.JobExecution) *model.JobExecution {
	out := *je
	out.Parameters = je.Parameters.Copy()
	out.Failures = append([]string(nil), je.Failures...)
	out.StepExecutions = nil
	return &out
}
