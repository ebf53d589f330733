package inmemory

import (
	"context"
	"fmt"
	"sort"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
)

// SaveStepExecution persists a new StepExecution.
func (r *InMemoryJobRepository) SaveStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.stepExecutions[stepExecution.ID]; exists {
		return fmt.Errorf("StepExecution with ID %s already exists", stepExecution.ID)
	}
	if _, exists := r.jobExecutions[stepExecution.JobExecutionID]; !exists {
		return fmt.Errorf("StepExecution %s refers to unknown JobExecution %s: %w", stepExecution.ID, stepExecution.JobExecutionID, repository.ErrJobExecutionNotFound)
	}
	cp := *stepExecution
	cp.Failures = append([]string(nil), stepExecution.Failures...)
	r.stepExecutions[stepExecution.ID] = &cp
	return nil
}

// UpdateStepExecution updates an existing StepExecution and bumps its Version.
func (r *InMemoryJobRepository) UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.stepExecutions[stepExecution.ID]
	if !exists {
		return fmt.Errorf("StepExecution with ID %s not found for update: %w", stepExecution.ID, repository.ErrStepExecutionNotFound)
	}
	if stored.Version != stepExecution.Version {
		return fmt.Errorf("StepExecution %s: stored version %d, got %d: %w", stepExecution.ID, stored.Version, stepExecution.Version, repository.ErrOptimisticLock)
	}
	stepExecution.Version++
	cp := *stepExecution
	cp.Failures = append([]string(nil), stepExecution.Failures...)
	r.stepExecutions[stepExecution.ID] = &cp
	return nil
}

// FindStepExecutionsByJobExecutionID returns the StepExecutions of a JobExecution in start order.
func (r *InMemoryJobRepository) FindStepExecutionsByJobExecutionID(ctx context.Context, jobExecutionID string) ([]*model.StepExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.StepExecution
	for _, se := range r.stepExecutions {
		if se.JobExecutionID == jobExecutionID {
			cp := *se
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}
