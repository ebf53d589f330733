package inmemory

import (
	"context"
	"fmt"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
)

// SaveJobInstance persists a new JobInstance.
// It returns an error if a JobInstance with the same ID, or with the same name and parameters, already exists.
func (r *InMemoryJobRepository) SaveJobInstance(ctx context.Context, jobInstance *model.JobInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobInstances[jobInstance.ID]; exists {
		return fmt.Errorf("JobInstance with ID %s already exists", jobInstance.ID)
	}
	for _, ji := range r.jobInstances {
		if ji.JobName == jobInstance.JobName && ji.ParametersHash == jobInstance.ParametersHash {
			return fmt.Errorf("JobInstance for job '%s' with parameters %s already exists (ID: %s)", ji.JobName, jobInstance.Parameters, ji.ID)
		}
	}
	stored := *jobInstance
	stored.Parameters = jobInstance.Parameters.Copy()
	r.jobInstances[jobInstance.ID] = &stored
	return nil
}

// FindJobInstanceByJobNameAndParameters finds a JobInstance by job name and exact parameters.
func (r *InMemoryJobRepository) FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error) {
	hash, err := params.Hash()
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, ji := range r.jobInstances {
		if ji.JobName == jobName && ji.ParametersHash == hash {
			found := *ji
			found.Parameters = ji.Parameters.Copy()
			return &found, nil
		}
	}
	return nil, repository.ErrJobInstanceNotFound
}
