package sql

import (
	"time"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

func fromDomainJobInstance(ji *model.JobInstance) *JobInstanceEntity {
	return &JobInstanceEntity{
		ID:             ji.ID,
		JobName:        ji.JobName,
		Parameters:     ji.Parameters.Copy(),
		ParametersHash: ji.ParametersHash,
		CreateTime:     ji.CreateTime.UTC(),
		Version:        ji.Version,
	}
}

func toDomainJobInstance(entity *JobInstanceEntity) *model.JobInstance {
	return &model.JobInstance{
		ID:             entity.ID,
		JobName:        entity.JobName,
		Parameters:     entity.Parameters,
		ParametersHash: entity.ParametersHash,
		CreateTime:     entity.CreateTime,
		Version:        entity.Version,
	}
}

func fromDomainJobExecution(je *model.JobExecution) *JobExecutionEntity {
	return &JobExecutionEntity{
		ID:             je.ID,
		JobInstanceID:  je.JobInstanceID,
		JobName:        je.JobName,
		Parameters:     je.Parameters.Copy(),
		Status:         string(je.Status),
		ExitStatus:     string(je.ExitStatus),
		CreateTime:     je.CreateTime.UTC(),
		StartTime:      optionalTime(je.StartTime),
		EndTime:        utcPtr(je.EndTime),
		LastUpdated:    je.LastUpdated.UTC(),
		FailedStepName: je.FailedStepName,
		Failures:       FailureList(append([]string(nil), je.Failures...)),
		Version:        je.Version,
	}
}

func toDomainJobExecution(entity *JobExecutionEntity) *model.JobExecution {
	je := &model.JobExecution{
		ID:             entity.ID,
		JobInstanceID:  entity.JobInstanceID,
		JobName:        entity.JobName,
		Parameters:     entity.Parameters,
		Status:         model.BatchStatus(entity.Status),
		ExitStatus:     model.ExitStatus(entity.ExitStatus),
		CreateTime:     entity.CreateTime,
		EndTime:        entity.EndTime,
		LastUpdated:    entity.LastUpdated,
		FailedStepName: entity.FailedStepName,
		Failures:       []string(entity.Failures),
		Version:        entity.Version,
	}
	if entity.StartTime != nil {
		je.StartTime = *entity.StartTime
	}
	return je
}

func fromDomainStepExecution(se *model.StepExecution) *StepExecutionEntity {
	return &StepExecutionEntity{
		ID:             se.ID,
		StepName:       se.StepName,
		JobExecutionID: se.JobExecutionID,
		JobName:        se.JobName,
		Status:         string(se.Status),
		ExitStatus:     string(se.ExitStatus),
		StartTime:      se.StartTime.UTC(),
		EndTime:        utcPtr(se.EndTime),
		LastUpdated:    se.LastUpdated.UTC(),
		ReadCount:      se.ReadCount,
		WriteCount:     se.WriteCount,
		CommitCount:    se.CommitCount,
		RollbackCount:  se.RollbackCount,
		ReadSkipCount:  se.ReadSkipCount,
		Failures:       FailureList(append([]string(nil), se.Failures...)),
		Version:        se.Version,
	}
}

func toDomainStepExecution(entity *StepExecutionEntity) *model.StepExecution {
	return &model.StepExecution{
		ID:             entity.ID,
		StepName:       entity.StepName,
		JobExecutionID: entity.JobExecutionID,
		JobName:        entity.JobName,
		Status:         model.BatchStatus(entity.Status),
		ExitStatus:     model.ExitStatus(entity.ExitStatus),
		StartTime:      entity.StartTime,
		EndTime:        entity.EndTime,
		LastUpdated:    entity.LastUpdated,
		ReadCount:      entity.ReadCount,
		WriteCount:     entity.WriteCount,
		CommitCount:    entity.CommitCount,
		RollbackCount:  entity.RollbackCount,
		ReadSkipCount:  entity.ReadSkipCount,
		Failures:       []string(entity.Failures),
		Version:        entity.Version,
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
