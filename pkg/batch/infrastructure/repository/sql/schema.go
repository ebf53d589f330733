package sql

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// FailureList is stored as a JSON array column.
type FailureList []string

// Value implements driver.Valuer.
func (f FailureList) Value() (driver.Value, error) {
	if len(f) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]string(f))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (f *FailureList) Scan(value interface{}) error {
	var b []byte
	switch v := value.(type) {
	case nil:
		*f = nil
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("FailureList: unsupported column type %T", value)
	}
	var out []string
	if err := json.Unmarshal(b, &out); err != nil {
		return err
	}
	*f = out
	return nil
}

// JobInstanceEntity is a schema model used for persistence.
type JobInstanceEntity struct {
	ID             string              `gorm:"column:id;primaryKey"`
	JobName        string              `gorm:"column:job_name"`
	Parameters     model.JobParameters `gorm:"column:parameters"`
	ParametersHash string              `gorm:"column:parameters_hash"`
	CreateTime     time.Time           `gorm:"column:create_time"`
	Version        int                 `gorm:"column:version"`
}

func (JobInstanceEntity) TableName() string {
	return "batch_job_instance"
}

// JobExecutionEntity is a schema model used for persistence.
type JobExecutionEntity struct {
	ID             string              `gorm:"column:id;primaryKey"`
	JobInstanceID  string              `gorm:"column:job_instance_id"`
	JobName        string              `gorm:"column:job_name"`
	Parameters     model.JobParameters `gorm:"column:parameters"`
	Status         string              `gorm:"column:status"`
	ExitStatus     string              `gorm:"column:exit_status"`
	CreateTime     time.Time           `gorm:"column:create_time"`
	StartTime      *time.Time          `gorm:"column:start_time"`
	EndTime        *time.Time          `gorm:"column:end_time"`
	LastUpdated    time.Time           `gorm:"column:last_updated"`
	FailedStepName string              `gorm:"column:failed_step_name"`
	Failures       FailureList         `gorm:"column:failures"`
	Version        int                 `gorm:"column:version"`
}

func (JobExecutionEntity) TableName() string {
	return "batch_job_execution"
}

// StepExecutionEntity is a schema model used for persistence.
type StepExecutionEntity struct {
	ID             string      `gorm:"column:id;primaryKey"`
	StepName       string      `gorm:"column:step_name"`
	JobExecutionID string      `gorm:"column:job_execution_id"`
	JobName        string      `gorm:"column:job_name"`
	Status         string      `gorm:"column:status"`
	ExitStatus     string      `gorm:"column:exit_status"`
	StartTime      time.Time   `gorm:"column:start_time"`
	EndTime        *time.Time  `gorm:"column:end_time"`
	LastUpdated    time.Time   `gorm:"column:last_updated"`
	ReadCount      int         `gorm:"column:read_count"`
	WriteCount     int         `gorm:"column:write_count"`
	CommitCount    int         `gorm:"column:commit_count"`
	RollbackCount  int         `gorm:"column:rollback_count"`
	ReadSkipCount  int         `gorm:"column:read_skip_count"`
	Failures       FailureList `gorm:"column:failures"`
	Version        int         `gorm:"column:version"`
}

func (StepExecutionEntity) TableName() string {
	return "batch_step_execution"
}
