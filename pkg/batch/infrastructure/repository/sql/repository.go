// Package sql implements the job repository on a relational database through gorm.
// The schema is created by the embedded migrations, see Migrate.
package sql

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"gorm.io/gorm"

	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/chunkbatch/pkg/batch/component/tasklet/migration"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

const moduleName = "GormJobRepository"

//go:embed migrations
var migrationFiles embed.FS

// Migrations returns the schema scripts, one directory per database type.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// GormJobRepository implements repository.JobRepository.
type GormJobRepository struct {
	conn *gormadapter.GormConnection
}

var _ repository.JobRepository = (*GormJobRepository)(nil)

// NewGormJobRepository creates a repository on conn. Call Migrate before first use on a fresh database.
func NewGormJobRepository(conn *gormadapter.GormConnection) *GormJobRepository {
	return &GormJobRepository{conn: conn}
}

// Migrate creates or upgrades the repository tables.
func (r *GormJobRepository) Migrate(ctx context.Context) error {
	return migration.NewMigrator(r.conn).Up(ctx, Migrations(), r.conn.Type(), migration.FrameworkMigrationsTable)
}

func (r *GormJobRepository) db(ctx context.Context) *gorm.DB {
	return r.conn.Gorm().WithContext(ctx)
}

// Close is a no-op; the connection belongs to the provider.
func (r *GormJobRepository) Close() error {
	return nil
}

func (r *GormJobRepository) SaveJobInstance(ctx context.Context, instance *model.JobInstance) error {
	entity := fromDomainJobInstance(instance)
	if err := r.db(ctx).Create(entity).Error; err != nil {
		return exception.NewBatchError(moduleName, fmt.Sprintf("failed to save JobInstance (ID: %s)", instance.ID), err, false, false)
	}
	return nil
}

func (r *GormJobRepository) FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error) {
	hash, err := params.Hash()
	if err != nil {
		return nil, err
	}
	var entity JobInstanceEntity
	err = r.db(ctx).Where("job_name = ? AND parameters_hash = ?", jobName, hash).Take(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrJobInstanceNotFound
	}
	if err != nil {
		return nil, exception.NewBatchError(moduleName, fmt.Sprintf("failed to find JobInstance of job '%s'", jobName), err, false, false)
	}
	return toDomainJobInstance(&entity), nil
}

func (r *GormJobRepository) SaveJobExecution(ctx context.Context, execution *model.JobExecution) error {
	var n int64
	if err := r.db(ctx).Model(&JobInstanceEntity{}).Where("id = ?", execution.JobInstanceID).Count(&n).Error; err != nil {
		return exception.NewBatchError(moduleName, "failed to look up JobInstance", err, false, false)
	}
	if n == 0 {
		return fmt.Errorf("JobExecution %s refers to unknown JobInstance %s: %w", execution.ID, execution.JobInstanceID, repository.ErrJobInstanceNotFound)
	}
	if err := r.db(ctx).Create(fromDomainJobExecution(execution)).Error; err != nil {
		return exception.NewBatchError(moduleName, fmt.Sprintf("failed to save JobExecution (ID: %s)", execution.ID), err, false, false)
	}
	return nil
}

func (r *GormJobRepository) UpdateJobExecution(ctx context.Context, execution *model.JobExecution) error {
	entity := fromDomainJobExecution(execution)
	entity.Version++
	if err := r.updateVersioned(ctx, &JobExecutionEntity{}, entity, execution.ID, execution.Version, repository.ErrJobExecutionNotFound); err != nil {
		return err
	}
	execution.Version = entity.Version
	return nil
}

func (r *GormJobRepository) FindJobExecutionByID(ctx context.Context, id string) (*model.JobExecution, error) {
	var entity JobExecutionEntity
	err := r.db(ctx).Where("id = ?", id).Take(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrJobExecutionNotFound
	}
	if err != nil {
		return nil, exception.NewBatchError(moduleName, fmt.Sprintf("failed to find JobExecution (ID: %s)", id), err, false, false)
	}
	return r.withSteps(ctx, &entity)
}

func (r *GormJobRepository) FindLatestJobExecution(ctx context.Context, jobInstanceID string) (*model.JobExecution, error) {
	var entity JobExecutionEntity
	err := r.db(ctx).Where("job_instance_id = ?", jobInstanceID).Order("create_time DESC").Take(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrJobExecutionNotFound
	}
	if err != nil {
		return nil, exception.NewBatchError(moduleName, fmt.Sprintf("failed to find latest JobExecution of instance %s", jobInstanceID), err, false, false)
	}
	return r.withSteps(ctx, &entity)
}

func (r *GormJobRepository) withSteps(ctx context.Context, entity *JobExecutionEntity) (*model.JobExecution, error) {
	je := toDomainJobExecution(entity)
	steps, err := r.FindStepExecutionsByJobExecutionID(ctx, je.ID)
	if err != nil {
		return nil, err
	}
	je.StepExecutions = steps
	return je, nil
}

func (r *GormJobRepository) SaveStepExecution(ctx context.Context, execution *model.StepExecution) error {
	var n int64
	if err := r.db(ctx).Model(&JobExecutionEntity{}).Where("id = ?", execution.JobExecutionID).Count(&n).Error; err != nil {
		return exception.NewBatchError(moduleName, "failed to look up JobExecution", err, false, false)
	}
	if n == 0 {
		return fmt.Errorf("StepExecution %s refers to unknown JobExecution %s: %w", execution.ID, execution.JobExecutionID, repository.ErrJobExecutionNotFound)
	}
	if err := r.db(ctx).Create(fromDomainStepExecution(execution)).Error; err != nil {
		return exception.NewBatchError(moduleName, fmt.Sprintf("failed to save StepExecution (ID: %s)", execution.ID), err, false, false)
	}
	return nil
}

func (r *GormJobRepository) UpdateStepExecution(ctx context.Context, execution *model.StepExecution) error {
	entity := fromDomainStepExecution(execution)
	entity.Version++
	if err := r.updateVersioned(ctx, &StepExecutionEntity{}, entity, execution.ID, execution.Version, repository.ErrStepExecutionNotFound); err != nil {
		return err
	}
	execution.Version = entity.Version
	return nil
}

func (r *GormJobRepository) FindStepExecutionsByJobExecutionID(ctx context.Context, jobExecutionID string) ([]*model.StepExecution, error) {
	var entities []StepExecutionEntity
	if err := r.db(ctx).Where("job_execution_id = ?", jobExecutionID).Order("start_time ASC").Find(&entities).Error; err != nil {
		return nil, exception.NewBatchError(moduleName, fmt.Sprintf("failed to find StepExecutions of JobExecution %s", jobExecutionID), err, false, false)
	}
	out := make([]*model.StepExecution, 0, len(entities))
	for i := range entities {
		out = append(out, toDomainStepExecution(&entities[i]))
	}
	return out, nil
}

// updateVersioned writes every column of entity where the row still has expectedVersion.
// A missing row yields notFound, a changed version ErrOptimisticLock.
func (r *GormJobRepository) updateVersioned(ctx context.Context, table, entity interface{}, id string, expectedVersion int, notFound error) error {
	result := r.db(ctx).Model(table).
		Where("id = ? AND version = ?", id, expectedVersion).
		Select("*").
		Updates(entity)
	if result.Error != nil {
		return exception.NewBatchError(moduleName, fmt.Sprintf("failed to update %s", id), result.Error, false, false)
	}
	if result.RowsAffected == 1 {
		return nil
	}

	var n int64
	if err := r.db(ctx).Model(table).Where("id = ?", id).Count(&n).Error; err != nil {
		return exception.NewBatchError(moduleName, fmt.Sprintf("failed to check %s after a lost update", id), err, false, false)
	}
	if n == 0 {
		return fmt.Errorf("%s not found for update: %w", id, notFound)
	}
	logger.Warnf("%s: update with version %d lost against a concurrent writer.", id, expectedVersion)
	return fmt.Errorf("%s: stale version %d: %w", id, expectedVersion, repository.ErrOptimisticLock)
}
