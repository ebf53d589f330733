package writer

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// defaultBatchSize is the CreateInBatches size when none is configured.
const defaultBatchSize = 100

// GormWriter inserts each chunk into a table through gorm.
// Transactions come from the embedded connection TransactionManager, so the step can use the writer as its manager.
type GormWriter[T any] struct {
	*gormadapter.TransactionManager

	name          string
	table         string
	batchSize     int
	conflictCols  []string
	updateColumns []string
}

var (
	_ port.ItemWriter[any]  = (*GormWriter[any])(nil)
	_ tx.TransactionManager = (*GormWriter[any])(nil)
)

// GormWriterOption configures a GormWriter.
type GormWriterOption func(*gormWriterSettings)

type gormWriterSettings struct {
	table         string
	batchSize     int
	conflictCols  []string
	updateColumns []string
}

// WithTable overrides the table derived from T.
func WithTable(table string) GormWriterOption {
	return func(s *gormWriterSettings) { s.table = table }
}

// WithBatchSize sets the CreateInBatches size.
func WithBatchSize(n int) GormWriterOption {
	return func(s *gormWriterSettings) { s.batchSize = n }
}

// WithUpsert turns inserts into upserts on conflictColumns.
// An empty updateColumns updates every non-key column.
func WithUpsert(conflictColumns []string, updateColumns ...string) GormWriterOption {
	return func(s *gormWriterSettings) {
		s.conflictCols = conflictColumns
		s.updateColumns = updateColumns
	}
}

// NewGormWriter creates a new instance of GormWriter.
func NewGormWriter[T any](name string, conn *gormadapter.GormConnection, opts ...GormWriterOption) (*GormWriter[T], error) {
	if conn == nil {
		return nil, exception.NewConfigurationError("writer", fmt.Sprintf("GormWriter '%s' requires a database connection", name), nil)
	}
	s := gormWriterSettings{batchSize: defaultBatchSize}
	for _, opt := range opts {
		opt(&s)
	}
	if s.batchSize < 1 {
		return nil, exception.NewConfigurationError("writer", fmt.Sprintf("GormWriter '%s': batch size must be positive, got %d", name, s.batchSize), nil)
	}
	return &GormWriter[T]{
		TransactionManager: gormadapter.NewTransactionManager(conn),
		name:               name,
		table:              s.table,
		batchSize:          s.batchSize,
		conflictCols:       s.conflictCols,
		updateColumns:      s.updateColumns,
	}, nil
}

func (w *GormWriter[T]) Open(ctx context.Context) error {
	logger.Debugf("GormWriter '%s' opened (batch size %d).", w.name, w.batchSize)
	return nil
}

// Write stages items in the gorm transaction t.
func (w *GormWriter[T]) Write(ctx context.Context, t tx.Tx, items []T) error {
	if len(items) == 0 {
		return nil
	}
	db, err := gormadapter.TxFrom(t)
	if err != nil {
		return exception.NewWriteError("writer", fmt.Sprintf("GormWriter '%s'", w.name), err)
	}
	db = db.WithContext(ctx)
	if w.table != "" {
		db = db.Table(w.table)
	}
	if len(w.conflictCols) > 0 {
		onConflict := clause.OnConflict{}
		for _, c := range w.conflictCols {
			onConflict.Columns = append(onConflict.Columns, clause.Column{Name: c})
		}
		if len(w.updateColumns) > 0 {
			onConflict.DoUpdates = clause.AssignmentColumns(w.updateColumns)
		} else {
			onConflict.UpdateAll = true
		}
		db = db.Clauses(onConflict)
	}
	if err := db.CreateInBatches(items, w.batchSize).Error; err != nil {
		return exception.NewWriteError("writer", fmt.Sprintf("GormWriter '%s' failed to insert %d items", w.name, len(items)), err)
	}
	return nil
}

// Close does nothing; the connection belongs to its provider.
func (w *GormWriter[T]) Close(ctx context.Context) error {
	return nil
}
