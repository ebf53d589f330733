// Package reader provides the SQL record sources of the batch engine: a cursor reader
// holding one forward-only result set for the whole step, and a keyset-paging reader
// that issues one bounded query per page.
package reader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// RowMapper maps the current row of rows to a record.
type RowMapper[T any] func(rows *sql.Rows) (T, error)

// SqlCursorReader reads records from one open database cursor.
// The cursor stays open from Open to Close, so a reader must not be shared between steps.
type SqlCursorReader[T any] struct {
	db     *sql.DB
	name   string
	query  string
	args   []any
	mapper RowMapper[T]
	rows   *sql.Rows
}

// NewSqlCursorReader creates a new instance of SqlCursorReader.
func NewSqlCursorReader[T any](db *sql.DB, name, query string, args []any, mapper RowMapper[T]) (*SqlCursorReader[T], error) {
	if db == nil {
		return nil, exception.NewConfigurationError("reader", fmt.Sprintf("SqlCursorReader '%s' requires a database", name), nil)
	}
	if query == "" {
		return nil, exception.NewConfigurationError("reader", fmt.Sprintf("SqlCursorReader '%s' requires a query", name), nil)
	}
	if mapper == nil {
		return nil, exception.NewConfigurationError("reader", fmt.Sprintf("SqlCursorReader '%s' requires a row mapper", name), nil)
	}
	return &SqlCursorReader[T]{
		db:     db,
		name:   name,
		query:  query,
		args:   args,
		mapper: mapper,
	}, nil
}

// Open executes the query and keeps the cursor.
func (r *SqlCursorReader[T]) Open(ctx context.Context) error {
	if r.rows != nil {
		return exception.NewConfigurationError("reader", fmt.Sprintf("SqlCursorReader '%s' is already open", r.name), nil)
	}
	rows, err := r.db.QueryContext(ctx, r.query, r.args...)
	if err != nil {
		return exception.NewConfigurationError("reader", fmt.Sprintf("failed to open cursor for SqlCursorReader '%s'", r.name), err)
	}
	r.rows = rows
	logger.Debugf("SqlCursorReader '%s': cursor opened. Query: %s", r.name, r.query)
	return nil
}

// Read advances the cursor by one row.
func (r *SqlCursorReader[T]) Read(ctx context.Context) (T, error) {
	var zero T
	if r.rows == nil {
		return zero, exception.NewReadError("reader", fmt.Sprintf("SqlCursorReader '%s' is not open", r.name), errors.New("reader not initialized"))
	}
	if err := ctx.Err(); err != nil {
		return zero, exception.NewReadError("reader", fmt.Sprintf("SqlCursorReader '%s' read cancelled", r.name), err)
	}
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return zero, exception.NewReadError("reader", fmt.Sprintf("row iteration failed for SqlCursorReader '%s'", r.name), err)
		}
		return zero, port.ErrNoMoreItems
	}
	item, err := r.mapper(r.rows)
	if err != nil {
		return zero, exception.NewReadError("reader", fmt.Sprintf("failed to map row for SqlCursorReader '%s'", r.name), err)
	}
	return item, nil
}

// Close releases the cursor.
func (r *SqlCursorReader[T]) Close(ctx context.Context) error {
	if r.rows == nil {
		return nil
	}
	err := r.rows.Close()
	r.rows = nil
	if err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("failed to close cursor for SqlCursorReader '%s'", r.name), err, false, false)
	}
	logger.Debugf("SqlCursorReader '%s': cursor closed.", r.name)
	return nil
}

var _ port.ItemReader[any] = (*SqlCursorReader[any])(nil)
