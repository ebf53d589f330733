package reader

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// SqlPagingReader reads records page by page using keyset pagination.
//
// It buffers one page and fetches the next with a "greater than the last-seen key"
// predicate once the buffer is drained. The last-seen key only moves forward. The
// sort key columns must be part of the selected columns so that their values can
// be captured from every row.
//
// Read must not be called concurrently.
type SqlPagingReader[T any] struct {
	db       *sql.DB
	name     string
	provider *QueryProvider
	pageSize int
	mapper   RowMapper[T]

	page      []pageSlot[T]
	pos       int
	lastKey   []any
	exhausted bool
	open      bool
	pagesRead int
}

// pageSlot holds either a mapped record or the error raised while mapping its row.
type pageSlot[T any] struct {
	item T
	err  error
}

// NewSqlPagingReader creates a new instance of SqlPagingReader.
func NewSqlPagingReader[T any](db *sql.DB, name string, provider *QueryProvider, pageSize int, mapper RowMapper[T]) (*SqlPagingReader[T], error) {
	switch {
	case db == nil:
		return nil, exception.NewConfigurationError("reader", fmt.Sprintf("SqlPagingReader '%s' requires a database", name), nil)
	case provider == nil:
		return nil, exception.NewConfigurationError("reader", fmt.Sprintf("SqlPagingReader '%s' requires a query provider", name), nil)
	case pageSize < 1:
		return nil, exception.NewConfigurationError("reader", fmt.Sprintf("SqlPagingReader '%s': page size must be at least 1, got %d", name, pageSize), nil)
	case mapper == nil:
		return nil, exception.NewConfigurationError("reader", fmt.Sprintf("SqlPagingReader '%s' requires a row mapper", name), nil)
	}
	return &SqlPagingReader[T]{
		db:       db,
		name:     name,
		provider: provider,
		pageSize: pageSize,
		mapper:   mapper,
	}, nil
}

// Open resets the page state and checks that the source is reachable.
func (r *SqlPagingReader[T]) Open(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return exception.NewConfigurationError("reader", fmt.Sprintf("source for SqlPagingReader '%s' is unreachable", r.name), err)
	}
	r.page = nil
	r.pos = 0
	r.lastKey = nil
	r.exhausted = false
	r.pagesRead = 0
	r.open = true
	return nil
}

// Read returns the next buffered record, fetching a new page when needed.
// A row that failed to map is reported once as a ReadError and then skipped.
func (r *SqlPagingReader[T]) Read(ctx context.Context) (T, error) {
	var zero T
	if !r.open {
		return zero, exception.NewReadError("reader", fmt.Sprintf("SqlPagingReader '%s' is not open", r.name), nil)
	}
	if r.pos >= len(r.page) {
		if r.exhausted {
			return zero, port.ErrNoMoreItems
		}
		if err := r.fetchPage(ctx); err != nil {
			return zero, err
		}
		if len(r.page) == 0 {
			return zero, port.ErrNoMoreItems
		}
	}
	slot := r.page[r.pos]
	r.pos++
	if slot.err != nil {
		return zero, slot.err
	}
	return slot.item, nil
}

func (r *SqlPagingReader[T]) fetchPage(ctx context.Context) error {
	query := r.provider.FirstPageQuery()
	args := r.provider.FirstPageArgs(r.pageSize)
	if r.lastKey != nil {
		query = r.provider.RemainingPagesQuery()
		args = r.provider.RemainingPagesArgs(r.lastKey, r.pageSize)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return exception.NewReadError("reader", fmt.Sprintf("failed to fetch page %d for SqlPagingReader '%s'", r.pagesRead+1, r.name), err)
	}
	defer rows.Close()

	keyIdx, width, err := r.sortKeyIndexes(rows)
	if err != nil {
		return err
	}

	page := make([]pageSlot[T], 0, r.pageSize)
	var lastKey []any
	for rows.Next() {
		// The key is captured first so that an unmappable row is still passed over.
		key, err := captureKey(rows, keyIdx, width)
		if err != nil {
			return exception.NewReadError("reader", fmt.Sprintf("failed to capture sort key for SqlPagingReader '%s'", r.name), err)
		}
		lastKey = key
		item, err := r.mapper(rows)
		if err != nil {
			page = append(page, pageSlot[T]{err: exception.NewReadError("reader", fmt.Sprintf("failed to map row for SqlPagingReader '%s'", r.name), err)})
			continue
		}
		page = append(page, pageSlot[T]{item: item})
	}
	if err := rows.Err(); err != nil {
		return exception.NewReadError("reader", fmt.Sprintf("row iteration failed for SqlPagingReader '%s'", r.name), err)
	}

	// Page state advances only after the whole page was read.
	r.page = page
	r.pos = 0
	r.pagesRead++
	if len(page) < r.pageSize {
		r.exhausted = true
	}
	if lastKey != nil {
		r.lastKey = lastKey
	}
	logger.Debugf("SqlPagingReader '%s': fetched page %d with %d rows.", r.name, r.pagesRead, len(page))
	return nil
}

// sortKeyIndexes locates each sort key among the result columns.
func (r *SqlPagingReader[T]) sortKeyIndexes(rows *sql.Rows) ([]int, int, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, 0, exception.NewReadError("reader", fmt.Sprintf("failed to read columns for SqlPagingReader '%s'", r.name), err)
	}
	keys := r.provider.SortKeys()
	idx := make([]int, len(keys))
	for i, k := range keys {
		idx[i] = -1
		want := unqualified(k.Column)
		for j, c := range cols {
			if strings.EqualFold(unqualified(c), want) {
				idx[i] = j
				break
			}
		}
		if idx[i] < 0 {
			return nil, 0, exception.NewConfigurationError("reader", fmt.Sprintf("sort key '%s' is not a selected column of SqlPagingReader '%s'", k.Column, r.name), nil)
		}
	}
	return idx, len(cols), nil
}

// captureKey rescans the current row to pick out the sort key values.
func captureKey(rows *sql.Rows, keyIdx []int, width int) ([]any, error) {
	vals := make([]any, width)
	dest := make([]any, width)
	for i := range vals {
		dest[i] = &vals[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}
	key := make([]any, len(keyIdx))
	for i, j := range keyIdx {
		if b, ok := vals[j].([]byte); ok {
			key[i] = string(b)
			continue
		}
		key[i] = vals[j]
	}
	return key, nil
}

func unqualified(col string) string {
	col = strings.TrimSpace(col)
	if i := strings.LastIndex(col, "."); i >= 0 {
		return col[i+1:]
	}
	return col
}

// Close releases the buffered page.
func (r *SqlPagingReader[T]) Close(ctx context.Context) error {
	r.page = nil
	r.open = false
	return nil
}

var _ port.ItemReader[any] = (*SqlPagingReader[any])(nil)
