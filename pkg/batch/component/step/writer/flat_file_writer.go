// Package writer provides the record sinks of the batch engine. Each sink stages a chunk
// in a transaction and makes it visible only when that transaction commits.
package writer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// FieldExtractor returns the ordered field values of a record.
type FieldExtractor[T any] func(item T) ([]string, error)

// DelimitedLineAggregator joins fields with Delimiter.
type DelimitedLineAggregator struct {
	Delimiter string
}

// Aggregate renders one line without the trailing newline.
func (a DelimitedLineAggregator) Aggregate(fields []string) string {
	d := a.Delimiter
	if d == "" {
		d = ","
	}
	return strings.Join(fields, d)
}

// fileHandle is the part of *os.File the writer uses.
type fileHandle interface {
	WriteAt(b []byte, off int64) (int, error)
	Truncate(size int64) error
	Sync() error
	Close() error
}

// FlatFileWriter writes one delimited line per record.
// It is its own tx.TransactionManager: a chunk is appended to the file only on Commit.
type FlatFileWriter[T any] struct {
	name       string
	path       string
	append     bool
	extractor  FieldExtractor[T]
	aggregator DelimitedLineAggregator
	openFile   func(path string, flag int) (fileHandle, int64, error)

	mu     sync.Mutex
	file   fileHandle
	offset int64
}

var (
	_ port.ItemWriter[any]  = (*FlatFileWriter[any])(nil)
	_ tx.TransactionManager = (*FlatFileWriter[any])(nil)
)

// FlatFileOption configures a FlatFileWriter.
type FlatFileOption func(*flatFileSettings)

type flatFileSettings struct {
	append    bool
	delimiter string
}

// WithAppend keeps the existing content of the file.
func WithAppend(append bool) FlatFileOption {
	return func(s *flatFileSettings) { s.append = append }
}

// WithDelimiter sets the field delimiter (default ",").
func WithDelimiter(delimiter string) FlatFileOption {
	return func(s *flatFileSettings) { s.delimiter = delimiter }
}

// NewFlatFileWriter creates a new instance of FlatFileWriter.
func NewFlatFileWriter[T any](name, path string, extractor FieldExtractor[T], opts ...FlatFileOption) (*FlatFileWriter[T], error) {
	if path == "" {
		return nil, exception.NewConfigurationError("writer", fmt.Sprintf("FlatFileWriter '%s' requires an output path", name), nil)
	}
	if extractor == nil {
		return nil, exception.NewConfigurationError("writer", fmt.Sprintf("FlatFileWriter '%s' requires a field extractor", name), nil)
	}
	s := flatFileSettings{delimiter: ","}
	for _, opt := range opts {
		opt(&s)
	}
	return &FlatFileWriter[T]{
		name:       name,
		path:       path,
		append:     s.append,
		extractor:  extractor,
		aggregator: DelimitedLineAggregator{Delimiter: s.delimiter},
		openFile:   openOSFile,
	}, nil
}

func openOSFile(path string, flag int) (fileHandle, int64, error) {
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

// Path returns the output file path.
func (w *FlatFileWriter[T]) Path() string { return w.path }

// Open creates or truncates the file, or keeps it in append mode.
func (w *FlatFileWriter[T]) Open(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		return exception.NewConfigurationError("writer", fmt.Sprintf("FlatFileWriter '%s' is already open on %s", w.name, w.path), nil)
	}
	flag := os.O_CREATE | os.O_WRONLY
	if !w.append {
		flag |= os.O_TRUNC
	}
	f, size, err := w.openFile(w.path, flag)
	if err != nil {
		return exception.NewConfigurationError("writer", fmt.Sprintf("failed to open %s for FlatFileWriter '%s'", w.path, w.name), err)
	}
	w.file = f
	w.offset = size
	logger.Debugf("FlatFileWriter '%s' opened %s at offset %d.", w.name, w.path, size)
	return nil
}

// fileTx stages the lines of one chunk.
type fileTx struct {
	id  string
	buf bytes.Buffer
}

func (t *fileTx) ID() string { return t.id }

// Begin starts an empty chunk transaction.
func (w *FlatFileWriter[T]) Begin(ctx context.Context) (tx.Tx, error) {
	return &fileTx{id: uuid.NewString()}, nil
}

// Write renders items into t. Nothing reaches the file until Commit.
func (w *FlatFileWriter[T]) Write(ctx context.Context, t tx.Tx, items []T) error {
	ft, ok := t.(*fileTx)
	if !ok {
		return fmt.Errorf("FlatFileWriter '%s': invalid transaction type %T", w.name, t)
	}
	for i, item := range items {
		fields, err := w.extractor(item)
		if err != nil {
			return exception.NewWriteError("writer", fmt.Sprintf("FlatFileWriter '%s': failed to extract fields of item %d", w.name, i), err)
		}
		ft.buf.WriteString(w.aggregator.Aggregate(fields))
		ft.buf.WriteByte('\n')
	}
	return nil
}

// Commit appends the staged lines and fsyncs. On failure the file is cut back to the last committed offset.
func (w *FlatFileWriter[T]) Commit(ctx context.Context, t tx.Tx) error {
	ft, ok := t.(*fileTx)
	if !ok {
		return fmt.Errorf("FlatFileWriter '%s': invalid transaction type %T", w.name, t)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return fmt.Errorf("FlatFileWriter '%s' is not open", w.name)
	}

	n, err := w.file.WriteAt(ft.buf.Bytes(), w.offset)
	if err == nil {
		err = w.file.Sync()
	}
	if err != nil {
		if terr := w.file.Truncate(w.offset); terr != nil {
			logger.Errorf("FlatFileWriter '%s': failed to truncate %s back to %d: %v", w.name, w.path, w.offset, terr)
		}
		return exception.NewWriteError("writer", fmt.Sprintf("FlatFileWriter '%s': failed to commit %d bytes", w.name, ft.buf.Len()), err)
	}
	w.offset += int64(n)
	ft.buf.Reset()
	return nil
}

// Rollback discards the staged lines.
func (w *FlatFileWriter[T]) Rollback(ctx context.Context, t tx.Tx) error {
	if ft, ok := t.(*fileTx); ok {
		ft.buf.Reset()
	}
	return nil
}

// Close closes the file. Calling Close more than once is safe.
func (w *FlatFileWriter[T]) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
