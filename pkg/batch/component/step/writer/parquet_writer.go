package writer

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/xitongsys/parquet-go/parquet"
	pqwriter "github.com/xitongsys/parquet-go/writer"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/configbinder"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// ParquetWriterConfig holds the configuration for ParquetWriter.
type ParquetWriterConfig struct {
	// StorageRef is the name of the storage connection under app.adaptor.storage.
	StorageRef string `yaml:"storage_ref"`
	// Bucket overrides the default bucket of the connection.
	Bucket string `yaml:"bucket"`
	// OutputBaseDir is the object prefix exported files are written under (e.g. "exports/person").
	OutputBaseDir string `yaml:"output_base_dir"`
	// CompressionType is one of SNAPPY (default), GZIP or NONE.
	CompressionType string `yaml:"compression_type"`
}

// ParquetWriter buffers committed chunks and writes them as Parquet objects on Close.
// T must be a struct carrying parquet tags.
type ParquetWriter[T any] struct {
	name         string
	config       ParquetWriterConfig
	conn         storage.Connection
	codec        parquet.CompressionCodec
	partitionKey func(T) (string, error)
	now          func() time.Time

	mu        sync.Mutex
	committed map[string][]T
	rows      int64
	uploaded  []string
}

var (
	_ port.ItemWriter[any]  = (*ParquetWriter[any])(nil)
	_ tx.TransactionManager = (*ParquetWriter[any])(nil)
)

// NewParquetWriter creates a new instance of ParquetWriter.
// A nil partitionKey writes every row to a single object under OutputBaseDir.
func NewParquetWriter[T any](name string, conn storage.Connection, config ParquetWriterConfig, partitionKey func(T) (string, error)) (*ParquetWriter[T], error) {
	if conn == nil {
		return nil, exception.NewConfigurationError("writer", fmt.Sprintf("ParquetWriter '%s' requires a storage connection", name), nil)
	}
	if config.OutputBaseDir == "" {
		return nil, exception.NewConfigurationError("writer", fmt.Sprintf("ParquetWriter '%s' requires 'output_base_dir'", name), nil)
	}
	if config.CompressionType == "" {
		config.CompressionType = "SNAPPY"
	}
	codec, err := getCompressionCodec(config.CompressionType)
	if err != nil {
		return nil, exception.NewConfigurationError("writer", fmt.Sprintf("ParquetWriter '%s'", name), err)
	}
	return &ParquetWriter[T]{
		name:         name,
		config:       config,
		conn:         conn,
		codec:        codec,
		partitionKey: partitionKey,
		now:          time.Now,
		committed:    make(map[string][]T),
	}, nil
}

// NewParquetWriterFromProperties decodes properties into a ParquetWriterConfig
// and resolves its storage_ref through provider.
func NewParquetWriterFromProperties[T any](name string, properties map[string]interface{}, provider storage.Provider, partitionKey func(T) (string, error)) (*ParquetWriter[T], error) {
	var config ParquetWriterConfig
	if err := configbinder.Bind(properties, &config); err != nil {
		return nil, exception.NewConfigurationError("writer", fmt.Sprintf("failed to decode ParquetWriter properties for '%s'", name), err)
	}
	if config.StorageRef == "" {
		return nil, exception.NewConfigurationError("writer", fmt.Sprintf("ParquetWriter '%s' requires 'storage_ref'", name), nil)
	}
	conn, err := provider.GetConnection(config.StorageRef)
	if err != nil {
		return nil, err
	}
	return NewParquetWriter(name, conn, config, partitionKey)
}

// Uploaded returns the object names written by the last Close.
func (w *ParquetWriter[T]) Uploaded() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.uploaded...)
}

func (w *ParquetWriter[T]) Open(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.committed = make(map[string][]T)
	w.rows = 0
	w.uploaded = nil
	logger.Debugf("ParquetWriter '%s' opened. Target storage: %s, base directory: %s", w.name, w.conn.Name(), w.config.OutputBaseDir)
	return nil
}

// parquetTx stages the rows of one chunk by partition.
type parquetTx[T any] struct {
	id     string
	staged map[string][]T
	count  int64
}

func (t *parquetTx[T]) ID() string { return t.id }

// Begin starts a chunk transaction with no staged partitions.
func (w *ParquetWriter[T]) Begin(ctx context.Context) (tx.Tx, error) {
	return &parquetTx[T]{id: uuid.NewString(), staged: make(map[string][]T)}, nil
}

func (w *ParquetWriter[T]) txOf(t tx.Tx) (*parquetTx[T], error) {
	pt, ok := t.(*parquetTx[T])
	if !ok {
		return nil, fmt.Errorf("ParquetWriter '%s': invalid transaction type %T", w.name, t)
	}
	return pt, nil
}

func (w *ParquetWriter[T]) Write(ctx context.Context, t tx.Tx, items []T) error {
	pt, err := w.txOf(t)
	if err != nil {
		return err
	}
	for _, item := range items {
		key := ""
		if w.partitionKey != nil {
			if key, err = w.partitionKey(item); err != nil {
				return exception.NewWriteError("writer", fmt.Sprintf("failed to get partition key for item in ParquetWriter '%s'", w.name), err)
			}
		}
		pt.staged[key] = append(pt.staged[key], item)
		pt.count++
	}
	return nil
}

// Commit moves the staged rows into the committed buffer.
func (w *ParquetWriter[T]) Commit(ctx context.Context, t tx.Tx) error {
	pt, err := w.txOf(t)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for key, rows := range pt.staged {
		w.committed[key] = append(w.committed[key], rows...)
	}
	w.rows += pt.count
	pt.staged = nil
	return nil
}

func (w *ParquetWriter[T]) Rollback(ctx context.Context, t tx.Tx) error {
	if pt, ok := t.(*parquetTx[T]); ok {
		pt.staged = nil
	}
	return nil
}

// Close encodes every committed partition and uploads it.
// Partitions are independent: one failing does not stop the others.
func (w *ParquetWriter[T]) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.rows == 0 {
		logger.Infof("ParquetWriter '%s': no records committed, skipping Parquet file generation.", w.name)
		return nil
	}

	keys := make([]string, 0, len(w.committed))
	for k := range w.committed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var multiErr error
	stamp := w.now().UTC().Format("20060102150405")
	for _, key := range keys {
		buf, err := w.encode(w.committed[key])
		if err != nil {
			multiErr = multierror.Append(multiErr, exception.NewWriteError("writer",
				fmt.Sprintf("ParquetWriter '%s' failed to encode partition '%s'", w.name, key), err))
			continue
		}
		objectName := path.Join(w.config.OutputBaseDir, key, fmt.Sprintf("data_%s_%s.parquet", stamp, uuid.NewString()[:8]))
		if err := w.conn.Upload(ctx, w.config.Bucket, objectName, buf, "application/octet-stream"); err != nil {
			multiErr = multierror.Append(multiErr, exception.NewWriteError("writer",
				fmt.Sprintf("ParquetWriter '%s' failed to upload '%s'", w.name, objectName), err))
			continue
		}
		w.uploaded = append(w.uploaded, objectName)
		logger.Infof("ParquetWriter '%s': uploaded %d rows to %s.", w.name, len(w.committed[key]), objectName)
	}

	w.committed = make(map[string][]T)
	w.rows = 0
	return multiErr
}

func (w *ParquetWriter[T]) encode(rows []T) (_ *bytes.Buffer, err error) {
	buf := new(bytes.Buffer)
	pw, err := pqwriter.NewParquetWriterFromWriter(buf, new(T), 1)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = w.codec
	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			return nil, err
		}
	}
	// WriteStop panics on some schema mismatches.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parquet writer panicked during WriteStop: %v", r)
		}
	}()
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	return buf, nil
}

func getCompressionCodec(compressionType string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(compressionType) {
	case "SNAPPY":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE", "":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", compressionType)
	}
}
