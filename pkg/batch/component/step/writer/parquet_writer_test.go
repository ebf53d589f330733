package writer

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	pqreader "github.com/xitongsys/parquet-go/reader"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	storageconfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/config"
	localstorage "github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

type personRecord struct {
	ID     int64  `parquet:"name=id, type=INT64"`
	Name   string `parquet:"name=name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Gender string `parquet:"name=gender, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func readParquet(t *testing.T, path string) []personRecord {
	t.Helper()
	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()

	pr, err := pqreader.NewParquetReader(fr, new(personRecord), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	rows := make([]personRecord, pr.GetNumRows())
	require.NoError(t, pr.Read(&rows))
	return rows
}

func commitRecords(t *testing.T, w *ParquetWriter[personRecord], commit bool, items ...personRecord) {
	t.Helper()
	ctx := context.Background()
	tx, err := w.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, w.Write(ctx, tx, items))
	if commit {
		require.NoError(t, w.Commit(ctx, tx))
	} else {
		require.NoError(t, w.Rollback(ctx, tx))
	}
}

func TestParquetWriter_UploadsCommittedRowsPerPartition(t *testing.T) {
	ctx := context.Background()
	baseDir := t.TempDir()
	conn, err := localstorage.NewLocalAdapter(storageconfig.StorageConfig{Type: "local", BaseDir: baseDir}, "exports")
	require.NoError(t, err)

	w, err := NewParquetWriter("persons", conn, ParquetWriterConfig{OutputBaseDir: "person", CompressionType: "gzip"},
		func(p personRecord) (string, error) { return "gender=" + p.Gender, nil })
	require.NoError(t, err)
	w.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	require.NoError(t, w.Open(ctx))

	commitRecords(t, w, true, personRecord{1, "alice", "female"}, personRecord{2, "bob", "male"})
	commitRecords(t, w, false, personRecord{3, "carol", "female"})
	commitRecords(t, w, true, personRecord{4, "dana", "female"})
	require.NoError(t, w.Close(ctx))

	uploaded := w.Uploaded()
	require.Len(t, uploaded, 2)
	assert.Regexp(t, `^person/gender=female/data_20240102030405_[0-9a-f]{8}\.parquet$`, uploaded[0])
	assert.Regexp(t, `^person/gender=male/`, uploaded[1])

	female := readParquet(t, filepath.Join(baseDir, filepath.FromSlash(uploaded[0])))
	assert.Equal(t, []personRecord{{1, "alice", "female"}, {4, "dana", "female"}}, female)
	male := readParquet(t, filepath.Join(baseDir, filepath.FromSlash(uploaded[1])))
	assert.Equal(t, []personRecord{{2, "bob", "male"}}, male)
}

func TestParquetWriter_NothingCommittedUploadsNothing(t *testing.T) {
	ctx := context.Background()
	conn, err := localstorage.NewLocalAdapter(storageconfig.StorageConfig{BaseDir: t.TempDir()}, "exports")
	require.NoError(t, err)
	w, err := NewParquetWriter[personRecord]("persons", conn, ParquetWriterConfig{OutputBaseDir: "person"}, nil)
	require.NoError(t, err)
	require.NoError(t, w.Open(ctx))
	commitRecords(t, w, false, personRecord{1, "alice", "female"})
	require.NoError(t, w.Close(ctx))
	assert.Empty(t, w.Uploaded())
}

type failingUpload struct{ storage.Connection }

func (failingUpload) Name() string { return "broken" }

func (failingUpload) Upload(context.Context, string, string, io.Reader, string) error {
	return errors.New("bucket unavailable")
}

func TestParquetWriter_UploadFailureIsWriteError(t *testing.T) {
	ctx := context.Background()
	w, err := NewParquetWriter[personRecord]("persons", failingUpload{}, ParquetWriterConfig{OutputBaseDir: "person"}, nil)
	require.NoError(t, err)
	require.NoError(t, w.Open(ctx))
	commitRecords(t, w, true, personRecord{1, "alice", "female"})

	err = w.Close(ctx)
	require.Error(t, err)
	assert.True(t, exception.IsWriteError(err))
	assert.Empty(t, w.Uploaded())
}

func TestNewParquetWriterFromProperties(t *testing.T) {
	provider := storage.NewProviderFromConfigs(map[string]storageconfig.StorageConfig{
		"exports": {Type: "local", BaseDir: t.TempDir()},
	})
	t.Cleanup(func() { _ = provider.CloseAll() })

	w, err := NewParquetWriterFromProperties[personRecord]("persons", map[string]interface{}{
		"storage_ref":     "exports",
		"output_base_dir": "person",
	}, provider, nil)
	require.NoError(t, err)
	assert.Equal(t, "SNAPPY", w.config.CompressionType)

	_, err = NewParquetWriterFromProperties[personRecord]("persons", map[string]interface{}{"output_base_dir": "person"}, provider, nil)
	assert.True(t, exception.IsConfigurationError(err))

	_, err = NewParquetWriterFromProperties[personRecord]("persons", map[string]interface{}{
		"storage_ref": "exports", "output_base_dir": "person", "compression_type": "lz4",
	}, provider, nil)
	assert.True(t, exception.IsConfigurationError(err))
}
