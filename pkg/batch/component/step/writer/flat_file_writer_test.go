package writer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

type person struct {
	ID   int64
	Name string
}

func personFields(p person) ([]string, error) {
	return []string{strconv.FormatInt(p.ID, 10), p.Name}, nil
}

func writeChunk(t *testing.T, w *FlatFileWriter[person], items ...person) error {
	t.Helper()
	ctx := context.Background()
	tx, err := w.Begin(ctx)
	require.NoError(t, err)
	if err := w.Write(ctx, tx, items); err != nil {
		require.NoError(t, w.Rollback(ctx, tx))
		return err
	}
	return w.Commit(ctx, tx)
}

func TestFlatFileWriter_CommitMakesChunkVisible(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := NewFlatFileWriter("persons", path, personFields)
	require.NoError(t, err)
	require.NoError(t, w.Open(ctx))

	require.NoError(t, writeChunk(t, w, person{1, "alice"}, person{2, "bob"}))

	tx, err := w.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, w.Write(ctx, tx, []person{{3, "carol"}}))
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1,alice\n2,bob\n", string(content), "staged lines are invisible before commit")

	require.NoError(t, w.Rollback(ctx, tx))
	require.NoError(t, writeChunk(t, w, person{4, "dave"}))
	require.NoError(t, w.Close(ctx))
	require.NoError(t, w.Close(ctx))

	content, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1,alice\n2,bob\n4,dave\n", string(content))
}

func TestFlatFileWriter_TruncateAndAppend(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out.txt")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o644))

	w, err := NewFlatFileWriter("persons", path, personFields, WithDelimiter("|"))
	require.NoError(t, err)
	require.NoError(t, w.Open(ctx))
	require.NoError(t, writeChunk(t, w, person{1, "alice"}))
	require.NoError(t, w.Close(ctx))

	content, _ := os.ReadFile(path)
	assert.Equal(t, "1|alice\n", string(content))

	w, err = NewFlatFileWriter("persons", path, personFields, WithAppend(true))
	require.NoError(t, err)
	require.NoError(t, w.Open(ctx))
	require.NoError(t, writeChunk(t, w, person{2, "bob"}))
	require.NoError(t, w.Close(ctx))

	content, _ = os.ReadFile(path)
	assert.Equal(t, "1|alice\n2,bob\n", string(content))
}

func TestFlatFileWriter_SecondOpenIsConfigurationError(t *testing.T) {
	ctx := context.Background()
	w, err := NewFlatFileWriter("persons", filepath.Join(t.TempDir(), "out.csv"), personFields)
	require.NoError(t, err)
	require.NoError(t, w.Open(ctx))
	defer w.Close(ctx)

	err = w.Open(ctx)
	require.Error(t, err)
	assert.True(t, exception.IsConfigurationError(err))
}

func TestFlatFileWriter_ExtractorErrorIsWriteError(t *testing.T) {
	ctx := context.Background()
	w, err := NewFlatFileWriter("persons", filepath.Join(t.TempDir(), "out.csv"), func(p person) ([]string, error) {
		return nil, errors.New("bad record")
	})
	require.NoError(t, err)
	require.NoError(t, w.Open(ctx))
	defer w.Close(ctx)

	err = writeChunk(t, w, person{1, "alice"})
	require.Error(t, err)
	assert.True(t, exception.IsWriteError(err))
}

// failingFile fails the first WriteAt after writing part of the buffer.
type failingFile struct {
	data      []byte
	failNext  bool
	truncated int64
}

func (f *failingFile) WriteAt(b []byte, off int64) (int, error) {
	end := off + int64(len(b))
	if f.failNext {
		end = off + int64(len(b))/2
	}
	if int64(len(f.data)) < end {
		f.data = append(f.data, make([]byte, end-int64(len(f.data)))...)
	}
	n := copy(f.data[off:end], b)
	if f.failNext {
		f.failNext = false
		return n, errors.New("disk full")
	}
	return n, nil
}

func (f *failingFile) Truncate(size int64) error {
	f.truncated = size
	f.data = f.data[:size]
	return nil
}

func (f *failingFile) Sync() error  { return nil }
func (f *failingFile) Close() error { return nil }

func TestFlatFileWriter_FailedCommitTruncatesPartialChunk(t *testing.T) {
	ctx := context.Background()
	file := &failingFile{}
	w, err := NewFlatFileWriter("persons", "mem.csv", personFields)
	require.NoError(t, err)
	w.openFile = func(string, int) (fileHandle, int64, error) { return file, 0, nil }
	require.NoError(t, w.Open(ctx))

	require.NoError(t, writeChunk(t, w, person{1, "alice"}))
	file.failNext = true
	err = writeChunk(t, w, person{2, "bob"}, person{3, "carol"})
	require.Error(t, err)
	assert.True(t, exception.IsWriteError(err))
	assert.Equal(t, int64(len("1,alice\n")), file.truncated)
	assert.Equal(t, "1,alice\n", string(file.data))

	require.NoError(t, writeChunk(t, w, person{4, "dave"}))
	assert.Equal(t, "1,alice\n4,dave\n", string(file.data))
}

func TestNewFlatFileWriter_Validation(t *testing.T) {
	_, err := NewFlatFileWriter[person]("persons", "", personFields)
	assert.True(t, exception.IsConfigurationError(err))
	_, err = NewFlatFileWriter[person]("persons", "out.csv", nil)
	assert.True(t, exception.IsConfigurationError(err))
}

func TestDelimitedLineAggregator(t *testing.T) {
	assert.Equal(t, "a,b", DelimitedLineAggregator{}.Aggregate([]string{"a", "b"}))
	assert.Equal(t, "a\tb", DelimitedLineAggregator{Delimiter: "\t"}.Aggregate([]string{"a", "b"}))
}
