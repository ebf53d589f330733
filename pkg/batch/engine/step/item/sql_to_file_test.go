package item

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/component/step/reader"
	"github.com/tigerroll/chunkbatch/pkg/batch/component/step/writer"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

type person struct {
	ID     int64
	Name   string
	Age    int
	Gender int
}

func scanPerson(rows *sql.Rows) (person, error) {
	var p person
	err := rows.Scan(&p.ID, &p.Name, &p.Age, &p.Gender)
	return p, err
}

func personLine(p person) ([]string, error) {
	label := "unknown"
	switch p.Gender {
	case 1:
		label = "male"
	case 2:
		label = "female"
	}
	return []string{strconv.FormatInt(p.ID, 10), p.Name, strconv.Itoa(p.Age), label}, nil
}

// openPersonTable creates a person table; gender is stored as given so that a
// non-numeric value yields a row the mapper cannot scan.
func openPersonTable(t *testing.T, rows [][]any) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "person.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE person (id INTEGER PRIMARY KEY, name TEXT NOT NULL, age INTEGER NOT NULL, gender)`)
	require.NoError(t, err)
	for _, r := range rows {
		_, err = db.Exec(`INSERT INTO person (id, name, age, gender) VALUES (?, ?, ?, ?)`, r...)
		require.NoError(t, err)
	}
	return db
}

func pagingReader(t *testing.T, db *sql.DB, pageSize int) port.ItemReader[person] {
	t.Helper()
	provider, err := reader.NewQueryProvider("SELECT id, name, age, gender", "FROM person",
		[]reader.SortKey{{Column: "age", Order: reader.Ascending}, {Column: "id", Order: reader.Ascending}})
	require.NoError(t, err)
	r, err := reader.NewSqlPagingReader(db, "paging", provider, pageSize, scanPerson)
	require.NoError(t, err)
	return r
}

func cursorReader(t *testing.T, db *sql.DB) port.ItemReader[person] {
	t.Helper()
	r, err := reader.NewSqlCursorReader(db, "cursor", "SELECT id, name, age, gender FROM person ORDER BY age, id", nil, scanPerson)
	require.NoError(t, err)
	return r
}

func TestChunkStep_SqlSourceToFlatFile(t *testing.T) {
	db := openPersonTable(t, [][]any{{1, "A", 30, 1}, {2, "B", 25, 2}, {3, "C", 25, 1}})

	for name, newReader := range map[string]func() port.ItemReader[person]{
		"cursor": func() port.ItemReader[person] { return cursorReader(t, db) },
		"paging": func() port.ItemReader[person] { return pagingReader(t, db, 2) },
	} {
		t.Run(name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "person.csv")
			w, err := writer.NewFlatFileWriter[person]("csv", out, personLine)
			require.NoError(t, err)
			step, err := NewChunkStep[person]("exportStep", newReader(), w, nil, WithChunkSize(2), WithWorkers(4))
			require.NoError(t, err)

			res := step.Execute(context.Background(), newExecution("exportStep"))

			require.NoError(t, res.Err)
			assert.Equal(t, model.BatchStatusCompleted, res.Status)
			assert.Equal(t, 2, res.CommitCount)
			assert.Equal(t, 3, res.WriteCount)
			data, err := os.ReadFile(out)
			require.NoError(t, err)
			assert.Equal(t, "2,B,25,female\n3,C,25,male\n1,A,30,male\n", string(data))
		})
	}
}

func TestChunkStep_EmptySqlSourceCreatesEmptyFile(t *testing.T) {
	db := openPersonTable(t, nil)
	out := filepath.Join(t.TempDir(), "person.csv")
	w, err := writer.NewFlatFileWriter[person]("csv", out, personLine)
	require.NoError(t, err)
	step, err := NewChunkStep[person]("exportStep", pagingReader(t, db, 10), w, nil, WithChunkSize(2), WithWorkers(4))
	require.NoError(t, err)

	res := step.Execute(context.Background(), newExecution("exportStep"))

	require.NoError(t, res.Err)
	assert.Equal(t, model.BatchStatusCompleted, res.Status)
	assert.Zero(t, res.WriteCount)
	assert.Zero(t, res.CommitCount)
	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestChunkStep_ReadErrorAbsorbedWithSqlReaders(t *testing.T) {
	db := openPersonTable(t, [][]any{{1, "A", 30, 1}, {2, "B", 25, "x"}, {3, "C", 25, 1}, {4, "D", 41, 2}})

	for name, newReader := range map[string]func() port.ItemReader[person]{
		"cursor": func() port.ItemReader[person] { return cursorReader(t, db) },
		"paging": func() port.ItemReader[person] { return pagingReader(t, db, 2) },
	} {
		t.Run(name, func(t *testing.T) {
			w := &memWriter[person]{}
			step, err := NewChunkStep[person]("absorb", newReader(), w, nil,
				WithChunkSize(2), WithReadErrorPolicy(ReadErrorAbsorb), WithReadSkipLimit(3))
			require.NoError(t, err)

			res := step.Execute(context.Background(), newExecution("absorb"))

			require.NoError(t, res.Err)
			assert.Equal(t, model.BatchStatusCompleted, res.Status)
			assert.Equal(t, 1, res.ReadSkipCount)
			assert.Equal(t, 3, res.ReadCount)
			ids := make([]int64, 0, 3)
			for _, p := range w.flattened() {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, []int64{3, 1, 4}, ids)
		})
	}
}
