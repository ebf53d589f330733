package person_test

import (
	"context"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/example/person-export/internal/person"
)

func TestGenderLabel(t *testing.T) {
	assert.Equal(t, "male", person.GenderLabel(1))
	assert.Equal(t, "female", person.GenderLabel(2))
	assert.Equal(t, "unknown", person.GenderLabel(0))
	assert.Equal(t, "unknown", person.GenderLabel(3))
}

func TestFields(t *testing.T) {
	fields, err := person.Fields(person.Person{ID: 7, Name: "Grace", Age: 34, Gender: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"7", "Grace", "34", "female"}, fields)
}

func TestToRecord(t *testing.T) {
	r, err := person.ToRecord(context.Background(), person.Person{ID: 8, Name: "Heidi", Age: 23})
	require.NoError(t, err)
	assert.Equal(t, person.Record{ID: 8, Name: "Heidi", Age: 23, Gender: "unknown"}, r)
	assert.Equal(t, "person_export", r.TableName())
}

func TestMigrations_ProvideEveryDialect(t *testing.T) {
	for _, dir := range []string{"sqlite", "mysql", "postgres"} {
		entries, err := fs.ReadDir(person.Migrations(), dir)
		require.NoError(t, err, dir)
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		assert.ElementsMatch(t, []string{
			"1_create_person.down.sql", "1_create_person.up.sql",
			"2_seed_person.down.sql", "2_seed_person.up.sql",
		}, names, dir)
	}
}
