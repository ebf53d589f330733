// Package person holds the record type of the person export jobs and its mappings.
package person

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"strconv"
)

// Person is one row of the person table.
type Person struct {
	ID     int64
	Name   string
	Age    int
	Gender int
}

const (
	GenderMale   = 1
	GenderFemale = 2
)

// Columns is the select list MapRow expects, in order.
const Columns = "id, name, age, gender"

// CursorQuery reads every person ordered by age, then id.
const CursorQuery = "SELECT " + Columns + " FROM person ORDER BY age, id"

// GenderLabel renders the gender code.
func GenderLabel(code int) string {
	switch code {
	case GenderMale:
		return "male"
	case GenderFemale:
		return "female"
	default:
		return "unknown"
	}
}

// MapRow scans the current row, selected with Columns.
func MapRow(rows *sql.Rows) (Person, error) {
	var p Person
	err := rows.Scan(&p.ID, &p.Name, &p.Age, &p.Gender)
	return p, err
}

// Fields renders id,name,age,genderLabel.
func Fields(p Person) ([]string, error) {
	return []string{
		strconv.FormatInt(p.ID, 10),
		p.Name,
		strconv.Itoa(p.Age),
		GenderLabel(p.Gender),
	}, nil
}

// Record is the exported form of a Person, stored in the person_export table or a Parquet file.
type Record struct {
	ID     int64  `gorm:"column:id;primaryKey;autoIncrement:false" parquet:"name=id, type=INT64"`
	Name   string `gorm:"column:name" parquet:"name=name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Age    int32  `gorm:"column:age" parquet:"name=age, type=INT32"`
	Gender string `gorm:"column:gender" parquet:"name=gender, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// TableName implements gorm's tabler.
func (Record) TableName() string { return "person_export" }

// ToRecord is the processor of the table and parquet exports.
func ToRecord(_ context.Context, p Person) (Record, error) {
	return Record{ID: p.ID, Name: p.Name, Age: int32(p.Age), Gender: GenderLabel(p.Gender)}, nil
}

//go:embed migrations
var migrations embed.FS

// Migrations returns the person schema scripts, one directory per database type.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}
