package typing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareSchema(t *testing.T) {
	pg, _ := NewDialect("postgres", "")
	my, _ := NewDialect("mysql", "")
	expected := []ExpectedColumn{
		{Name: "_raw_id", Type: "character varying"},
		{Name: "id", Type: "bigint"},
		{Name: "active", Type: "boolean"},
	}

	assert.Equal(t, []string{"table does not exist"}, CompareSchema(pg, expected, nil))

	match := &ObservedSchema{Columns: []ObservedColumn{
		{Name: "_RAW_ID", Type: "character varying"},
		{Name: "id", Type: "bigint"},
		{Name: "active", Type: "boolean"},
		{Name: "added_by_dba", Type: "text"},
	}}
	assert.Empty(t, CompareSchema(pg, expected, match), "unmanaged columns are ignored")

	drift := &ObservedSchema{Columns: []ObservedColumn{
		{Name: "_raw_id", Type: "character varying"},
		{Name: "id", Type: "integer"},
	}}
	assert.Equal(t, []string{
		"column id has type integer, expected bigint",
		"missing column active (expected boolean)",
	}, CompareSchema(pg, expected, drift))

	mysqlObserved := &ObservedSchema{Columns: []ObservedColumn{
		{Name: "_raw_id", Type: "varchar"},
		{Name: "id", Type: "bigint"},
		{Name: "active", Type: "tinyint"},
	}}
	mysqlExpected := []ExpectedColumn{
		{Name: "_raw_id", Type: "varchar(64)"},
		{Name: "id", Type: "bigint"},
		{Name: "active", Type: "boolean"},
	}
	assert.Empty(t, CompareSchema(my, mysqlExpected, mysqlObserved))
}
