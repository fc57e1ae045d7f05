package typing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSQLComposition(t *testing.T) {
	assert.True(t, Of().IsEmpty())
	assert.True(t, Of("", "  ").IsEmpty())
	assert.True(t, Separately("").IsEmpty())

	one := Of("a", "", "b")
	assert.Equal(t, [][]string{{"a", "b"}}, one.Transactions)

	sep := Separately("a", "b")
	assert.Equal(t, [][]string{{"a"}, {"b"}}, sep.Transactions)

	all := Concat(one, SQL{}, sep)
	assert.Len(t, all.Transactions, 3)
	assert.Equal(t, 4, all.StatementCount())
}

func TestSQLString(t *testing.T) {
	s := Concat(Of("SELECT 1", "SELECT 2"), Of("SELECT 3"))
	assert.Equal(t, "BEGIN;\nSELECT 1;\nSELECT 2;\nCOMMIT;\n\nBEGIN;\nSELECT 3;\nCOMMIT;\n", s.String())
	assert.Equal(t, "", SQL{}.String())
}
