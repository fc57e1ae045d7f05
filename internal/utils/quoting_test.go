package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteIdentifier(t *testing.T) {
	testCases := []struct {
		name      string
		inputName string
		dialect   string
		expected  string
	}{
		{"MySQL Basic", "my_table", "mysql", "`my_table`"},
		{"MySQL With Backtick", "my`table", "mysql", "`my``table`"},
		{"MySQL Upper Dialect", "t", "MySQL", "`t`"},
		{"PostgreSQL Basic", "MyTable", "postgres", `"MyTable"`},
		{"PostgreSQL With Quote", `My"Table`, "postgres", `"My""Table"`},
		{"SQLite Basic", "some_column", "sqlite", `"some_column"`},
		{"SQLite With Quote", `another"column`, "sqlite", `"another""column"`},
		{"Unknown Dialect Fallback", "fallback_id", "unknown", `"fallback_id"`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, QuoteIdentifier(tc.inputName, tc.dialect))
		})
	}
}

func TestQuoteString(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		dialect  string
		expected string
	}{
		{"Plain", "abc", "postgres", "'abc'"},
		{"Single Quote", "it's", "sqlite", "'it''s'"},
		{"Backslash Postgres", `a\b`, "postgres", `'a\b'`},
		{"Backslash MySQL", `a\b`, "mysql", `'a\\b'`},
		{"MySQL Both", `\'`, "mysql", `'\\'''`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, QuoteString(tc.input, tc.dialect))
		})
	}
}
