package db

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/arwahdevops/dbtyper/internal/logger"
	"github.com/arwahdevops/dbtyper/internal/typing"
)

func openSQLite(t *testing.T) *Connector {
	t.Helper()
	log := zaptest.NewLogger(t)
	logger.Log = log
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", filepath.Join(t.TempDir(), "exec.db"))
	c, err := New("sqlite", dsn, logger.NewGormLogger(log, false))
	require.NoError(t, err)
	require.NoError(t, c.Optimize(4, 0))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func count(t *testing.T, c *Connector, table string) int64 {
	t.Helper()
	rows, err := c.Query(context.Background(), "SELECT COUNT(*) AS n FROM "+table)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.IsType(t, int64(0), rows[0]["n"])
	return rows[0]["n"].(int64)
}

func TestNewUnsupportedDialect(t *testing.T) {
	_, err := New("oracle", "", nil)
	assert.EqualError(t, err, "unsupported dialect: oracle")
}

func TestExecuteCommitsEachTransaction(t *testing.T) {
	c := openSQLite(t)
	ctx := context.Background()

	require.NoError(t, c.Execute(ctx, typing.Of("CREATE TABLE t (v INTEGER NOT NULL)")))
	require.NoError(t, c.Execute(ctx, typing.Concat(
		typing.Of("INSERT INTO t VALUES (1)", "INSERT INTO t VALUES (2)"),
		typing.Of("INSERT INTO t VALUES (3)"),
	)))
	assert.Equal(t, int64(3), count(t, c, "t"))
}

func TestExecuteRollsBackFailedTransaction(t *testing.T) {
	c := openSQLite(t)
	ctx := context.Background()
	require.NoError(t, c.Execute(ctx, typing.Of("CREATE TABLE t (v INTEGER NOT NULL)")))

	err := c.Execute(ctx, typing.Concat(
		typing.Of("INSERT INTO t VALUES (1)"),
		typing.Of("INSERT INTO t VALUES (2)", "INSERT INTO t VALUES (NULL)"),
		typing.Of("INSERT INTO t VALUES (4)"),
	))
	require.Error(t, err)

	var ee *typing.ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "INSERT INTO t VALUES (NULL)", ee.Statement)
	assert.Contains(t, err.Error(), "transaction 2 of 3")

	// the first transaction stays committed, the second rolled back, the third never ran
	assert.Equal(t, int64(1), count(t, c, "t"))
}

func TestQueryError(t *testing.T) {
	c := openSQLite(t)
	_, err := c.Query(context.Background(), "SELECT * FROM missing")
	assert.True(t, typing.IsExecutionError(err))
}

func TestQueryReturnsPlainValues(t *testing.T) {
	c := openSQLite(t)
	require.NoError(t, c.DB.Exec(`CREATE TABLE t (id INTEGER, name TEXT, blob BLOB)`).Error)
	require.NoError(t, c.DB.Exec(`INSERT INTO t VALUES (1, 'a', x'6869'), (2, NULL, NULL)`).Error)

	rows, err := c.Query(context.Background(),
		`SELECT COUNT(*) AS n, MAX(id) AS top, 'x' || 'y' AS glued, NULL AS nothing FROM t`)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0]["n"], "expression columns are not left as *interface{}")
	assert.Equal(t, int64(2), rows[0]["top"])
	assert.Equal(t, "xy", rows[0]["glued"])
	assert.Nil(t, rows[0]["nothing"])

	rows, err = c.Query(context.Background(), `SELECT id, name, blob FROM t ORDER BY id`)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0]["id"])
	assert.Equal(t, "a", rows[0]["name"])
	assert.Equal(t, "hi", rows[0]["blob"])
	assert.Nil(t, rows[1]["name"])
}

func TestPlainValue(t *testing.T) {
	var boxed any = int64(7)
	var nilBox *any
	testCases := []struct {
		name     string
		in       any
		expected any
	}{
		{"boxed interface", &boxed, int64(7)},
		{"nil pointer", nilBox, nil},
		{"nil", nil, nil},
		{"raw bytes", sql.RawBytes("abc"), "abc"},
		{"bytes", []byte("abc"), "abc"},
		{"valid null string", &sql.NullString{String: "s", Valid: true}, "s"},
		{"invalid null int", sql.NullInt64{}, nil},
		{"plain", 3.5, 3.5},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, plainValue(tc.in))
		})
	}
}

func TestPingAndStats(t *testing.T) {
	c := openSQLite(t)
	require.NoError(t, c.Ping(context.Background()))
	assert.GreaterOrEqual(t, c.OpenConnections(), 1)
}
