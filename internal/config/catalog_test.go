package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCatalog = `
streams:
  - namespace: shop
    name: orders
    primary_key: [id]
    deletion_marker: _deleted
    json_schema:
      type: object
      properties:
        id: {type: integer}
        name: {type: string}
  - namespace: shop
    name: events
    json_schema:
      type: object
      properties:
        payload: {type: object}
  - name: heartbeats
    sync_mode: APPEND
`

func TestParseCatalog(t *testing.T) {
	cat, err := ParseCatalog([]byte(sampleCatalog))
	require.NoError(t, err)
	require.Len(t, cat.Streams, 3)

	orders := cat.Streams[0]
	assert.Equal(t, "shop.orders", orders.Key())
	assert.Equal(t, SyncModeAppendDedup, orders.SyncMode, "a primary key implies dedup")
	assert.Equal(t, []string{"id"}, orders.PrimaryKey)
	assert.Equal(t, "_deleted", orders.DeletionMarker)
	props, ok := orders.JSONSchema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "name")

	assert.Equal(t, SyncModeAppend, cat.Streams[1].SyncMode)
	assert.Equal(t, "heartbeats", cat.Streams[2].Key())
	assert.Equal(t, SyncModeAppend, cat.Streams[2].SyncMode)
}

func TestParseCatalogErrors(t *testing.T) {
	testCases := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"empty", "streams: []", "declares no streams"},
		{"unknown key", "streams:\n  - name: a\n    primary_keys: [id]", "field primary_keys not found"},
		{"missing name", "streams:\n  - namespace: shop", "stream #1 has no name"},
		{"duplicate", "streams:\n  - {namespace: s, name: a}\n  - {namespace: s, name: a}", "stream s.a declared more than once"},
		{"bad sync mode", "streams:\n  - {name: a, sync_mode: overwrite}", `invalid sync_mode "overwrite"`},
		{"dedup without pk", "streams:\n  - {name: a, sync_mode: append_dedup}", "requires primary_key"},
		{"not yaml", "streams: [", "failed to parse catalog"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tc.doc))
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestCatalogFilter(t *testing.T) {
	cat, err := ParseCatalog([]byte(sampleCatalog))
	require.NoError(t, err)

	all, err := cat.Filter(nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	some, err := cat.Filter([]string{" heartbeats", "", "shop.orders"})
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, "heartbeats", some[0].Name)
	assert.Equal(t, "orders", some[1].Name)

	_, err = cat.Filter([]string{"shop.refunds"})
	assert.EqualError(t, err, `stream "shop.refunds" is not declared in the catalog`)
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o600))

	cat, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Len(t, cat.Streams, 3)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read catalog")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("streams: []"), 0o600))
	_, err = LoadCatalog(bad)
	assert.ErrorContains(t, err, "bad.yaml: catalog declares no streams")
}
