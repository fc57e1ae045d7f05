package secrets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/arwahdevops/dbtyper/internal/config"
)

func fakeVault(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/kv/data/dbtyper/dst", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "s.test", r.Header.Get("X-Vault-Token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"data":{"user":"loader","pass":"hunter2"},"metadata":{"version":3}}}`))
	})
	mux.HandleFunc("/v1/kv/data/dbtyper/nopass", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"data":{"user":"loader"},"metadata":{"version":1}}}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errors":[]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestManager(t *testing.T, addr string) *VaultManager {
	t.Helper()
	m, err := NewVaultManager(&config.Config{
		VaultEnabled:   true,
		VaultAddr:      addr,
		VaultToken:     "s.test",
		VaultMountPath: "kv",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.True(t, m.IsEnabled())
	return m
}

func TestVaultManagerDisabled(t *testing.T) {
	m, err := NewVaultManager(&config.Config{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.False(t, m.IsEnabled())

	_, err = m.GetCredentials(context.Background(), "dbtyper/dst", "", "")
	assert.Error(t, err)
}

func TestVaultManagerGetCredentials(t *testing.T) {
	m := newTestManager(t, fakeVault(t).URL)

	creds, err := m.GetCredentials(context.Background(), "dbtyper/dst", "user", "pass")
	require.NoError(t, err)
	assert.Equal(t, &Credentials{Username: "loader", Password: "hunter2", Source: "vault"}, creds)
}

func TestVaultManagerErrors(t *testing.T) {
	m := newTestManager(t, fakeVault(t).URL)
	ctx := context.Background()

	_, err := m.GetCredentials(ctx, "", "user", "pass")
	assert.ErrorContains(t, err, "cannot be empty")

	_, err = m.GetCredentials(ctx, "dbtyper/missing", "user", "pass")
	assert.Error(t, err)

	_, err = m.GetCredentials(ctx, "dbtyper/nopass", "user", "pass")
	assert.ErrorContains(t, err, "password key 'pass'")
}

func TestCredentialsFromData(t *testing.T) {
	creds, err := credentialsFromData(map[string]interface{}{"password": "x"}, "username", "password")
	require.NoError(t, err)
	assert.Equal(t, "", creds.Username)

	_, err = credentialsFromData(map[string]interface{}{"password": ""}, "username", "password")
	assert.Error(t, err)

	_, err = credentialsFromData(map[string]interface{}{"password": 42}, "username", "password")
	assert.Error(t, err)
}
