package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/arwahdevops/dbtyper/internal/config"
	"github.com/arwahdevops/dbtyper/internal/metrics"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func serve(t *testing.T, dst Pinger, pprof bool, path string) *httptest.ResponseRecorder {
	t.Helper()
	store := metrics.NewMetricsStore()
	mux := newMux(&config.Config{EnablePprof: pprof}, store, dst, zaptest.NewLogger(t))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	rec := serve(t, nil, false, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK\n", rec.Body.String())
}

func TestReadyz(t *testing.T) {
	rec := serve(t, fakePinger{}, false, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, fakePinger{err: errors.New("connection refused")}, false, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")

	rec = serve(t, nil, false, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "not established")
}

func TestMetricsEndpoint(t *testing.T) {
	store := metrics.NewMetricsStore()
	store.SoftResetsTotal.WithLabelValues("public.users").Inc()
	mux := newMux(&config.Config{}, store, fakePinger{}, zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `dbtyper_soft_resets_total{stream="public.users"} 1`)
}

func TestPprofToggle(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, serve(t, nil, false, "/debug/pprof/cmdline").Code)
	assert.Equal(t, http.StatusOK, serve(t, nil, true, "/debug/pprof/cmdline").Code)
}
