package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arwahdevops/dbtyper/internal/config"
	"github.com/arwahdevops/dbtyper/internal/metrics"
)

// Pinger is the readiness dependency; *db.Connector satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RunHTTPServer starts the HTTP server for metrics, health checks, and pprof.
// It blocks until ctx is cancelled.
func RunHTTPServer(
	ctx context.Context,
	cfg *config.Config,
	metricsStore *metrics.Store,
	dstConn Pinger, // Pass the connection for readiness checks
	logger *zap.Logger,
) {
	log := logger.Named("http-server")
	mux := newMux(cfg, metricsStore, dstConn, log)

	addr := fmt.Sprintf(":%d", cfg.MetricsPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Run server in a goroutine so it doesn't block the reconciliation run
	go func() {
		log.Info("Starting HTTP server", zap.String("address", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server ListenAndServe error", zap.Error(err))
		}
		log.Info("HTTP server stopped listening")
	}()

	// Wait for context cancellation (sent from the CLI) to initiate shutdown
	<-ctx.Done()
	log.Info("Shutting down HTTP server due to context cancellation...")

	// Attempt graceful shutdown with a timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server graceful shutdown failed", zap.Error(err))
	} else {
		log.Info("HTTP server gracefully stopped")
	}
}

func newMux(cfg *config.Config, metricsStore *metrics.Store, dstConn Pinger, log *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	// Metrics endpoint using the custom registry
	mux.Handle("/metrics", promhttp.HandlerFor(metricsStore.Registry, promhttp.HandlerOpts{}))

	// Liveness endpoint
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "OK")
	})

	// Readiness endpoint
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		var dstErr error
		if dstConn != nil {
			dstErr = dstConn.Ping(pingCtx)
		} else {
			dstErr = fmt.Errorf("destination connection not established")
		}

		if dstErr == nil {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, "Ready")
			return
		}
		log.Warn("Readiness check failed", zap.NamedError("dst_ping_error", dstErr))
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, "Not Ready: destination_db_status=%v\n", formatPingError(dstErr))
	})

	// Pprof endpoints (conditionally enabled)
	if cfg.EnablePprof {
		log.Info("Enabling pprof endpoints on /debug/pprof/")
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		log.Info("Pprof endpoints are disabled.")
	}
	return mux
}

// formatPingError provides a user-friendly status string.
func formatPingError(err error) string {
	if err == nil {
		return "OK"
	}
	return fmt.Sprintf("Error (%v)", err)
}