package cli

import (
	"context"
	"errors"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arwahdevops/dbtyper/internal/logger"
	"github.com/arwahdevops/dbtyper/internal/server"
	"github.com/arwahdevops/dbtyper/internal/typing"
)

const connectionSampleInterval = 15 * time.Second

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	var keepAlive bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Bring every selected stream's final table up to date",
		Long: `Inspect each stream, plan the steps it needs (create, migrate, soft reset,
update) and execute them. Streams run concurrently; one failing stream does
not stop the others.

Exit codes: 0 all streams synced, 1 at least one stream failed,
2 configuration or connection error, 3 nothing was processed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, rootOpts, keepAlive)
		},
	}
	cmd.Flags().BoolVar(&keepAlive, "keep-alive", false, "keep serving metrics after the run until SIGINT/SIGTERM")
	return cmd
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func runSync(cmd *cobra.Command, opts *RootOptions, keepAlive bool) error {
	ctx, stop := commandContext(cmd)
	defer stop()

	a, err := bootstrap(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.enableAudit(ctx); err != nil {
		return err
	}
	if len(a.streams) == 0 {
		return NewExitError(ExitNothingDone, "no streams selected")
	}

	// HTTP server (metrics, health, pprof) hidup selama run berlangsung
	httpCtx, stopHTTP := context.WithCancel(ctx)
	httpDone := make(chan struct{})
	if a.cfg.MetricsPort != 0 {
		go func() {
			defer close(httpDone)
			server.RunHTTPServer(httpCtx, a.cfg, a.metrics, a.conn, logger.Log)
		}()
		go a.sampleConnections(httpCtx)
	} else {
		close(httpDone)
	}
	defer func() {
		stopHTTP()
		<-httpDone
	}()

	logger.Log.Info("Starting reconciliation...", zap.Int("streams", len(a.streams)))
	results := a.reconciler.Run(ctx, a.streams)

	if a.archive != nil {
		// Flush even when ctx is cancelled; the archive documents partial runs too.
		flushCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		if _, err := a.archive.Flush(flushCtx); err != nil {
			logger.Log.Error("Failed to flush SQL audit archive", zap.Error(err))
		}
		cancel()
	}

	exitCode := processResults(results)

	if keepAlive && ctx.Err() == nil && a.cfg.MetricsPort != 0 {
		logger.Log.Info("Reconciliation completed. Waiting for shutdown signal (Ctrl+C or SIGTERM)...")
		<-ctx.Done()
	}

	switch exitCode {
	case ExitSuccess:
		return nil
	case ExitNothingDone:
		return NewExitError(exitCode, "no stream was processed")
	default:
		return NewExitError(exitCode, "one or more streams failed")
	}
}

func (a *app) sampleConnections(ctx context.Context) {
	gauge := a.metrics.DBConnections.WithLabelValues("destination")
	ticker := time.NewTicker(connectionSampleInterval)
	defer ticker.Stop()
	for {
		gauge.Set(float64(a.conn.OpenConnections()))
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// processResults logs every stream outcome and a summary, and returns the exit code.
func processResults(results map[string]typing.StreamResult) (exitCode int) {
	total := len(results)
	if total == 0 {
		logger.Log.Warn("Reconciliation finished, but no streams were processed.")
		return ExitNothingDone
	}

	names := make([]string, 0, total)
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	var succeeded, failed, skipped, withTypingErrors, softResets int
	var failedStreams []string
	for _, name := range names {
		res := results[name]
		fields := []zap.Field{
			zap.String("stream", name),
			zap.Duration("duration", res.Duration),
			zap.Stringers("steps", res.Steps),
			zap.Bool("soft_reset", res.SoftReset),
			zap.Int64("typing_error_rows", res.TypingErrorRows),
		}

		level := zap.InfoLevel
		statusMsg := "Stream sync SUCCEEDED."
		switch {
		case res.Skipped:
			skipped++
			level = zap.WarnLevel
			statusMsg = "Stream processing SKIPPED."
			fields = append(fields, zap.String("skip_reason", res.SkipReason))
		case res.Error != nil:
			failed++
			failedStreams = append(failedStreams, name)
			level = zap.ErrorLevel
			statusMsg = "Stream sync FAILED."
			fields = append(fields, zap.Error(res.Error))
			var ee *typing.ExecutionError
			if errors.As(res.Error, &ee) {
				fields = append(fields, zap.String("failed_step", ee.Step))
				if ee.Statement != "" {
					fields = append(fields, zap.String("failed_statement", logger.Truncate(ee.Statement, 2000)))
				}
			}
		default:
			succeeded++
			if res.SoftReset {
				softResets++
			}
			if res.TypingErrorRows > 0 {
				withTypingErrors++
				level = zap.WarnLevel
				statusMsg = "Stream sync SUCCEEDED with typing errors (see _meta.errors)."
			}
		}
		logger.Log.Check(level, statusMsg).Write(fields...)
	}

	logger.Log.Info("-------------------- Reconciliation Summary --------------------",
		zap.Int("total_streams_evaluated", total),
		zap.Int("streams_successful", succeeded),
		zap.Int("streams_with_typing_errors", withTypingErrors),
		zap.Int("streams_soft_reset", softResets),
		zap.Int("streams_failed", failed),
		zap.Int("streams_skipped", skipped),
	)
	if failed > 0 {
		logger.Log.Error("Overall reconciliation: COMPLETED WITH FAILURES.", zap.Strings("streams", failedStreams))
		return ExitFailure
	}
	if skipped == total {
		logger.Log.Warn("Overall reconciliation: COMPLETED, BUT ALL STREAMS WERE SKIPPED (check logs for reasons).")
		return ExitNothingDone
	}
	logger.Log.Info("Overall reconciliation: COMPLETED SUCCESSFULLY.")
	return ExitSuccess
}
