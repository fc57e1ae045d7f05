// internal/typing/reconciler_pool.go
package typing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Prepare creates the namespaces, the state table and the cast helpers every
// stream relies on. Run it once before syncing.
func (r *Reconciler) Prepare(ctx context.Context, streams []StreamConfig) error {
	namespaces := []string{r.opts.RawNamespace}
	seen := map[string]bool{r.opts.RawNamespace: true}
	for _, s := range streams {
		for _, ns := range []string{s.ID.RawNamespace, s.ID.FinalNamespace} {
			if ns != "" && !seen[ns] {
				seen[ns] = true
				namespaces = append(namespaces, ns)
			}
		}
	}
	sort.Strings(namespaces[1:])

	parts := make([]SQL, 0, len(namespaces)+2)
	for _, ns := range namespaces {
		parts = append(parts, r.builder.CreateNamespace(ns))
	}
	parts = append(parts,
		r.builder.CreateStateTable(r.opts.RawNamespace),
		r.builder.PrepareSafeCast(r.opts.RawNamespace),
	)
	sql := Concat(parts...)

	r.logger.Info("Preparing destination", zap.Strings("namespaces", namespaces), zap.Int("statements", sql.StatementCount()))
	r.recorder.Record(StreamID{}, "prepare", sql)
	if err := r.executor.Execute(ctx, sql); err != nil {
		r.metrics.SyncErrorsTotal.WithLabelValues("prepare", "").Inc()
		return withStreamContext(err, "", "prepare")
	}
	return nil
}

// Run syncs streams concurrently, at most Workers at a time, each bounded by
// StreamTimeout. Streams touch disjoint tables; one failing does not stop
// the others.
func (r *Reconciler) Run(ctx context.Context, streams []StreamConfig) map[string]StreamResult {
	startTime := time.Now()
	r.logger.Info("Starting reconciliation run",
		zap.Int("streams", len(streams)),
		zap.Int("workers", r.opts.Workers),
		zap.Duration("stream_timeout", r.opts.StreamTimeout),
	)
	r.metrics.SyncRunning.Set(1)
	defer r.metrics.SyncRunning.Set(0)

	results := make(map[string]StreamResult, len(streams))
	var wg sync.WaitGroup
	// one slot per stream so a finished worker never blocks on send
	resultChan := make(chan StreamResult, len(streams))
	sem := make(chan struct{}, r.opts.Workers)

	for i, s := range streams {
		select {
		case <-ctx.Done():
			r.handleRemainingStreamsOnCancel(ctx, streams[i:], results)
			goto endloop
		default:
		}

		wg.Add(1)
		go func(s StreamConfig) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				r.logger.Warn("Context cancelled while waiting for worker slot", zap.String("stream", s.ID.String()), zap.Error(ctx.Err()))
				resultChan <- StreamResult{
					Stream:     s.ID.String(),
					Skipped:    true,
					SkipReason: "Context cancelled while waiting for worker slot",
					Error:      fmt.Errorf("context cancelled: %w", ctx.Err()),
				}
				return
			}

			streamCtx, cancel := ctx, context.CancelFunc(func() {})
			if r.opts.StreamTimeout > 0 {
				streamCtx, cancel = context.WithTimeout(ctx, r.opts.StreamTimeout)
			}
			defer cancel()
			resultChan <- r.SyncStream(streamCtx, s)
		}(s)
	}

endloop:
	go func() {
		wg.Wait()
		close(resultChan)
		r.logger.Debug("All stream goroutines in pool have completed.")
	}()

	for res := range resultChan {
		results[res.Stream] = res
	}

	total := time.Since(startTime)
	r.logger.Info("Reconciliation run finished",
		zap.Duration("total_duration", total),
		zap.Int("total_streams_processed_or_skipped", len(results)),
	)
	r.metrics.SyncDuration.Observe(total.Seconds())
	return results
}

// handleRemainingStreamsOnCancel fills results for streams that never started.
func (r *Reconciler) handleRemainingStreamsOnCancel(ctx context.Context, remaining []StreamConfig, results map[string]StreamResult) {
	if len(remaining) == 0 {
		return
	}
	r.logger.Warn("Context cancelled; marking remaining streams as skipped",
		zap.String("first_remaining_stream", remaining[0].ID.String()),
		zap.Int("count_remaining", len(remaining)),
		zap.Error(ctx.Err()),
	)
	for _, s := range remaining {
		name := s.ID.String()
		if _, exists := results[name]; exists {
			continue
		}
		r.metrics.SyncErrorsTotal.WithLabelValues("cancelled", name).Inc()
		results[name] = StreamResult{
			Stream:     name,
			Skipped:    true,
			SkipReason: "Context cancelled before processing could start for this stream",
			Error:      fmt.Errorf("context cancelled: %w", ctx.Err()),
		}
	}
}

// RequestSoftReset flags streams so their next sync rebuilds the final table
// from raw history.
func (r *Reconciler) RequestSoftReset(ctx context.Context, streams []StreamConfig) error {
	var errs error
	for _, s := range streams {
		st, err := r.state.Load(ctx, s.ID)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		st.NeedsSoftReset = true
		if err := r.state.Save(ctx, s.ID, st); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		r.logger.Info("Soft reset requested", zap.String("stream", s.ID.String()))
	}
	return errs
}
