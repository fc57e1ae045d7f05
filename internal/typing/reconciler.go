// internal/typing/reconciler.go
package typing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/arwahdevops/dbtyper/internal/metrics"
)

type StepKind string

const (
	StepCreateRawTable   StepKind = "create_raw_table"
	StepAddRawMetaColumn StepKind = "add_raw_meta_column"
	StepMigrateLegacyRaw StepKind = "migrate_legacy_raw"
	StepCreateFinalTable StepKind = "create_final_table"
	StepSoftReset        StepKind = "soft_reset"
	StepUpdateTable      StepKind = "update_table"
)

const stepCountTypingErrors = "count_typing_errors"

// Step is one action of a stream's plan.
type Step struct {
	Kind            StepKind
	Mode            UpdateMode // update_table only
	MinRawTimestamp *time.Time // update_table only
}

func (s Step) String() string {
	if s.Kind == StepUpdateTable {
		return fmt.Sprintf("%s(%s)", s.Kind, s.Mode)
	}
	return string(s.Kind)
}

// MarshalText renders a step as its String form in JSON output.
func (s Step) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Plan decides the steps of one sync from its initial status. Raw table
// upgrades come first, then the legacy copy, then exactly one final-table
// strategy:
//
//	no final table          -> create_final_table, update_table(full)
//	mismatch or reset asked -> soft_reset, update_table(incremental)
//	otherwise               -> update_table(incremental)
func Plan(st DestinationInitialStatus) []Step {
	var steps []Step
	legacyPending := st.LegacyRawTableDetected && !st.State.LegacyRawMigrated

	switch {
	case !st.RawTable.Exists && !legacyPending:
		steps = append(steps, Step{Kind: StepCreateRawTable})
	case st.RawTable.Exists && !st.RawTable.MetaColumnPresent:
		steps = append(steps, Step{Kind: StepAddRawMetaColumn})
	}
	if legacyPending {
		steps = append(steps, Step{Kind: StepMigrateLegacyRaw})
	}

	switch {
	case !st.FinalTablePresent:
		steps = append(steps,
			Step{Kind: StepCreateFinalTable},
			Step{Kind: StepUpdateTable, Mode: UpdateFull})
	case st.IsSchemaMismatch || st.State.NeedsSoftReset:
		steps = append(steps,
			Step{Kind: StepSoftReset},
			Step{Kind: StepUpdateTable, Mode: UpdateIncremental})
	default:
		update := Step{Kind: StepUpdateTable, Mode: UpdateIncremental}
		// Legacy rows land with older timestamps than the current watermark.
		if !legacyPending {
			update.MinRawTimestamp = st.RawTable.MinUnprocessedExtractedAt
		}
		steps = append(steps, update)
	}
	return steps
}

// StepSQL renders a planned step.
func (b *SQLBuilder) StepSQL(s StreamConfig, step Step) SQL {
	switch step.Kind {
	case StepCreateRawTable:
		return b.CreateRawTable(s)
	case StepAddRawMetaColumn:
		return b.AddRawMetaColumn(s)
	case StepMigrateLegacyRaw:
		return b.MigrateLegacyRawTable(s)
	case StepCreateFinalTable:
		return Concat(b.CreateFinalTable(s, "", false), b.CreateFinalIndex(s))
	case StepSoftReset:
		return b.SoftReset(s)
	case StepUpdateTable:
		return b.UpdateTable(s, "", step.Mode, step.MinRawTimestamp)
	}
	return SQL{}
}

// Options tune a Reconciler.
type Options struct {
	RawNamespace  string
	Workers       int
	StreamTimeout time.Duration
}

// Reconciler drives streams from their inspected state to a loaded final
// table. It is the only writer of DestinationState.
type Reconciler struct {
	builder   *SQLBuilder
	executor  Executor
	inspector Inspector
	state     StateStore
	recorder  StatementRecorder
	metrics   *metrics.Store
	logger    *zap.Logger
	opts      Options
}

func NewReconciler(builder *SQLBuilder, executor Executor, inspector Inspector, state StateStore, metricsStore *metrics.Store, logger *zap.Logger, opts Options) *Reconciler {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Reconciler{
		builder:   builder,
		executor:  executor,
		inspector: inspector,
		state:     state,
		recorder:  nopRecorder{},
		metrics:   metricsStore,
		logger:    logger.Named("reconciler"),
		opts:      opts,
	}
}

// WithRecorder sets where executed SQL is reported.
func (r *Reconciler) WithRecorder(rec StatementRecorder) *Reconciler {
	if rec != nil {
		r.recorder = rec
	}
	return r
}

// StreamResult is the outcome of one stream's sync.
type StreamResult struct {
	Stream          string        `json:"stream"`
	Steps           []Step        `json:"steps,omitempty"`
	TypingErrorRows int64         `json:"typing_error_rows"`
	SoftReset       bool          `json:"soft_reset"`
	Duration        time.Duration `json:"duration"`
	Skipped         bool          `json:"skipped,omitempty"`
	SkipReason      string        `json:"skip_reason,omitempty"`
	Error           error         `json:"-"`
}

// StreamPlan is what a sync of the stream would do right now.
type StreamPlan struct {
	Status DestinationInitialStatus
	Steps  []Step
	SQL    []SQL // one entry per step
}

// Explain gathers status and renders the plan without executing anything.
func (r *Reconciler) Explain(ctx context.Context, s StreamConfig) (StreamPlan, error) {
	st, err := r.gatherOne(ctx, s)
	if err != nil {
		return StreamPlan{}, err
	}
	p := StreamPlan{Status: st, Steps: Plan(st)}
	for _, step := range p.Steps {
		p.SQL = append(p.SQL, r.builder.StepSQL(s, step))
	}
	return p, nil
}

// SyncStream runs one full sync: gather, plan, execute each step in order,
// count typing errors, then persist the new state. State is written only
// when every step succeeded, so a failed sync is re-derived from scratch.
func (r *Reconciler) SyncStream(ctx context.Context, s StreamConfig) (res StreamResult) {
	start := time.Now()
	name := s.ID.String()
	log := r.logger.With(zap.String("stream", name))
	res.Stream = name
	defer func() {
		res.Duration = time.Since(start)
		r.metrics.StreamSyncDuration.WithLabelValues(name).Observe(res.Duration.Seconds())
	}()

	st, err := r.gatherOne(ctx, s)
	if err != nil {
		errType := "status"
		if IsMigrationError(err) {
			errType = "migration"
		}
		log.Error("Failed to gather initial status", zap.Error(err))
		r.metrics.SyncErrorsTotal.WithLabelValues(errType, name).Inc()
		res.Error = err
		return res
	}
	r.metrics.UnprocessedRawRows.WithLabelValues(name).Set(float64(st.RawTable.UnprocessedCount))

	res.Steps = Plan(st)
	log.Info("Planned stream sync", zap.Stringers("steps", res.Steps))

	next := st.State
	for _, step := range res.Steps {
		if err := r.runStep(ctx, s, step); err != nil {
			log.Error("Step failed; stream halted, state not saved", zap.Stringer("step", step), zap.Error(err))
			r.metrics.SyncErrorsTotal.WithLabelValues("execution", name).Inc()
			res.Error = err
			return res
		}
		switch step.Kind {
		case StepCreateFinalTable:
			// a fresh table is built from the full raw history already
			next.NeedsSoftReset = false
		case StepSoftReset:
			res.SoftReset = true
			next.NeedsSoftReset = false
			r.metrics.SoftResetsTotal.WithLabelValues(name).Inc()
		case StepMigrateLegacyRaw:
			next.LegacyRawMigrated = true
		}
	}
	next.RawMetaPresent = true

	if res.TypingErrorRows, err = r.countTypingErrors(ctx, s); err != nil {
		log.Error("Failed to count typing errors", zap.Error(err))
		r.metrics.SyncErrorsTotal.WithLabelValues("execution", name).Inc()
		res.Error = err
		return res
	}
	r.metrics.TypingErrorRows.WithLabelValues(name).Set(float64(res.TypingErrorRows))

	if err := r.state.Save(ctx, s.ID, next); err != nil {
		log.Error("Failed to save destination state", zap.Error(err))
		r.metrics.SyncErrorsTotal.WithLabelValues("state_save", name).Inc()
		res.Error = err
		return res
	}

	r.metrics.StreamSyncSuccessTotal.WithLabelValues(name).Inc()
	r.metrics.UnprocessedRawRows.WithLabelValues(name).Set(0)
	log.Info("Stream synced",
		zap.Int("steps", len(res.Steps)),
		zap.Bool("soft_reset", res.SoftReset),
		zap.Int64("typing_error_rows", res.TypingErrorRows),
		zap.Duration("duration", time.Since(start)),
	)
	return res
}

func (r *Reconciler) runStep(ctx context.Context, s StreamConfig, step Step) error {
	sql := r.builder.StepSQL(s, step)
	r.recorder.Record(s.ID, step.String(), sql)

	start := time.Now()
	err := r.executor.Execute(ctx, sql)
	status := "success"
	if err != nil {
		status = "failure"
	}
	r.metrics.StepDuration.WithLabelValues(string(step.Kind), status).Observe(time.Since(start).Seconds())
	if err != nil {
		return withStreamContext(err, s.ID.String(), step.String())
	}
	r.metrics.StepsExecutedTotal.WithLabelValues(s.ID.String(), string(step.Kind)).Inc()
	return nil
}

func (r *Reconciler) countTypingErrors(ctx context.Context, s StreamConfig) (int64, error) {
	rows, err := r.executor.Query(ctx, r.builder.CountTypingErrors(s))
	if err != nil {
		return 0, withStreamContext(err, s.ID.String(), stepCountTypingErrors)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := toInt64(rows[0]["typing_errors"])
	if err != nil {
		return 0, fmt.Errorf("stream %s: typing error count: %w", s.ID, err)
	}
	return n, nil
}

// withStreamContext tags an execution failure with the stream and step that
// produced it. Other errors are wrapped into one.
func withStreamContext(err error, stream, step string) error {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		ee.Stream, ee.Step = stream, step
		return ee
	}
	return &ExecutionError{Stream: stream, Step: step, Err: err}
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case *any:
		if n == nil {
			return 0, nil
		}
		return toInt64(*n)
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected count type %T", v)
	}
}
