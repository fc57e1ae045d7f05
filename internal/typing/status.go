package typing

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// DestinationInitialStatus is the snapshot a sync decides from. It is
// gathered fresh every sync and never updated in place.
type DestinationInitialStatus struct {
	Stream                 StreamConfig   `json:"-"`
	StreamName             string         `json:"stream"`
	FinalTablePresent      bool           `json:"final_table_present"`
	IsSchemaMismatch       bool           `json:"is_schema_mismatch"`
	MismatchReasons        []string       `json:"mismatch_reasons,omitempty"`
	RawTable               RawTableStatus `json:"raw_table"`
	LegacyRawTableDetected bool           `json:"legacy_raw_table_detected"`
	RawMetaPresent         bool           `json:"raw_meta_present"`
	State                  MinimalState   `json:"state"`
}

// GatherInitialState inspects every stream. Streams that fail are left out of
// the result and their errors are combined into the returned error.
func (r *Reconciler) GatherInitialState(ctx context.Context, streams []StreamConfig) ([]DestinationInitialStatus, error) {
	out := make([]DestinationInitialStatus, 0, len(streams))
	var errs error
	for _, s := range streams {
		st, err := r.gatherOne(ctx, s)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		out = append(out, st)
	}
	return out, errs
}

func (r *Reconciler) gatherOne(ctx context.Context, s StreamConfig) (DestinationInitialStatus, error) {
	log := r.logger.With(zap.String("stream", s.ID.String()))
	st := DestinationInitialStatus{Stream: s, StreamName: s.ID.String()}

	observed, found, err := r.inspector.Describe(ctx, s.ID.FinalNamespace, s.ID.FinalName)
	if err != nil {
		return st, fmt.Errorf("stream %s: inspect final table: %w", s.ID, err)
	}
	st.FinalTablePresent = found
	if found {
		st.MismatchReasons = CompareSchema(r.builder.Dialect(), r.builder.ExpectedFinalColumns(s), observed)
		st.IsSchemaMismatch = len(st.MismatchReasons) > 0
	}

	if st.RawTable, err = r.inspector.RawTableStatus(ctx, s); err != nil {
		return st, fmt.Errorf("stream %s: inspect raw table: %w", s.ID, err)
	}
	st.RawMetaPresent = st.RawTable.MetaColumnPresent

	if st.LegacyRawTableDetected, err = r.inspector.TableExists(ctx, s.ID.FinalNamespace, s.ID.LegacyRawName); err != nil {
		return st, fmt.Errorf("stream %s: inspect legacy raw table: %w", s.ID, err)
	}

	if st.State, err = r.state.Load(ctx, s.ID); err != nil {
		return st, fmt.Errorf("stream %s: %w", s.ID, err)
	}

	log.Debug("Gathered initial status.",
		zap.Bool("final_table_present", st.FinalTablePresent),
		zap.Bool("schema_mismatch", st.IsSchemaMismatch),
		zap.Strings("mismatch_reasons", st.MismatchReasons),
		zap.Bool("raw_table_exists", st.RawTable.Exists),
		zap.Int64("unprocessed_raw_rows", st.RawTable.UnprocessedCount),
		zap.Bool("legacy_raw_table", st.LegacyRawTableDetected),
		zap.Int("state_version", st.State.Version),
	)
	return st, nil
}
