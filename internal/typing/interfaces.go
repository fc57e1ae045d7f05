package typing

import "context"

// Executor runs generated SQL against the destination.
type Executor interface {
	// Execute runs each transaction of sql in order, stopping at the first failure.
	Execute(ctx context.Context, sql SQL) error
	// Query runs a read-only statement and returns rows keyed by column name.
	Query(ctx context.Context, query string, args ...any) ([]map[string]any, error)
}

// Inspector reads catalog facts about destination tables. It never caches.
type Inspector interface {
	Describe(ctx context.Context, namespace, table string) (*ObservedSchema, bool, error)
	RawTableStatus(ctx context.Context, stream StreamConfig) (RawTableStatus, error)
	TableExists(ctx context.Context, namespace, table string) (bool, error)
}

// StateStore persists the per-stream MinimalState blob.
type StateStore interface {
	Load(ctx context.Context, id StreamID) (MinimalState, error)
	Save(ctx context.Context, id StreamID, state MinimalState) error
}

// StatementRecorder receives every SQL batch the reconciler executes.
type StatementRecorder interface {
	Record(stream StreamID, step string, sql SQL)
}

type nopRecorder struct{}

func (nopRecorder) Record(StreamID, string, SQL) {}

var (
	_ Inspector  = (*SchemaInspector)(nil)
	_ StateStore = (*GormStateStore)(nil)
)
