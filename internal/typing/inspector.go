// internal/typing/inspector.go
package typing

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ObservedColumn is a column as the destination catalog reports it.
type ObservedColumn struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// ObservedSchema is the committed shape of an existing table.
type ObservedSchema struct {
	Namespace string           `json:"namespace"`
	Table     string           `json:"table"`
	Columns   []ObservedColumn `json:"columns"`
}

// Column looks a column up case-insensitively.
func (o *ObservedSchema) Column(name string) (ObservedColumn, bool) {
	if o == nil {
		return ObservedColumn{}, false
	}
	for _, c := range o.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return ObservedColumn{}, false
}

// RawTableStatus summarizes the raw table of a stream.
type RawTableStatus struct {
	Exists                    bool       `json:"exists"`
	MetaColumnPresent         bool       `json:"meta_column_present"`
	HasUnprocessed            bool       `json:"has_unprocessed"`
	UnprocessedCount          int64      `json:"unprocessed_count"`
	MaxProcessedExtractedAt   *time.Time `json:"max_processed_extracted_at,omitempty"`
	MinUnprocessedExtractedAt *time.Time `json:"min_unprocessed_extracted_at,omitempty"`
	MaxLoadedAt               *time.Time `json:"max_loaded_at,omitempty"`
}

// SchemaInspector reads the live catalog. Nothing is cached: every call
// reflects committed state.
type SchemaInspector struct {
	db      *gorm.DB
	dialect Dialect
	logger  *zap.Logger
}

func NewSchemaInspector(db *gorm.DB, d Dialect, logger *zap.Logger) *SchemaInspector {
	return &SchemaInspector{db: db, dialect: d, logger: logger.Named("schema-inspector")}
}

// Describe returns the table's columns, or found=false when it does not exist.
func (i *SchemaInspector) Describe(ctx context.Context, namespace, table string) (*ObservedSchema, bool, error) {
	schema, name := i.dialect.CatalogLocation(namespace, table)
	log := i.logger.With(zap.String("namespace", namespace), zap.String("table", table), zap.String("dialect", i.dialect.Name()))

	var (
		cols []ObservedColumn
		err  error
	)
	switch i.dialect.Name() {
	case "postgres":
		cols, err = i.postgresColumns(ctx, schema, name)
	case "mysql":
		cols, err = i.mysqlColumns(ctx, schema, name)
	case "sqlite":
		cols, err = i.sqliteColumns(ctx, name)
	default:
		err = fmt.Errorf("unsupported dialect for schema inspection: %s", i.dialect.Name())
	}
	if err != nil {
		return nil, false, fmt.Errorf("describe %s.%s: %w", namespace, table, err)
	}
	if len(cols) == 0 {
		log.Debug("Table not found in catalog.")
		return nil, false, nil
	}
	log.Debug("Described table.", zap.Int("columns", len(cols)))
	return &ObservedSchema{Namespace: namespace, Table: table, Columns: cols}, true, nil
}

func (i *SchemaInspector) TableExists(ctx context.Context, namespace, table string) (bool, error) {
	_, found, err := i.Describe(ctx, namespace, table)
	return found, err
}

// RawTableStatus reports the processing watermarks of the stream's raw table.
func (i *SchemaInspector) RawTableStatus(ctx context.Context, s StreamConfig) (RawTableStatus, error) {
	observed, found, err := i.Describe(ctx, s.ID.RawNamespace, s.ID.RawName)
	if err != nil || !found {
		return RawTableStatus{}, err
	}
	st := RawTableStatus{Exists: true}
	_, st.MetaColumnPresent = observed.Column(ColMeta)

	d := i.dialect
	q := func(n string) string { return d.QuoteIdentifier(n) }
	query := fmt.Sprintf(`SELECT
  MAX(CASE WHEN %[1]s IS NOT NULL THEN %[2]s END) AS max_processed,
  MIN(CASE WHEN %[1]s IS NULL THEN %[2]s END) AS min_unprocessed,
  MAX(%[1]s) AS max_loaded,
  COUNT(CASE WHEN %[1]s IS NULL THEN 1 END) AS unprocessed
FROM %[3]s`, q(ColLoadedAt), d.SortableTimestamp(q(ColExtractedAt)), d.Table(s.ID.RawNamespace, s.ID.RawName))

	var row struct {
		MaxProcessed   sql.NullString `gorm:"column:max_processed"`
		MinUnprocessed sql.NullString `gorm:"column:min_unprocessed"`
		MaxLoaded      sql.NullString `gorm:"column:max_loaded"`
		Unprocessed    int64          `gorm:"column:unprocessed"`
	}
	if err := i.db.WithContext(ctx).Raw(query).Scan(&row).Error; err != nil {
		return RawTableStatus{}, fmt.Errorf("raw table status for %s: %w", s.ID, err)
	}

	st.UnprocessedCount = row.Unprocessed
	st.HasUnprocessed = row.Unprocessed > 0
	for _, f := range []struct {
		src sql.NullString
		dst **time.Time
	}{
		{row.MaxProcessed, &st.MaxProcessedExtractedAt},
		{row.MinUnprocessed, &st.MinUnprocessedExtractedAt},
		{row.MaxLoaded, &st.MaxLoadedAt},
	} {
		if !f.src.Valid {
			continue
		}
		t, err := ParseTimestamp(f.src.String)
		if err != nil {
			return RawTableStatus{}, fmt.Errorf("raw table status for %s: %w", s.ID, err)
		}
		*f.dst = &t
	}
	return st, nil
}

// timestampLayouts covers what the supported drivers hand back for timestamp
// columns scanned into strings.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses a catalog timestamp string; values without a zone are UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
