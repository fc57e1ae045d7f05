// internal/typing/sql_builder_update.go
package typing

import (
	"fmt"
	"strings"
	"time"
)

// UpdateMode selects which raw rows an update consumes.
type UpdateMode int

const (
	// UpdateIncremental consumes raw rows whose _loaded_at is NULL.
	UpdateIncremental UpdateMode = iota
	// UpdateFull replays every raw row regardless of _loaded_at.
	UpdateFull
)

func (m UpdateMode) String() string {
	if m == UpdateFull {
		return "full"
	}
	return "incremental"
}

const newAlias = "_new"

// UpdateTable folds raw rows into FinalName+suffix and marks them loaded, all
// in one transaction:
//
//  1. dedup streams: delete final rows superseded by the newest incoming row
//     of the same key (tombstones included)
//  2. insert the newest non-tombstone incoming row per key whose key is no
//     longer present; append streams insert every selected row
//  3. set _loaded_at on the consumed raw rows
//
// minRawTimestamp, when set, narrows an incremental scan to rows extracted at
// or after it. It must not exceed the oldest unprocessed _extracted_at.
func (b *SQLBuilder) UpdateTable(s StreamConfig, suffix string, mode UpdateMode, minRawTimestamp *time.Time) SQL {
	filter := b.rawFilter(mode, minRawTimestamp)
	final := b.finalTable(s, suffix)

	stmts := append([]string{}, b.dialect.SessionPrelude()...)
	if s.IsDedup() {
		stmts = append(stmts, b.deleteSuperseded(s, final, filter))
	}
	stmts = append(stmts, b.insertNew(s, final, filter), b.markLoaded(s, mode, minRawTimestamp))
	return Of(stmts...)
}

func (b *SQLBuilder) rawFilter(mode UpdateMode, minRawTimestamp *time.Time) string {
	if mode == UpdateFull {
		return ""
	}
	conds := []string{b.q(ColLoadedAt) + " IS NULL"}
	if minRawTimestamp != nil {
		conds = append(conds, b.dialect.SortableTimestamp(b.q(ColExtractedAt))+" >= "+b.dialect.TimestampLiteral(*minRawTimestamp))
	}
	return strings.Join(conds, " AND ")
}

// metaErrors builds one error condition per column whose cast can fail.
// STRING and UNKNOWN columns accept any present value.
func (b *SQLBuilder) metaErrors(s StreamConfig) []metaError {
	errs := make([]metaError, 0, len(s.Columns))
	for _, c := range s.Columns {
		k := c.Type.Chosen().Kind
		if k == KindString || k == KindUnknown {
			continue
		}
		errs = append(errs, metaError{
			Field:     c.Field,
			Condition: fmt.Sprintf("%s AND (%s) IS NULL", b.dialect.IsPresent(c.Field), b.dialect.TypedValue(c.Field, c.Type)),
			Message:   castErrorMessage(k),
		})
	}
	return errs
}

// typedSelect reads the raw table with every field cast, plus the ranking
// and tombstone columns dedup needs.
func (b *SQLBuilder) typedSelect(s StreamConfig, filter string) string {
	d := b.dialect
	cols := make([]string, 0, len(s.Columns)+5)
	for _, c := range s.Columns {
		cols = append(cols, fmt.Sprintf("%s AS %s", d.TypedValue(c.Field, c.Type), b.q(c.Name)))
	}
	cols = append(cols,
		b.q(ColRawID),
		b.q(ColExtractedAt),
		fmt.Sprintf("%s AS %s", d.MetaExpr(b.metaErrors(s)), b.q(ColMeta)),
	)
	if s.IsDedup() {
		tomb := "FALSE"
		if s.DeletionMarker != "" {
			tomb = d.IsTombstone(s.DeletionMarker)
		}
		cols = append(cols, fmt.Sprintf("%s AS %s", tomb, b.q(colTombstone)))

		keys := make([]string, 0, len(s.PrimaryKey))
		for _, pk := range s.PrimaryKey {
			keys = append(keys, d.TypedValue(pk.Field, pk.Type))
		}
		cols = append(cols, fmt.Sprintf("ROW_NUMBER() OVER (PARTITION BY %s ORDER BY %s DESC, %s DESC) AS %s",
			strings.Join(keys, ", "), d.SortableTimestamp(b.q(ColExtractedAt)), b.q(ColRawID), b.q(colRowNumber)))
	}

	var sb strings.Builder
	sb.WriteString("SELECT\n    ")
	sb.WriteString(strings.Join(cols, ",\n    "))
	sb.WriteString("\n  FROM ")
	sb.WriteString(b.rawTable(s))
	if filter != "" {
		sb.WriteString("\n  WHERE ")
		sb.WriteString(filter)
	}
	return sb.String()
}

func (b *SQLBuilder) keyMatch(s StreamConfig, left, right string) string {
	conds := make([]string, 0, len(s.PrimaryKey))
	for _, pk := range s.PrimaryKey {
		conds = append(conds, b.dialect.NullSafeEqual(b.qualified(left, pk.Name), b.qualified(right, pk.Name)))
	}
	return strings.Join(conds, " AND ")
}

func (b *SQLBuilder) deleteSuperseded(s StreamConfig, final, filter string) string {
	n := b.q(newAlias)
	newTS := b.dialect.SortableTimestamp(b.qualified(n, ColExtractedAt))
	finalTS := b.dialect.SortableTimestamp(b.qualified(final, ColExtractedAt))
	newer := fmt.Sprintf("(%s > %s OR (%s = %s AND %s > %s))",
		newTS, finalTS, newTS, finalTS,
		b.qualified(n, ColRawID), b.qualified(final, ColRawID))
	return fmt.Sprintf(`DELETE FROM %s
WHERE EXISTS (
  SELECT 1 FROM (
  %s
  ) AS %s
  WHERE %s = 1
    AND %s
    AND %s
)`,
		final,
		b.typedSelect(s, filter),
		n,
		b.qualified(n, colRowNumber),
		b.keyMatch(s, n, final),
		newer)
}

func (b *SQLBuilder) insertNew(s StreamConfig, final, filter string) string {
	n := b.q(newAlias)
	names := []string{b.q(ColRawID), b.q(ColExtractedAt), b.q(ColMeta)}
	for _, c := range s.Columns {
		names = append(names, b.q(c.Name))
	}
	selected := make([]string, len(names))
	for i, name := range names {
		selected[i] = n + "." + name
	}

	var where []string
	if s.IsDedup() {
		where = append(where,
			b.qualified(n, colRowNumber)+" = 1",
			"NOT "+b.qualified(n, colTombstone),
			fmt.Sprintf("NOT EXISTS (SELECT 1 FROM %s WHERE %s)", final, b.keyMatch(s, n, final)),
		)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s)\nSELECT %s FROM (\n  %s\n) AS %s",
		final, strings.Join(names, ", "), strings.Join(selected, ", "), b.typedSelect(s, filter), n)
	if len(where) > 0 {
		sb.WriteString("\nWHERE ")
		sb.WriteString(strings.Join(where, "\n  AND "))
	}
	return sb.String()
}

func (b *SQLBuilder) markLoaded(s StreamConfig, mode UpdateMode, minRawTimestamp *time.Time) string {
	filter := b.q(ColLoadedAt) + " IS NULL"
	if mode == UpdateIncremental && minRawTimestamp != nil {
		filter = b.rawFilter(mode, minRawTimestamp)
	}
	return fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s",
		b.rawTable(s), b.q(ColLoadedAt), b.dialect.CurrentTimestamp(), filter)
}
