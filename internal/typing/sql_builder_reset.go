// internal/typing/sql_builder_reset.go
package typing

import "fmt"

// SoftReset rebuilds the final table from the full raw history without
// touching raw data. Every transaction is safe to re-run after a crash:
//
//  1. force-create FinalName+_tdd_tmp
//  2. full update into the temp table
//  3. swap the temp table in and drop the old final table
//  4. recreate the final index
//
// Dialects with transactional DDL swap in one transaction. Elsewhere the swap
// is a single multi-table RENAME bracketed by drops of the _tdd_old table.
func (b *SQLBuilder) SoftReset(s StreamConfig) SQL {
	return Concat(
		b.CreateFinalTable(s, TmpTableSuffix, true),
		b.UpdateTable(s, TmpTableSuffix, UpdateFull, nil),
		b.swapTables(s),
		b.CreateFinalIndex(s),
	)
}

func (b *SQLBuilder) swapTables(s StreamConfig) SQL {
	ns := s.ID.FinalNamespace
	final := s.ID.FinalName
	tmp := final + TmpTableSuffix

	if b.caps.TransactionalDDL {
		stmts := []string{b.dropTableStmt(b.finalTable(s, ""))}
		stmts = append(stmts, b.dialect.RenameTables(ns, []Rename{{From: tmp, To: final}})...)
		return Of(stmts...)
	}

	old := final + oldTableSuffix
	stmts := []string{b.dropTableStmt(b.finalTable(s, oldTableSuffix))}
	stmts = append(stmts, b.dialect.RenameTables(ns, []Rename{{From: final, To: old}, {From: tmp, To: final}})...)
	stmts = append(stmts, b.dropTableStmt(b.finalTable(s, oldTableSuffix)))
	return Separately(stmts...)
}

// MigrateLegacyRawTable copies rows of the pre-versioning raw layout
// (record_id, emitted_at, payload) into the current raw table. Rows already
// copied are skipped; the legacy table is left in place.
func (b *SQLBuilder) MigrateLegacyRawTable(s StreamConfig) SQL {
	raw := b.rawTable(s)
	legacy := b.legacyRawTable(s)
	insert := fmt.Sprintf(`INSERT INTO %s (%s, %s, %s, %s, %s)
SELECT %s, %s, NULL, %s, NULL
FROM %s
WHERE NOT EXISTS (SELECT 1 FROM %s WHERE %s = %s)`,
		raw, b.q(ColRawID), b.q(ColExtractedAt), b.q(ColLoadedAt), b.q(ColData), b.q(ColMeta),
		b.qualified(legacy, legacyColID), b.qualified(legacy, legacyColEmittedAt),
		b.dialect.ToJSON(b.qualified(legacy, legacyColPayload)),
		legacy,
		raw, b.qualified(raw, ColRawID), b.qualified(legacy, legacyColID))
	return Concat(b.CreateRawTable(s), Of(insert))
}
