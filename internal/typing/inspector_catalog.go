// internal/typing/inspector_catalog.go
package typing

import (
	"context"
	"fmt"
	"strings"
)

// --- Catalog queries per dialect ---

type catalogColumn struct {
	ColumnName string `gorm:"column:column_name"`
	DataType   string `gorm:"column:data_type"`
	IsNullable string `gorm:"column:is_nullable"` // YES / NO
}

func toObserved(rows []catalogColumn) []ObservedColumn {
	out := make([]ObservedColumn, 0, len(rows))
	for _, r := range rows {
		out = append(out, ObservedColumn{
			Name:     r.ColumnName,
			Type:     strings.ToLower(r.DataType),
			Nullable: strings.EqualFold(r.IsNullable, "YES"),
		})
	}
	return out
}

// An empty schema means the connection's current schema.
func (i *SchemaInspector) postgresColumns(ctx context.Context, schema, table string) ([]ObservedColumn, error) {
	const query = `
	SELECT column_name, data_type, is_nullable
	FROM information_schema.columns
	WHERE table_schema = COALESCE(NULLIF(?, ''), current_schema())
	  AND table_name = ?
	ORDER BY ordinal_position`

	var rows []catalogColumn
	if err := i.db.WithContext(ctx).Raw(query, schema, table).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("postgres columns query failed: %w", err)
	}
	return toObserved(rows), nil
}

// MySQL namespaces are databases; an empty schema means the connection's database.
func (i *SchemaInspector) mysqlColumns(ctx context.Context, schema, table string) ([]ObservedColumn, error) {
	const query = `
	SELECT COLUMN_NAME AS column_name, DATA_TYPE AS data_type, IS_NULLABLE AS is_nullable
	FROM information_schema.columns
	WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE())
	  AND table_name = ?
	ORDER BY ORDINAL_POSITION`

	var rows []catalogColumn
	if err := i.db.WithContext(ctx).Raw(query, schema, table).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("mysql columns query failed: %w", err)
	}
	return toObserved(rows), nil
}

// PRAGMA table_info returns no rows for a missing table.
func (i *SchemaInspector) sqliteColumns(ctx context.Context, table string) ([]ObservedColumn, error) {
	var rows []struct {
		Cid     int    `gorm:"column:cid"`
		Name    string `gorm:"column:name"`
		Type    string `gorm:"column:type"`
		NotNull int    `gorm:"column:notnull"`
		Pk      int    `gorm:"column:pk"`
	}
	query := fmt.Sprintf("PRAGMA table_info(%s)", i.dialect.QuoteIdentifier(table))
	if err := i.db.WithContext(ctx).Raw(query).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlite table_info failed: %w", err)
	}
	out := make([]ObservedColumn, 0, len(rows))
	for _, r := range rows {
		out = append(out, ObservedColumn{
			Name:     r.Name,
			Type:     r.Type,
			Nullable: r.NotNull == 0 && r.Pk == 0,
		})
	}
	return out, nil
}
