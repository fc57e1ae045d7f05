// internal/typing/sql_builder.go
package typing

import (
	"fmt"
	"strings"

	"github.com/spaolacci/murmur3"
)

// StateTableName is the table holding MinimalState blobs, inside the raw namespace.
const StateTableName = "_destination_state"

// SQLBuilder generates every statement the engine runs. It holds no state
// beyond the dialect: the same inputs always produce the same SQL.
type SQLBuilder struct {
	dialect Dialect
	caps    Capabilities
}

func NewSQLBuilder(d Dialect) *SQLBuilder {
	return &SQLBuilder{dialect: d, caps: d.Capabilities()}
}

func (b *SQLBuilder) Dialect() Dialect { return b.dialect }

// ExpectedColumn is a final-table column as the builder declares it.
type ExpectedColumn struct {
	Name string
	Type string
}

func (b *SQLBuilder) rawTable(s StreamConfig) string {
	return b.dialect.Table(s.ID.RawNamespace, s.ID.RawName)
}

func (b *SQLBuilder) legacyRawTable(s StreamConfig) string {
	return b.dialect.Table(s.ID.FinalNamespace, s.ID.LegacyRawName)
}

func (b *SQLBuilder) finalTable(s StreamConfig, suffix string) string {
	return b.dialect.Table(s.ID.FinalNamespace, s.ID.FinalName+suffix)
}

func (b *SQLBuilder) q(name string) string { return b.dialect.QuoteIdentifier(name) }

// qualified renders table.column.
func (b *SQLBuilder) qualified(table, column string) string {
	return table + "." + b.q(column)
}

func (b *SQLBuilder) dropTableStmt(table string) string {
	stmt := "DROP TABLE IF EXISTS " + table
	if b.caps.SupportsCascade {
		stmt += " CASCADE"
	}
	return stmt
}

// CreateNamespace is empty for dialects without namespaces.
func (b *SQLBuilder) CreateNamespace(namespace string) SQL {
	if namespace == "" {
		return SQL{}
	}
	return Of(b.dialect.CreateNamespace(namespace))
}

// DropNamespace removes a namespace and everything in it. On database-mode
// dialects this is DROP DATABASE.
func (b *SQLBuilder) DropNamespace(namespace string) SQL {
	if namespace == "" {
		return SQL{}
	}
	return Of(b.dialect.DropNamespace(namespace))
}

func (b *SQLBuilder) DropTable(namespace, name string) SQL {
	return Of(b.dropTableStmt(b.dialect.Table(namespace, name)))
}

// PrepareSafeCast installs the non-throwing cast helpers into namespace.
func (b *SQLBuilder) PrepareSafeCast(namespace string) SQL {
	if !b.caps.SafeCast {
		return SQL{}
	}
	return Of(b.dialect.SafeCastFunctions(namespace)...)
}

func (b *SQLBuilder) CreateStateTable(rawNamespace string) SQL {
	return Of(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  %s varchar(255) NOT NULL,
  %s varchar(255) NOT NULL,
  %s text NOT NULL,
  %s %s,
  PRIMARY KEY (%s, %s)
)`,
		b.dialect.Table(rawNamespace, StateTableName),
		b.q("namespace"), b.q("name"), b.q("state"),
		b.q("updated_at"), b.dialect.TimestampType(),
		b.q("namespace"), b.q("name")))
}

func (b *SQLBuilder) rawTableDDL(s StreamConfig) string {
	d := b.dialect
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  %s %s NOT NULL PRIMARY KEY,
  %s %s NOT NULL,
  %s %s NULL,
  %s %s NOT NULL,
  %s %s NULL
)`,
		b.rawTable(s),
		b.q(ColRawID), d.RawIDType(),
		b.q(ColExtractedAt), d.TimestampType(),
		b.q(ColLoadedAt), d.TimestampType(),
		b.q(ColData), d.JSONType(),
		b.q(ColMeta), d.JSONType())
}

// CreateRawTable creates the landing table if it does not exist.
func (b *SQLBuilder) CreateRawTable(s StreamConfig) SQL {
	return Of(b.rawTableDDL(s))
}

// AddRawMetaColumn upgrades a raw table created before _meta existed.
func (b *SQLBuilder) AddRawMetaColumn(s StreamConfig) SQL {
	return Of(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s NULL", b.rawTable(s), b.q(ColMeta), b.dialect.JSONType()))
}

// ExpectedFinalColumns lists the columns CreateFinalTable declares, in order.
func (b *SQLBuilder) ExpectedFinalColumns(s StreamConfig) []ExpectedColumn {
	d := b.dialect
	out := []ExpectedColumn{
		{Name: ColRawID, Type: d.RawIDType()},
		{Name: ColExtractedAt, Type: d.TimestampType()},
		{Name: ColMeta, Type: d.JSONType()},
	}
	for _, c := range s.Columns {
		out = append(out, ExpectedColumn{Name: c.Name, Type: d.ColumnType(c.Type)})
	}
	return out
}

// IndexName is derived from the live final table, so a temp table swapped in
// during a soft reset ends up with the same index name.
func (b *SQLBuilder) IndexName(s StreamConfig) string {
	return fmt.Sprintf("idx_%08x", murmur3.Sum32([]byte(s.ID.FinalNamespace+"."+s.ID.FinalName)))
}

func (b *SQLBuilder) indexColumns(s StreamConfig) string {
	cols := make([]string, 0, len(s.PrimaryKey)+1)
	for _, pk := range s.PrimaryKey {
		cols = append(cols, b.dialect.IndexColumn(pk, b.dialect.ColumnType(pk.Type)))
	}
	cols = append(cols, b.q(ColExtractedAt))
	return strings.Join(cols, ", ")
}

// CreateFinalTable creates the typed table named FinalName+suffix. With force
// an existing table of that name is dropped first.
func (b *SQLBuilder) CreateFinalTable(s StreamConfig, suffix string, force bool) SQL {
	table := b.finalTable(s, suffix)

	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	if !force {
		sb.WriteString("IF NOT EXISTS ")
	}
	sb.WriteString(table)
	sb.WriteString(" (\n")

	defs := make([]string, 0, len(s.Columns)+4)
	for i, c := range b.ExpectedFinalColumns(s) {
		def := "  " + b.q(c.Name) + " " + c.Type
		if i < 3 {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	if s.IsDedup() && b.caps.InlineIndexes {
		defs = append(defs, fmt.Sprintf("  INDEX %s (%s)", b.q(b.IndexName(s)), b.indexColumns(s)))
	}
	sb.WriteString(strings.Join(defs, ",\n"))
	sb.WriteString("\n)")

	if force {
		return Of(b.dropTableStmt(table), sb.String())
	}
	return Of(sb.String())
}

// CreateFinalIndex indexes the live final table on (pk..., _extracted_at).
// Empty for append streams and for dialects that declare indexes inline.
func (b *SQLBuilder) CreateFinalIndex(s StreamConfig) SQL {
	if !s.IsDedup() || b.caps.InlineIndexes {
		return SQL{}
	}
	return Of(fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
		b.q(b.IndexName(s)), b.finalTable(s, ""), b.indexColumns(s)))
}

// CountTypingErrors selects one row with column typing_errors: the number of
// final rows carrying at least one typing error.
func (b *SQLBuilder) CountTypingErrors(s StreamConfig) string {
	return fmt.Sprintf("SELECT COUNT(*) AS %s FROM %s WHERE %s",
		b.q("typing_errors"), b.finalTable(s, ""), b.dialect.HasTypingErrors(ColMeta))
}
