package typing

import (
	"strings"
	"time"

	"github.com/arwahdevops/dbtyper/internal/utils"
)

// sqliteDialect targets SQLite 3.38+ (JSON functions and the -> operator are
// built in). SQLite has no schemas, so namespaces are folded into table names.
type sqliteDialect struct{}

const sqliteNamespaceSeparator = "__"

func (d *sqliteDialect) Name() string { return "sqlite" }

func (d *sqliteDialect) Capabilities() Capabilities {
	return Capabilities{
		NamespaceMode:       NamespaceFlatten,
		SupportsCascade:     false,
		NativeJSON:          false,
		SafeCast:            false,
		TransactionalDDL:    true,
		MaxIdentifierLength: 128,
	}
}

func (d *sqliteDialect) QuoteIdentifier(name string) string { return utils.QuoteIdentifier(name, "sqlite") }

func (d *sqliteDialect) QuoteString(s string) string { return utils.QuoteString(s, "sqlite") }

func (d *sqliteDialect) flatten(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + sqliteNamespaceSeparator + name
}

func (d *sqliteDialect) Table(namespace, name string) string {
	return d.QuoteIdentifier(d.flatten(namespace, name))
}

func (d *sqliteDialect) CatalogLocation(namespace, name string) (string, string) {
	return "", d.flatten(namespace, name)
}

func (d *sqliteDialect) CreateNamespace(string) string { return "" }
func (d *sqliteDialect) DropNamespace(string) string   { return "" }

func (d *sqliteDialect) RenameTables(namespace string, renames []Rename) []string {
	out := make([]string, 0, len(renames))
	for _, r := range renames {
		out = append(out, "ALTER TABLE "+d.Table(namespace, r.From)+" RENAME TO "+d.Table(namespace, r.To))
	}
	return out
}

func (d *sqliteDialect) IndexColumn(c Column, _ string) string { return d.QuoteIdentifier(c.Name) }

func (d *sqliteDialect) ColumnType(t FieldType) string {
	switch t.Chosen().Kind {
	case KindInteger:
		return "INTEGER"
	case KindNumber:
		return "NUMERIC"
	case KindBoolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

func (d *sqliteDialect) RawIDType() string     { return "TEXT" }
func (d *sqliteDialect) TimestampType() string { return "TEXT" }
func (d *sqliteDialect) JSONType() string      { return "TEXT" }

// PRAGMA table_info reports the declared type verbatim.
func (d *sqliteDialect) TypesMatch(expected, observed string) bool {
	return strings.EqualFold(strings.TrimSpace(expected), strings.TrimSpace(observed))
}

func (d *sqliteDialect) jsonPath(field string) string {
	return d.QuoteString(`$."` + strings.ReplaceAll(field, `"`, `\"`) + `"`)
}

// The timestamp and time kinds go through strftime, whose format strings
// contain '%', so this file builds SQL by concatenation rather than Sprintf.
func (d *sqliteDialect) TypedValue(field string, t FieldType) string {
	data := d.QuoteIdentifier(ColData)
	path := d.jsonPath(field)
	jt := "json_type(" + data + ", " + path + ")"
	v := "json_extract(" + data + ", " + path + ")"
	raw := data + " -> " + path
	isText := jt + " = 'text'"

	switch t.Chosen().Kind {
	case KindString:
		return "CASE " + jt + " WHEN 'null' THEN NULL WHEN 'true' THEN 'true' WHEN 'false' THEN 'false' ELSE CAST(" + v + " AS TEXT) END"
	case KindInteger:
		digits := "substr(" + v + ", CASE WHEN " + v + " GLOB '-*' THEN 2 ELSE 1 END)"
		return "CASE " + jt + " WHEN 'integer' THEN " + v +
			" WHEN 'text' THEN CASE WHEN " + digits + " GLOB '[0-9]*' AND " + digits + " NOT GLOB '*[^0-9]*'" +
			" AND length(" + digits + ") <= 19 AND abs(CAST(" + v + " AS REAL)) < 9223372036854775807.0" +
			" THEN CAST(" + v + " AS INTEGER) END END"
	case KindNumber:
		return "CASE " + jt + " WHEN 'integer' THEN " + v + " WHEN 'real' THEN " + v +
			" WHEN 'text' THEN CASE WHEN " + v + " GLOB '*[0-9]*' AND " + v + " NOT GLOB '*[^0-9.eE+-]*'" +
			" THEN CAST(" + v + " AS NUMERIC) END END"
	case KindBoolean:
		return "CASE " + jt + " WHEN 'true' THEN 1 WHEN 'false' THEN 0" +
			" WHEN 'text' THEN CASE lower(" + v + ") WHEN 'true' THEN 1 WHEN 'false' THEN 0 END END"
	case KindDate:
		return "CASE WHEN " + isText + " AND " + v + " GLOB '[0-9][0-9][0-9][0-9]-[0-9][0-9]-[0-9][0-9]'" +
			" AND date(" + v + ") = " + v + " THEN " + v + " END"
	case KindTimestampWithTimezone:
		return "CASE WHEN " + isText + " AND " + v + " GLOB '[0-9][0-9][0-9][0-9]-[0-9][0-9]-[0-9][0-9][T ][0-9]*'" +
			" THEN strftime('%Y-%m-%dT%H:%M:%fZ', " + v + ") END"
	case KindTimestampWithoutTimezone:
		return "CASE WHEN " + isText + " AND " + v + " GLOB '[0-9][0-9][0-9][0-9]-[0-9][0-9]-[0-9][0-9][T ][0-9]*'" +
			" THEN strftime('%Y-%m-%dT%H:%M:%f', " + v + ") END"
	case KindTimeWithoutTimezone:
		return "CASE WHEN " + isText + " AND " + v + " GLOB '[0-9][0-9]:[0-9][0-9]*'" +
			" THEN strftime('%H:%M:%f', " + v + ") END"
	case KindTimeWithTimezone:
		return "CASE WHEN " + isText + " AND " + v + " GLOB '[0-9][0-9]:[0-9][0-9]*'" +
			" AND strftime('%H:%M:%f', " + v + ") IS NOT NULL THEN " + v + " END"
	case KindStruct:
		return "CASE WHEN " + jt + " = 'object' THEN " + raw + " END"
	case KindArray:
		return "CASE WHEN " + jt + " = 'array' THEN " + raw + " END"
	default:
		return raw
	}
}

func (d *sqliteDialect) IsPresent(field string) string {
	return "COALESCE(json_type(" + d.QuoteIdentifier(ColData) + ", " + d.jsonPath(field) + ") <> 'null', 0)"
}

func (d *sqliteDialect) IsTombstone(field string) string {
	return "COALESCE(json_type(" + d.QuoteIdentifier(ColData) + ", " + d.jsonPath(field) + ") NOT IN ('null', 'false'), 0)"
}

// MetaExpr merges new errors over existing ones with json_patch; a NULL pair
// value (no error) is dropped by the merge.
func (d *sqliteDialect) MetaExpr(errs []metaError) string {
	meta := d.QuoteIdentifier(ColMeta)
	acc := "CASE WHEN json_type(" + meta + ", '$.errors') = 'object' THEN json_extract(" + meta + ", '$.errors') ELSE '{}' END"
	for _, c := range chunk(errs, metaChunkSize) {
		acc = "json_patch(" + acc + ", json_object(" + errorPairs(d, c) + "))"
	}
	return "json_object('errors', json(" + acc + "))"
}

func (d *sqliteDialect) HasTypingErrors(metaColumn string) string {
	return "COALESCE(json_extract(" + d.QuoteIdentifier(metaColumn) + ", '$.errors') <> '{}', 0)"
}

func (d *sqliteDialect) ToJSON(expr string) string { return "json(" + expr + ")" }

func (d *sqliteDialect) NullSafeEqual(a, b string) string { return a + " IS " + b }

func (d *sqliteDialect) CurrentTimestamp() string {
	return "strftime('%Y-%m-%dT%H:%M:%fZ', 'now')"
}

// SortableTimestamp normalizes stored text ('T' or ' ', fraction digits,
// offsets) to one UTC layout with millisecond precision, so lexical order is
// time order.
func (d *sqliteDialect) SortableTimestamp(expr string) string {
	return "strftime('%Y-%m-%dT%H:%M:%fZ', " + expr + ")"
}

// TimestampLiteral only feeds lower bounds. A bare date one day earlier sorts
// before every normalized value at or after t.
func (d *sqliteDialect) TimestampLiteral(t time.Time) string {
	return d.QuoteString(t.UTC().Add(-24 * time.Hour).Format("2006-01-02"))
}

func (d *sqliteDialect) SessionPrelude() []string { return nil }

func (d *sqliteDialect) SafeCastFunctions(string) []string { return nil }
