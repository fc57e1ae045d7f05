package typing

import (
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

type postgresDialect struct {
	helperNamespace string
}

// safe-cast helper suffix -> target type
var postgresSafeCasts = []struct{ suffix, typ string }{
	{"bigint", "bigint"},
	{"numeric", "numeric"},
	{"boolean", "boolean"},
	{"date", "date"},
	{"timestamptz", "timestamp with time zone"},
	{"timestamp", "timestamp without time zone"},
	{"timetz", "time with time zone"},
	{"time", "time without time zone"},
}

func (d *postgresDialect) Name() string { return "postgres" }

func (d *postgresDialect) Capabilities() Capabilities {
	return Capabilities{
		NamespaceMode:       NamespaceSchema,
		SupportsCascade:     true,
		NativeJSON:          true,
		SafeCast:            true,
		TransactionalDDL:    true,
		MaxIdentifierLength: 63,
	}
}

func (d *postgresDialect) QuoteIdentifier(name string) string { return pq.QuoteIdentifier(name) }
func (d *postgresDialect) QuoteString(s string) string        { return pq.QuoteLiteral(s) }

func (d *postgresDialect) Table(namespace, name string) string {
	if namespace == "" {
		return d.QuoteIdentifier(name)
	}
	return d.QuoteIdentifier(namespace) + "." + d.QuoteIdentifier(name)
}

func (d *postgresDialect) CatalogLocation(namespace, name string) (string, string) {
	return namespace, name
}

func (d *postgresDialect) CreateNamespace(namespace string) string {
	return "CREATE SCHEMA IF NOT EXISTS " + d.QuoteIdentifier(namespace)
}

func (d *postgresDialect) DropNamespace(namespace string) string {
	return "DROP SCHEMA IF EXISTS " + d.QuoteIdentifier(namespace) + " CASCADE"
}

func (d *postgresDialect) RenameTables(namespace string, renames []Rename) []string {
	out := make([]string, 0, len(renames))
	for _, r := range renames {
		out = append(out, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", d.Table(namespace, r.From), d.QuoteIdentifier(r.To)))
	}
	return out
}

func (d *postgresDialect) IndexColumn(c Column, _ string) string { return d.QuoteIdentifier(c.Name) }

func (d *postgresDialect) ColumnType(t FieldType) string {
	switch t.Chosen().Kind {
	case KindString:
		return "character varying"
	case KindInteger:
		return "bigint"
	case KindNumber:
		return "numeric"
	case KindBoolean:
		return "boolean"
	case KindDate:
		return "date"
	case KindTimestampWithTimezone:
		return "timestamp with time zone"
	case KindTimestampWithoutTimezone:
		return "timestamp without time zone"
	case KindTimeWithTimezone:
		return "time with time zone"
	case KindTimeWithoutTimezone:
		return "time without time zone"
	default:
		return "jsonb"
	}
}

func (d *postgresDialect) RawIDType() string     { return "character varying" }
func (d *postgresDialect) TimestampType() string { return "timestamp with time zone" }
func (d *postgresDialect) JSONType() string      { return "jsonb" }

// information_schema.columns.data_type reports exactly the names emitted above.
func (d *postgresDialect) TypesMatch(expected, observed string) bool {
	return strings.EqualFold(strings.TrimSpace(expected), strings.TrimSpace(observed))
}

func (d *postgresDialect) jsonField(field string) string {
	return fmt.Sprintf("(%s -> %s)", d.QuoteIdentifier(ColData), d.QuoteString(field))
}

func (d *postgresDialect) textField(field string) string {
	return fmt.Sprintf("(%s ->> %s)", d.QuoteIdentifier(ColData), d.QuoteString(field))
}

func (d *postgresDialect) safeCast(suffix, arg string) string {
	fn := d.QuoteIdentifier("_try_cast_" + suffix)
	if d.helperNamespace != "" {
		fn = d.QuoteIdentifier(d.helperNamespace) + "." + fn
	}
	return fmt.Sprintf("%s(%s)", fn, arg)
}

func (d *postgresDialect) TypedValue(field string, t FieldType) string {
	j := d.jsonField(field)
	txt := d.textField(field)
	switch t.Chosen().Kind {
	case KindString:
		return txt
	case KindInteger:
		return d.safeCast("bigint", txt)
	case KindNumber:
		return d.safeCast("numeric", txt)
	case KindBoolean:
		return d.safeCast("boolean", txt)
	case KindDate:
		return d.safeCast("date", txt)
	case KindTimestampWithTimezone:
		return d.safeCast("timestamptz", txt)
	case KindTimestampWithoutTimezone:
		return d.safeCast("timestamp", txt)
	case KindTimeWithTimezone:
		return d.safeCast("timetz", txt)
	case KindTimeWithoutTimezone:
		return d.safeCast("time", txt)
	case KindStruct:
		return fmt.Sprintf("CASE WHEN jsonb_typeof(%s) = 'object' THEN %s END", j, j)
	case KindArray:
		return fmt.Sprintf("CASE WHEN jsonb_typeof(%s) = 'array' THEN %s END", j, j)
	default:
		return j
	}
}

func (d *postgresDialect) IsPresent(field string) string {
	return fmt.Sprintf("COALESCE(jsonb_typeof(%s) <> 'null', false)", d.jsonField(field))
}

func (d *postgresDialect) IsTombstone(field string) string {
	return fmt.Sprintf("COALESCE(%s NOT IN ('null'::jsonb, 'false'::jsonb), false)", d.jsonField(field))
}

func (d *postgresDialect) MetaExpr(errs []metaError) string {
	meta := d.QuoteIdentifier(ColMeta)
	base := fmt.Sprintf("CASE WHEN jsonb_typeof(%s -> 'errors') = 'object' THEN %s -> 'errors' ELSE '{}'::jsonb END", meta, meta)
	parts := []string{base}
	for _, c := range chunk(errs, metaChunkSize) {
		parts = append(parts, fmt.Sprintf("jsonb_strip_nulls(jsonb_build_object(%s))", errorPairs(d, c)))
	}
	return fmt.Sprintf("jsonb_build_object('errors', %s)", strings.Join(parts, " || "))
}

func (d *postgresDialect) HasTypingErrors(metaColumn string) string {
	return fmt.Sprintf("(%s -> 'errors') <> '{}'::jsonb", d.QuoteIdentifier(metaColumn))
}

func (d *postgresDialect) ToJSON(expr string) string {
	return fmt.Sprintf("CAST(%s AS jsonb)", expr)
}

func (d *postgresDialect) NullSafeEqual(a, b string) string {
	return fmt.Sprintf("%s IS NOT DISTINCT FROM %s", a, b)
}

func (d *postgresDialect) CurrentTimestamp() string { return "CURRENT_TIMESTAMP" }

func (d *postgresDialect) SortableTimestamp(expr string) string { return expr }

func (d *postgresDialect) TimestampLiteral(t time.Time) string {
	return fmt.Sprintf("CAST('%s' AS timestamp with time zone)", t.UTC().Format("2006-01-02T15:04:05.000000Z07:00"))
}

func (d *postgresDialect) SessionPrelude() []string { return nil }

func (d *postgresDialect) SafeCastFunctions(namespace string) []string {
	out := make([]string, 0, len(postgresSafeCasts))
	for _, c := range postgresSafeCasts {
		fn := d.QuoteIdentifier("_try_cast_" + c.suffix)
		if namespace != "" {
			fn = d.QuoteIdentifier(namespace) + "." + fn
		}
		out = append(out, fmt.Sprintf(`CREATE OR REPLACE FUNCTION %s(v text) RETURNS %s AS $$
BEGIN
  RETURN v::%s;
EXCEPTION WHEN others THEN
  RETURN NULL;
END;
$$ LANGUAGE plpgsql STABLE`, fn, c.typ, c.typ))
	}
	return out
}
