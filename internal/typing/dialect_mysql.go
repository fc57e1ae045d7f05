package typing

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/arwahdevops/dbtyper/internal/utils"
)

const (
	mysqlDecimalPrecision = 65
	mysqlDecimalScale     = 30
	mysqlIndexPrefix      = 255

	mysqlInt64Min = "-9223372036854775808"
	mysqlInt64Max = "9223372036854775807"
)

type mysqlDialect struct{}

func (d *mysqlDialect) Name() string { return "mysql" }

func (d *mysqlDialect) Capabilities() Capabilities {
	return Capabilities{
		NamespaceMode:       NamespaceDatabase,
		SupportsCascade:     false,
		NativeJSON:          true,
		SafeCast:            false,
		TransactionalDDL:    false,
		InlineIndexes:       true,
		MaxIdentifierLength: 64,
	}
}

func (d *mysqlDialect) QuoteIdentifier(name string) string { return utils.QuoteIdentifier(name, "mysql") }

func (d *mysqlDialect) QuoteString(s string) string { return utils.QuoteString(s, "mysql") }

func (d *mysqlDialect) Table(namespace, name string) string {
	if namespace == "" {
		return d.QuoteIdentifier(name)
	}
	return d.QuoteIdentifier(namespace) + "." + d.QuoteIdentifier(name)
}

func (d *mysqlDialect) CatalogLocation(namespace, name string) (string, string) {
	return namespace, name
}

func (d *mysqlDialect) CreateNamespace(namespace string) string {
	return "CREATE DATABASE IF NOT EXISTS " + d.QuoteIdentifier(namespace)
}

func (d *mysqlDialect) DropNamespace(namespace string) string {
	return "DROP DATABASE IF EXISTS " + d.QuoteIdentifier(namespace)
}

// RenameTables emits one RENAME TABLE statement, which MySQL applies atomically.
func (d *mysqlDialect) RenameTables(namespace string, renames []Rename) []string {
	if len(renames) == 0 {
		return nil
	}
	pairs := make([]string, 0, len(renames))
	for _, r := range renames {
		pairs = append(pairs, d.Table(namespace, r.From)+" TO "+d.Table(namespace, r.To))
	}
	return []string{"RENAME TABLE " + strings.Join(pairs, ", ")}
}

// IndexColumn adds a prefix length for text columns, which MySQL cannot index whole.
func (d *mysqlDialect) IndexColumn(c Column, columnType string) string {
	switch stripTypeArgs(columnType) {
	case "longtext", "text", "varchar":
		return fmt.Sprintf("%s(%d)", d.QuoteIdentifier(c.Name), mysqlIndexPrefix)
	}
	return d.QuoteIdentifier(c.Name)
}

func (d *mysqlDialect) ColumnType(t FieldType) string {
	switch t.Chosen().Kind {
	case KindString:
		return "longtext"
	case KindInteger:
		return "bigint"
	case KindNumber:
		return fmt.Sprintf("decimal(%d,%d)", mysqlDecimalPrecision, mysqlDecimalScale)
	case KindBoolean:
		return "boolean"
	case KindDate:
		return "date"
	case KindTimestampWithTimezone, KindTimestampWithoutTimezone:
		return "datetime(6)"
	case KindTimeWithoutTimezone:
		return "time(6)"
	case KindTimeWithTimezone:
		return "varchar(64)"
	default:
		return "json"
	}
}

func (d *mysqlDialect) RawIDType() string     { return "varchar(64)" }
func (d *mysqlDialect) TimestampType() string { return "datetime(6)" }
func (d *mysqlDialect) JSONType() string      { return "json" }

// TypesMatch compares against information_schema DATA_TYPE, which drops
// modifiers and reports BOOLEAN as tinyint.
func (d *mysqlDialect) TypesMatch(expected, observed string) bool {
	e := stripTypeArgs(expected)
	if e == "boolean" || e == "bool" {
		e = "tinyint"
	}
	return e == stripTypeArgs(observed)
}

// jsonPath quotes field as a single JSON path member.
func (d *mysqlDialect) jsonPath(field string) string {
	member := strings.ReplaceAll(field, `\`, `\\`)
	member = strings.ReplaceAll(member, `"`, `\"`)
	return d.QuoteString(`$."` + member + `"`)
}

func (d *mysqlDialect) jsonField(field string) string {
	return fmt.Sprintf("JSON_EXTRACT(%s, %s)", d.QuoteIdentifier(ColData), d.jsonPath(field))
}

// decimalBound is the exclusive magnitude limit of DECIMAL(precision, scale),
// rendered as a literal MySQL reads as DOUBLE.
func decimalBound(precision, scale int) string {
	return apd.New(1, int32(precision-scale)).String()
}

const (
	mysqlTimestampTZPattern = `^[0-9]{4}-[0-9]{2}-[0-9]{2}[T ][0-9]{2}:[0-9]{2}:[0-9]{2}(\\.[0-9]{1,6})?(Z|[+-][0-9]{2}:[0-9]{2})$`
	mysqlTimestampPattern   = `^[0-9]{4}-[0-9]{2}-[0-9]{2}[T ][0-9]{2}:[0-9]{2}:[0-9]{2}(\\.[0-9]{1,6})?`
	mysqlTimePattern        = `^[0-9]{2}:[0-9]{2}:[0-9]{2}(\\.[0-9]{1,6})?`
	mysqlNumberPattern      = `^-?[0-9]+(\\.[0-9]+)?([eE][-+]?[0-9]+)?$`
)

func (d *mysqlDialect) TypedValue(field string, t FieldType) string {
	j := d.jsonField(field)
	v := "JSON_UNQUOTE(" + j + ")"
	jt := "JSON_TYPE(" + j + ")"
	switch t.Chosen().Kind {
	case KindString:
		return fmt.Sprintf("CASE WHEN %s = 'NULL' THEN NULL ELSE %s END", jt, v)
	case KindInteger:
		return fmt.Sprintf("CASE WHEN %s IN ('INTEGER', 'UNSIGNED INTEGER', 'STRING') AND %s REGEXP '^-?[0-9]{1,19}$' AND CAST(%s AS DECIMAL(65,0)) BETWEEN %s AND %s THEN CAST(%s AS SIGNED) END",
			jt, v, v, mysqlInt64Min, mysqlInt64Max, v)
	case KindNumber:
		return fmt.Sprintf("CASE WHEN %s IN ('INTEGER', 'UNSIGNED INTEGER', 'DECIMAL', 'DOUBLE', 'STRING') AND %s REGEXP '%s' AND ABS(CAST(%s AS DOUBLE)) < %s THEN CAST(%s AS DECIMAL(%d,%d)) END",
			jt, v, mysqlNumberPattern, v, decimalBound(mysqlDecimalPrecision, mysqlDecimalScale), v, mysqlDecimalPrecision, mysqlDecimalScale)
	case KindBoolean:
		return fmt.Sprintf("CASE WHEN %s = 'BOOLEAN' THEN %s = 'true' WHEN %s = 'STRING' AND LOWER(%s) IN ('true', 'false') THEN LOWER(%s) = 'true' END",
			jt, v, jt, v, v)
	case KindDate:
		return fmt.Sprintf("CASE WHEN %s = 'STRING' AND %s REGEXP '^[0-9]{4}-[0-9]{2}-[0-9]{2}$' THEN CAST(%s AS DATE) END", jt, v, v)
	case KindTimestampWithTimezone:
		return fmt.Sprintf("CASE WHEN %s = 'STRING' AND %s REGEXP '%s' THEN CONVERT_TZ(CAST(REPLACE(REGEXP_SUBSTR(%s, '%s'), 'T', ' ') AS DATETIME(6)), IF(RIGHT(%s, 1) = 'Z', '+00:00', RIGHT(%s, 6)), '+00:00') END",
			jt, v, mysqlTimestampTZPattern, v, mysqlTimestampPattern, v, v)
	case KindTimestampWithoutTimezone:
		return fmt.Sprintf("CASE WHEN %s = 'STRING' AND %s REGEXP '%s$' THEN CAST(REPLACE(%s, 'T', ' ') AS DATETIME(6)) END",
			jt, v, mysqlTimestampPattern, v)
	case KindTimeWithoutTimezone:
		return fmt.Sprintf("CASE WHEN %s = 'STRING' AND %s REGEXP '%s$' THEN CAST(%s AS TIME(6)) END", jt, v, mysqlTimePattern, v)
	case KindTimeWithTimezone:
		return fmt.Sprintf("CASE WHEN %s = 'STRING' AND %s REGEXP '%s(Z|[+-][0-9]{2}:[0-9]{2})$' THEN %s END", jt, v, mysqlTimePattern, v)
	case KindStruct:
		return fmt.Sprintf("CASE WHEN %s = 'OBJECT' THEN %s END", jt, j)
	case KindArray:
		return fmt.Sprintf("CASE WHEN %s = 'ARRAY' THEN %s END", jt, j)
	default:
		return j
	}
}

func (d *mysqlDialect) IsPresent(field string) string {
	return fmt.Sprintf("COALESCE(JSON_TYPE(%s) <> 'NULL', FALSE)", d.jsonField(field))
}

// IsTombstone is true for any present value except JSON null and boolean false.
func (d *mysqlDialect) IsTombstone(field string) string {
	j := d.jsonField(field)
	return fmt.Sprintf("COALESCE(JSON_TYPE(%[1]s) <> 'NULL' AND NOT (JSON_TYPE(%[1]s) = 'BOOLEAN' AND JSON_UNQUOTE(%[1]s) = 'false'), FALSE)", j)
}

func (d *mysqlDialect) MetaExpr(errs []metaError) string {
	meta := d.QuoteIdentifier(ColMeta)
	existing := fmt.Sprintf("JSON_EXTRACT(%s, '$.errors')", meta)
	base := fmt.Sprintf("IF(COALESCE(JSON_TYPE(%s) = 'OBJECT', FALSE), %s, JSON_OBJECT())", existing, existing)
	chunks := chunk(errs, metaChunkSize)
	if len(chunks) == 0 {
		return fmt.Sprintf("JSON_OBJECT('errors', %s)", base)
	}
	parts := []string{base}
	for _, c := range chunks {
		parts = append(parts, fmt.Sprintf("JSON_OBJECT(%s)", errorPairs(d, c)))
	}
	return fmt.Sprintf("JSON_OBJECT('errors', JSON_MERGE_PATCH(%s))", strings.Join(parts, ", "))
}

func (d *mysqlDialect) HasTypingErrors(metaColumn string) string {
	return fmt.Sprintf("COALESCE(JSON_LENGTH(%s, '$.errors'), 0) > 0", d.QuoteIdentifier(metaColumn))
}

func (d *mysqlDialect) ToJSON(expr string) string {
	return fmt.Sprintf("CAST(%s AS JSON)", expr)
}

func (d *mysqlDialect) NullSafeEqual(a, b string) string {
	return fmt.Sprintf("%s <=> %s", a, b)
}

func (d *mysqlDialect) CurrentTimestamp() string { return "UTC_TIMESTAMP(6)" }

func (d *mysqlDialect) SortableTimestamp(expr string) string { return expr }

func (d *mysqlDialect) TimestampLiteral(t time.Time) string {
	return fmt.Sprintf("CAST('%s' AS DATETIME(6))", t.UTC().Format("2006-01-02 15:04:05.000000"))
}

// SessionPrelude relaxes strict mode so a failed cast yields NULL (recorded as a
// typing error) instead of aborting the whole INSERT ... SELECT.
func (d *mysqlDialect) SessionPrelude() []string {
	return []string{"SET SESSION sql_mode = 'NO_ENGINE_SUBSTITUTION'"}
}

func (d *mysqlDialect) SafeCastFunctions(string) []string { return nil }
