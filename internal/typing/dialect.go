package typing

import (
	"fmt"
	"strings"
	"time"
)

// NamespaceMode describes how a destination groups tables.
type NamespaceMode int

const (
	// NamespaceSchema: namespaces are schemas inside one database.
	NamespaceSchema NamespaceMode = iota
	// NamespaceDatabase: the destination has no schemas, a namespace is a database.
	NamespaceDatabase
	// NamespaceFlatten: no namespaces at all, the namespace is folded into the table name.
	NamespaceFlatten
)

// Capabilities is the feature descriptor the SQL builder branches on.
type Capabilities struct {
	NamespaceMode       NamespaceMode
	SupportsCascade     bool // DROP ... CASCADE
	NativeJSON          bool // JSON column type with validation on write
	SafeCast            bool // casts go through installed non-throwing helper functions
	TransactionalDDL    bool // DROP/RENAME roll back with the transaction
	InlineIndexes       bool // indexes are declared inside CREATE TABLE
	MaxIdentifierLength int
}

// Rename is one table rename inside a namespace.
type Rename struct {
	From, To string
}

// metaError is one entry of the typing-error object written to _meta.
type metaError struct {
	Field     string
	Condition string // SQL boolean, true when the field failed to cast
	Message   string
}

// Dialect renders the destination-specific fragments of generated SQL.
type Dialect interface {
	Name() string
	Capabilities() Capabilities

	QuoteIdentifier(name string) string
	QuoteString(s string) string
	// Table renders a qualified table reference.
	Table(namespace, name string) string
	// CatalogLocation maps a namespace/table pair onto the catalog's schema and table name.
	CatalogLocation(namespace, name string) (schema, table string)

	CreateNamespace(namespace string) string
	DropNamespace(namespace string) string
	RenameTables(namespace string, renames []Rename) []string
	IndexColumn(c Column, columnType string) string

	// Column types.
	ColumnType(t FieldType) string
	RawIDType() string
	TimestampType() string
	JSONType() string
	// TypesMatch compares a column type this dialect emits with the type the catalog reports.
	TypesMatch(expected, observed string) bool

	// Typing expressions over the raw payload column.
	TypedValue(field string, t FieldType) string
	IsPresent(field string) string
	IsTombstone(field string) string
	MetaExpr(errs []metaError) string
	HasTypingErrors(metaColumn string) string
	ToJSON(expr string) string

	NullSafeEqual(a, b string) string
	CurrentTimestamp() string
	TimestampLiteral(t time.Time) string
	// SortableTimestamp renders a timestamp column so that comparisons and
	// ORDER BY follow time order.
	SortableTimestamp(expr string) string
	// SessionPrelude statements run at the start of every typing transaction.
	SessionPrelude() []string
	// SafeCastFunctions installs helper functions; only called when Capabilities().SafeCast.
	SafeCastFunctions(namespace string) []string
}

// NewDialect returns the dialect for name. helperNamespace is where safe-cast
// helpers live (the raw namespace).
func NewDialect(name, helperNamespace string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "postgres":
		return &postgresDialect{helperNamespace: helperNamespace}, nil
	case "mysql":
		return &mysqlDialect{}, nil
	case "sqlite":
		return &sqliteDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", name)
	}
}

// chunk splits errs so no single JSON constructor call exceeds the
// destination's function argument limit.
func chunk(errs []metaError, size int) [][]metaError {
	var out [][]metaError
	for len(errs) > size {
		out = append(out, errs[:size])
		errs = errs[size:]
	}
	if len(errs) > 0 {
		out = append(out, errs)
	}
	return out
}

const metaChunkSize = 40

// errorPairs renders `'field', CASE WHEN cond THEN 'msg' END` argument lists.
func errorPairs(d Dialect, errs []metaError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, fmt.Sprintf("%s, CASE WHEN %s THEN %s END",
			d.QuoteString(e.Field), e.Condition, d.QuoteString(e.Message)))
	}
	return strings.Join(parts, ", ")
}

// stripTypeArgs lowercases a type name and drops any "(...)" modifier.
func stripTypeArgs(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}
