package typing

import (
	"fmt"
	"sort"

	"github.com/arwahdevops/dbtyper/internal/config"
	"github.com/arwahdevops/dbtyper/internal/naming"
)

// Column names shared by raw and final tables.
const (
	ColRawID       = "_raw_id"
	ColExtractedAt = "_extracted_at"
	ColLoadedAt    = "_loaded_at"
	ColData        = "_data"
	ColMeta        = "_meta"

	// aliases used inside generated selects
	colRowNumber = "_row_number"
	colTombstone = "_is_tombstone"

	// columns of the legacy raw layout
	legacyColID        = "record_id"
	legacyColEmittedAt = "emitted_at"
	legacyColPayload   = "payload"

	// TmpTableSuffix names the blue/green table built during a soft reset.
	TmpTableSuffix = "_tdd_tmp"
	oldTableSuffix = "_tdd_old"
)

var reservedColumns = []string{ColRawID, ColExtractedAt, ColLoadedAt, ColData, ColMeta, colRowNumber, colTombstone}

type SyncMode string

const (
	SyncModeAppend SyncMode = "append"
	SyncModeDedup  SyncMode = "append_dedup"
)

// StreamID identifies a stream and every table name derived from it.
type StreamID struct {
	Namespace string
	Name      string

	FinalNamespace string
	FinalName      string
	RawNamespace   string
	RawName        string
	LegacyRawName  string // lives in FinalNamespace
}

func (id StreamID) String() string {
	if id.Namespace == "" {
		return id.Name
	}
	return id.Namespace + "." + id.Name
}

// Column is one typed column of the final table.
type Column struct {
	Field string // key in the raw payload
	Name  string // sanitized column name
	Type  FieldType
}

// StreamConfig is everything the engine knows about a stream's shape.
type StreamConfig struct {
	ID             StreamID
	SyncMode       SyncMode
	Columns        []Column
	PrimaryKey     []Column
	DeletionMarker string
}

// IsDedup reports whether the final table keeps one row per primary key.
func (s StreamConfig) IsDedup() bool {
	return s.SyncMode == SyncModeDedup && len(s.PrimaryKey) > 0
}

// NewStreamID derives table names for a stream using tr.
func NewStreamID(tr *naming.Transformer, rawNamespace, namespace, name string) StreamID {
	return StreamID{
		Namespace:      namespace,
		Name:           name,
		FinalNamespace: tr.Namespace(namespace),
		FinalName:      tr.FinalTableName(name),
		RawNamespace:   tr.Identifier(rawNamespace),
		RawName:        tr.RawTableName(namespace, name),
		LegacyRawName:  tr.LegacyRawTableName(name),
	}
}

// BuildStreams converts catalog declarations into stream configs. Columns are
// ordered by field name so generated SQL is stable across runs.
func BuildStreams(decls []config.CatalogStream, tr *naming.Transformer, rawNamespace string) ([]StreamConfig, error) {
	out := make([]StreamConfig, 0, len(decls))
	for _, d := range decls {
		sc, err := buildStream(d, tr, rawNamespace)
		if err != nil {
			return nil, fmt.Errorf("stream %s: %w", d.Key(), err)
		}
		out = append(out, sc)
	}
	return out, nil
}

func buildStream(d config.CatalogStream, tr *naming.Transformer, rawNamespace string) (StreamConfig, error) {
	root := ParseJSONSchema(d.JSONSchema)
	if root.Kind != KindStruct {
		return StreamConfig{}, fmt.Errorf("json_schema must describe an object, got %s", root)
	}

	fields := make([]string, 0, len(root.Properties))
	for f := range root.Properties {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	names := tr.ColumnNames(fields, reservedColumns)

	sc := StreamConfig{
		ID:             NewStreamID(tr, rawNamespace, d.Namespace, d.Name),
		SyncMode:       SyncModeAppend,
		DeletionMarker: d.DeletionMarker,
	}
	if d.SyncMode == config.SyncModeAppendDedup {
		sc.SyncMode = SyncModeDedup
	}

	byField := make(map[string]Column, len(fields))
	for _, f := range fields {
		c := Column{Field: f, Name: names[f], Type: root.Properties[f]}
		sc.Columns = append(sc.Columns, c)
		byField[f] = c
	}
	for _, pk := range d.PrimaryKey {
		c, ok := byField[pk]
		if !ok {
			return StreamConfig{}, fmt.Errorf("primary key field %q is not declared in json_schema", pk)
		}
		if c.Type.IsJSON() {
			return StreamConfig{}, fmt.Errorf("primary key field %q has non-scalar type %s", pk, c.Type)
		}
		sc.PrimaryKey = append(sc.PrimaryKey, c)
	}
	return sc, nil
}
