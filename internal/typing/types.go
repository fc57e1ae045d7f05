package typing

import "strings"

// Kind is the logical type of a declared field.
type Kind string

const (
	KindString                   Kind = "STRING"
	KindNumber                   Kind = "NUMBER"
	KindInteger                  Kind = "INTEGER"
	KindBoolean                  Kind = "BOOLEAN"
	KindTimestampWithTimezone    Kind = "TIMESTAMP_WITH_TIMEZONE"
	KindTimestampWithoutTimezone Kind = "TIMESTAMP_WITHOUT_TIMEZONE"
	KindTimeWithTimezone         Kind = "TIME_WITH_TIMEZONE"
	KindTimeWithoutTimezone      Kind = "TIME_WITHOUT_TIMEZONE"
	KindDate                     Kind = "DATE"
	KindStruct                   Kind = "STRUCT"
	KindArray                    Kind = "ARRAY"
	KindUnion                    Kind = "UNION"
	KindUnknown                  Kind = "UNKNOWN"
)

// FieldType describes a field of the record payload. Struct, Array and Union
// carry nested types; every other kind is a leaf.
type FieldType struct {
	Kind       Kind
	Properties map[string]FieldType // KindStruct
	Items      *FieldType           // KindArray
	Options    []FieldType          // KindUnion
}

func Primitive(k Kind) FieldType { return FieldType{Kind: k} }

// unionPrecedence orders union members from most to least specific. The
// first member present wins.
var unionPrecedence = []Kind{
	KindStruct,
	KindArray,
	KindTimestampWithTimezone,
	KindTimestampWithoutTimezone,
	KindTimeWithTimezone,
	KindTimeWithoutTimezone,
	KindDate,
	KindInteger,
	KindNumber,
	KindBoolean,
	KindString,
}

// Chosen resolves a union to the single type used for the column. Non-union
// types return themselves.
func (t FieldType) Chosen() FieldType {
	if t.Kind != KindUnion {
		return t
	}
	if len(t.Options) == 0 {
		return Primitive(KindUnknown)
	}
	for _, k := range unionPrecedence {
		for _, opt := range t.Options {
			c := opt.Chosen()
			if c.Kind == k {
				return c
			}
		}
	}
	return Primitive(KindUnknown)
}

// IsJSON reports whether values of this type are stored as JSON documents.
func (t FieldType) IsJSON() bool {
	switch t.Chosen().Kind {
	case KindStruct, KindArray, KindUnknown:
		return true
	default:
		return false
	}
}

func (t FieldType) String() string {
	switch t.Kind {
	case KindArray:
		if t.Items != nil {
			return "ARRAY<" + t.Items.String() + ">"
		}
	case KindUnion:
		parts := make([]string, 0, len(t.Options))
		for _, o := range t.Options {
			parts = append(parts, o.String())
		}
		return "UNION<" + strings.Join(parts, ",") + ">"
	}
	return string(t.Kind)
}
