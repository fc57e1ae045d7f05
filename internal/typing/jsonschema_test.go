package typing

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSONSchemaPrimitives(t *testing.T) {
	testCases := []struct {
		name     string
		schema   map[string]any
		expected Kind
	}{
		{"empty", map[string]any{}, KindUnknown},
		{"string", map[string]any{"type": "string"}, KindString},
		{"date-time", map[string]any{"type": "string", "format": "date-time"}, KindTimestampWithTimezone},
		{"date-time-local", map[string]any{"type": "string", "format": "date-time-local"}, KindTimestampWithoutTimezone},
		{"date", map[string]any{"type": "string", "format": "date"}, KindDate},
		{"time", map[string]any{"type": "string", "format": "time"}, KindTimeWithTimezone},
		{"time-local", map[string]any{"type": "string", "format": "time-local"}, KindTimeWithoutTimezone},
		{"unknown format", map[string]any{"type": "string", "format": "email"}, KindString},
		{"integer", map[string]any{"type": "integer"}, KindInteger},
		{"number", map[string]any{"type": "number"}, KindNumber},
		{"boolean", map[string]any{"type": "boolean"}, KindBoolean},
		{"nullable integer", map[string]any{"type": []any{"null", "integer"}}, KindInteger},
		{"only null", map[string]any{"type": []any{"null"}}, KindUnknown},
		{"unsupported type", map[string]any{"type": "tuple"}, KindUnknown},
		{"properties without type", map[string]any{"properties": map[string]any{}}, KindStruct},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ParseJSONSchema(tc.schema).Kind)
		})
	}
}

func TestParseJSONSchemaNested(t *testing.T) {
	ft := ParseJSONSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tags":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"address": map[string]any{"type": "object", "properties": map[string]any{"zip": map[string]any{"type": "string"}}},
			"weird":   "not a schema",
		},
	})
	require.Equal(t, KindStruct, ft.Kind)
	require.Contains(t, ft.Properties, "tags")

	tags := ft.Properties["tags"]
	assert.Equal(t, KindArray, tags.Kind)
	require.NotNil(t, tags.Items)
	assert.Equal(t, KindString, tags.Items.Kind)
	assert.Equal(t, "ARRAY<STRING>", tags.String())

	assert.Equal(t, KindStruct, ft.Properties["address"].Kind)
	assert.Equal(t, KindUnknown, ft.Properties["weird"].Kind)
	assert.True(t, ft.Properties["address"].IsJSON())
}

func TestParseJSONSchemaUnions(t *testing.T) {
	multi := ParseJSONSchema(map[string]any{"type": []any{"string", "integer", "null"}})
	require.Equal(t, KindUnion, multi.Kind)
	assert.Len(t, multi.Options, 2)
	assert.Equal(t, KindInteger, multi.Chosen().Kind, "integer outranks string")
	assert.Equal(t, "UNION<STRING,INTEGER>", multi.String())

	oneOf := ParseJSONSchema(map[string]any{"oneOf": []any{
		map[string]any{"type": "null"},
		map[string]any{"type": "number"},
	}})
	assert.Equal(t, KindNumber, oneOf.Kind, "a single non-null option collapses")

	anyOf := ParseJSONSchema(map[string]any{"anyOf": []any{
		map[string]any{"type": "string"},
		map[string]any{"type": "object"},
	}})
	assert.Equal(t, KindStruct, anyOf.Chosen().Kind)
	assert.True(t, anyOf.IsJSON())

	assert.Equal(t, KindUnknown, FieldType{Kind: KindUnion}.Chosen().Kind)
}

func TestChosenProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	leaves := []Kind{
		KindString, KindNumber, KindInteger, KindBoolean, KindDate,
		KindTimestampWithTimezone, KindTimestampWithoutTimezone,
		KindTimeWithTimezone, KindTimeWithoutTimezone, KindStruct, KindArray,
	}
	union := func(idx []int) FieldType {
		u := FieldType{Kind: KindUnion}
		for _, i := range idx {
			u.Options = append(u.Options, Primitive(leaves[i]))
		}
		return u
	}
	genIdx := gen.SliceOfN(4, gen.IntRange(0, len(leaves)-1))

	properties.Property("chosen type is never a union", prop.ForAll(
		func(idx []int) bool {
			return union(idx).Chosen().Kind != KindUnion
		},
		genIdx,
	))

	properties.Property("chosen type is one of the options", prop.ForAll(
		func(idx []int) bool {
			u := union(idx)
			if len(u.Options) == 0 {
				return true
			}
			c := u.Chosen().Kind
			for _, o := range u.Options {
				if o.Kind == c {
					return true
				}
			}
			return false
		},
		genIdx,
	))

	properties.Property("option order does not matter", prop.ForAll(
		func(idx []int) bool {
			reversed := make([]int, len(idx))
			for i := range idx {
				reversed[len(idx)-1-i] = idx[i]
			}
			return union(idx).Chosen().Kind == union(reversed).Chosen().Kind
		},
		genIdx,
	))

	properties.TestingRun(t)
}
