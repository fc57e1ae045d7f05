package typing

import "strings"

// ParseJSONSchema maps a JSON schema fragment onto a FieldType. Anything the
// parser does not understand becomes UNKNOWN and is stored as JSON.
func ParseJSONSchema(schema map[string]any) FieldType {
	if len(schema) == 0 {
		return Primitive(KindUnknown)
	}

	for _, key := range []string{"oneOf", "anyOf"} {
		if raw, ok := schema[key].([]any); ok {
			return unionOf(raw)
		}
	}

	switch typ := schema["type"].(type) {
	case string:
		return parseSingleType(typ, schema)
	case []any:
		var names []string
		for _, t := range typ {
			if s, ok := t.(string); ok && s != "null" {
				names = append(names, s)
			}
		}
		switch len(names) {
		case 0:
			return Primitive(KindUnknown)
		case 1:
			return parseSingleType(names[0], schema)
		default:
			opts := make([]FieldType, 0, len(names))
			for _, n := range names {
				opts = append(opts, parseSingleType(n, schema))
			}
			return FieldType{Kind: KindUnion, Options: opts}
		}
	}

	if _, ok := schema["properties"]; ok {
		return parseSingleType("object", schema)
	}
	return Primitive(KindUnknown)
}

func unionOf(raw []any) FieldType {
	opts := make([]FieldType, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok || isNullOnly(m) {
			continue
		}
		opts = append(opts, ParseJSONSchema(m))
	}
	switch len(opts) {
	case 0:
		return Primitive(KindUnknown)
	case 1:
		return opts[0]
	default:
		return FieldType{Kind: KindUnion, Options: opts}
	}
}

func isNullOnly(m map[string]any) bool {
	s, ok := m["type"].(string)
	return ok && s == "null"
}

func parseSingleType(name string, schema map[string]any) FieldType {
	switch strings.ToLower(name) {
	case "string":
		format, _ := schema["format"].(string)
		switch strings.ToLower(format) {
		case "date-time":
			return Primitive(KindTimestampWithTimezone)
		case "date-time-local":
			return Primitive(KindTimestampWithoutTimezone)
		case "date":
			return Primitive(KindDate)
		case "time":
			return Primitive(KindTimeWithTimezone)
		case "time-local":
			return Primitive(KindTimeWithoutTimezone)
		}
		return Primitive(KindString)
	case "integer":
		return Primitive(KindInteger)
	case "number":
		return Primitive(KindNumber)
	case "boolean":
		return Primitive(KindBoolean)
	case "object":
		props := map[string]FieldType{}
		if raw, ok := schema["properties"].(map[string]any); ok {
			for k, v := range raw {
				if m, ok := v.(map[string]any); ok {
					props[k] = ParseJSONSchema(m)
				} else {
					props[k] = Primitive(KindUnknown)
				}
			}
		}
		return FieldType{Kind: KindStruct, Properties: props}
	case "array":
		items := Primitive(KindUnknown)
		switch raw := schema["items"].(type) {
		case map[string]any:
			items = ParseJSONSchema(raw)
		case []any:
			items = unionOf(raw)
		}
		return FieldType{Kind: KindArray, Items: &items}
	default:
		return Primitive(KindUnknown)
	}
}
