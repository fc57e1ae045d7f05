package typing

import "fmt"

// CompareSchema lists why observed does not satisfy expected. Columns the
// engine does not manage are ignored; a missing column or one whose type the
// dialect does not consider equivalent is a mismatch. An empty result means
// the schemas match.
func CompareSchema(d Dialect, expected []ExpectedColumn, observed *ObservedSchema) []string {
	if observed == nil {
		return []string{"table does not exist"}
	}
	var reasons []string
	for _, e := range expected {
		got, ok := observed.Column(e.Name)
		if !ok {
			reasons = append(reasons, fmt.Sprintf("missing column %s (expected %s)", e.Name, e.Type))
			continue
		}
		if !d.TypesMatch(e.Type, got.Type) {
			reasons = append(reasons, fmt.Sprintf("column %s has type %s, expected %s", e.Name, got.Type, e.Type))
		}
	}
	return reasons
}
