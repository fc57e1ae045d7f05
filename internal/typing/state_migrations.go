package typing

import (
	"encoding/json"
	"fmt"
)

// MinimalState is the small per-stream blob carried between syncs.
type MinimalState struct {
	Version           int  `json:"version"`
	NeedsSoftReset    bool `json:"needs_soft_reset"`
	LegacyRawMigrated bool `json:"legacy_raw_migrated"`
	RawMetaPresent    bool `json:"raw_meta_present"`
}

type stateMigration struct {
	name  string
	apply func(blob map[string]any) error
}

// stateMigrations upgrade a blob from version i to i+1. Append only; never
// reorder or edit a released entry.
var stateMigrations = []stateMigration{
	{name: "initial", apply: migrateInitial},
	{name: "raw meta tracking", apply: migrateRawMetaTracking},
}

// CurrentStateVersion is the version every loaded blob is upgraded to.
func CurrentStateVersion() int { return len(stateMigrations) }

// Older releases wrote booleans as strings.
func migrateInitial(blob map[string]any) error {
	for _, key := range []string{"needs_soft_reset", "legacy_raw_migrated"} {
		if err := normalizeBool(blob, key); err != nil {
			return err
		}
	}
	return nil
}

func migrateRawMetaTracking(blob map[string]any) error {
	return normalizeBool(blob, "raw_meta_present")
}

func normalizeBool(blob map[string]any, key string) error {
	switch v := blob[key].(type) {
	case nil:
		blob[key] = false
	case bool:
	case string:
		switch v {
		case "true":
			blob[key] = true
		case "false":
			blob[key] = false
		default:
			return fmt.Errorf("field %s: cannot interpret %q as a boolean", key, v)
		}
	default:
		return fmt.Errorf("field %s: unexpected type %T", key, v)
	}
	return nil
}

// migrateState applies every pending migration to raw in order. It returns the
// upgraded blob and whether anything changed.
func migrateState(stream string, raw []byte) (MinimalState, bool, error) {
	blob := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &blob); err != nil {
			return MinimalState{}, false, &MigrationError{Stream: stream, Err: fmt.Errorf("state blob is not a JSON object: %w", err)}
		}
	}

	version := 0
	switch v := blob["version"].(type) {
	case nil:
	case float64:
		version = int(v)
	default:
		return MinimalState{}, false, &MigrationError{Stream: stream, Err: fmt.Errorf("version has type %T", v)}
	}
	if version < 0 || version > CurrentStateVersion() {
		return MinimalState{}, false, &MigrationError{Stream: stream, Version: version,
			Err: fmt.Errorf("unsupported state version (this release understands up to %d)", CurrentStateVersion())}
	}

	changed := false
	for v := version; v < CurrentStateVersion(); v++ {
		m := stateMigrations[v]
		if err := m.apply(blob); err != nil {
			return MinimalState{}, false, &MigrationError{Stream: stream, Version: v + 1, Err: fmt.Errorf("%s: %w", m.name, err)}
		}
		blob["version"] = float64(v + 1)
		changed = true
	}

	upgraded, err := json.Marshal(blob)
	if err != nil {
		return MinimalState{}, false, &MigrationError{Stream: stream, Version: CurrentStateVersion(), Err: err}
	}
	var st MinimalState
	if err := json.Unmarshal(upgraded, &st); err != nil {
		return MinimalState{}, false, &MigrationError{Stream: stream, Version: CurrentStateVersion(), Err: err}
	}
	return st, changed, nil
}
