package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Sync modes accepted in the catalog.
const (
	SyncModeAppend      = "append"
	SyncModeAppendDedup = "append_dedup"
)

// Catalog is the declarative list of streams the engine maintains.
type Catalog struct {
	Streams []CatalogStream `yaml:"streams"`
}

// CatalogStream declares one stream: where its records live and how they are typed.
type CatalogStream struct {
	Namespace      string         `yaml:"namespace"`
	Name           string         `yaml:"name"`
	SyncMode       string         `yaml:"sync_mode"`
	PrimaryKey     []string       `yaml:"primary_key"`
	DeletionMarker string         `yaml:"deletion_marker"`
	JSONSchema     map[string]any `yaml:"json_schema"`
}

// Key returns "namespace.name", or just the name for namespace-less streams.
func (s CatalogStream) Key() string {
	if s.Namespace == "" {
		return s.Name
	}
	return s.Namespace + "." + s.Name
}

// LoadCatalog reads and validates a YAML catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	cat, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return cat, nil
}

// ParseCatalog decodes a catalog document. Unknown keys are rejected so typos
// in stream declarations fail loudly.
func ParseCatalog(data []byte) (*Catalog, error) {
	cat := &Catalog{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cat); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := cat.validate(); err != nil {
		return nil, err
	}
	return cat, nil
}

func (c *Catalog) validate() error {
	if len(c.Streams) == 0 {
		return errors.New("catalog declares no streams")
	}
	seen := make(map[string]bool, len(c.Streams))
	for i := range c.Streams {
		s := &c.Streams[i]
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("stream #%d has no name", i+1)
		}
		if seen[s.Key()] {
			return fmt.Errorf("stream %s declared more than once", s.Key())
		}
		seen[s.Key()] = true

		s.SyncMode = strings.ToLower(strings.TrimSpace(s.SyncMode))
		switch s.SyncMode {
		case "":
			s.SyncMode = SyncModeAppend
			if len(s.PrimaryKey) > 0 {
				s.SyncMode = SyncModeAppendDedup
			}
		case SyncModeAppend, SyncModeAppendDedup:
		default:
			return fmt.Errorf("stream %s: invalid sync_mode %q (valid: %s, %s)", s.Key(), s.SyncMode, SyncModeAppend, SyncModeAppendDedup)
		}
		if s.SyncMode == SyncModeAppendDedup && len(s.PrimaryKey) == 0 {
			return fmt.Errorf("stream %s: sync_mode %s requires primary_key", s.Key(), SyncModeAppendDedup)
		}
	}
	return nil
}

// Filter keeps the streams named in keys ("namespace.name"). An empty filter keeps all.
func (c *Catalog) Filter(keys []string) ([]CatalogStream, error) {
	if len(keys) == 0 {
		return c.Streams, nil
	}
	byKey := make(map[string]CatalogStream, len(c.Streams))
	for _, s := range c.Streams {
		byKey[s.Key()] = s
	}
	out := make([]CatalogStream, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		s, ok := byKey[k]
		if !ok {
			return nil, fmt.Errorf("stream %q is not declared in the catalog", k)
		}
		out = append(out, s)
	}
	return out, nil
}
