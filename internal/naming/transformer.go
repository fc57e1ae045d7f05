// Package naming turns catalog names into identifiers every supported
// destination accepts unquoted-safe: lowercase ASCII, digits and underscores,
// bounded by the dialect's identifier length.
package naming

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/spaolacci/murmur3"
	"golang.org/x/text/unicode/norm"
)

const hashSuffixLen = 9 // "_" + 8 hex chars

// TableSuffixReserve is the room final table names leave for the suffixes of
// soft reset work tables.
const TableSuffixReserve = 8

// Transformer sanitizes stream and field names for one destination.
type Transformer struct {
	maxLen int
}

// minMaxLen keeps room for a hash suffix after the final table reserve.
const minMaxLen = hashSuffixLen + 1 + TableSuffixReserve

// NewTransformer returns a Transformer truncating identifiers to maxLen bytes.
// maxLen values below minMaxLen are raised to it.
func NewTransformer(maxLen int) *Transformer {
	if maxLen < minMaxLen {
		maxLen = minMaxLen
	}
	return &Transformer{maxLen: maxLen}
}

// MaxLength is the identifier length limit applied by Identifier.
func (t *Transformer) MaxLength() int { return t.maxLen }

// Identifier sanitizes an arbitrary name. Accents are folded (NFKD, marks
// dropped), anything outside [a-z0-9_] becomes "_", a leading digit gets an
// underscore prefix. Over-long results keep a prefix and a murmur3 hash of the
// original name, so distinct long names stay distinct.
func (t *Transformer) Identifier(name string) string {
	return t.bounded(name, t.maxLen)
}

func (t *Transformer) bounded(name string, limit int) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range norm.NFKD.String(name) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		r = unicode.ToLower(r)
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" {
		out = "_"
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	if len(out) > limit {
		out = fmt.Sprintf("%s_%08x", out[:limit-hashSuffixLen], murmur3.Sum32([]byte(name)))
	}
	return out
}

// Namespace sanitizes a namespace. An empty namespace stays empty so the
// destination default applies.
func (t *Transformer) Namespace(namespace string) string {
	if namespace == "" {
		return ""
	}
	return t.Identifier(namespace)
}

// FinalTableName is the sanitized stream name, kept TableSuffixReserve bytes
// under the limit so "<final>_tdd_tmp" is never truncated onto the final table.
func (t *Transformer) FinalTableName(name string) string {
	return t.bounded(name, t.maxLen-TableSuffixReserve)
}

// RawTableName is the raw table name inside the shared raw namespace. The
// stream namespace is folded in so equal stream names from different
// namespaces do not collide.
func (t *Transformer) RawTableName(namespace, name string) string {
	return t.Identifier(namespace + "_raw__stream_" + name)
}

// LegacyRawTableName is the pre-migration raw table, kept next to the final table.
func (t *Transformer) LegacyRawTableName(name string) string {
	return t.Identifier("_raw_" + name)
}

// ColumnNames maps each field to a unique column name. Fields are processed in
// order; a name already taken (or listed in reserved) gets a numeric suffix.
func (t *Transformer) ColumnNames(fields []string, reserved []string) map[string]string {
	used := make(map[string]bool, len(fields)+len(reserved))
	for _, r := range reserved {
		used[r] = true
	}
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		base := t.Identifier(f)
		candidate := base
		for i := 1; used[candidate]; i++ {
			suffix := fmt.Sprintf("_%d", i)
			if len(base)+len(suffix) > t.maxLen {
				candidate = base[:t.maxLen-len(suffix)] + suffix
			} else {
				candidate = base + suffix
			}
		}
		used[candidate] = true
		out[f] = candidate
	}
	return out
}
