package catalog

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
)

// Catalog maps model names to pricing records. Records are opaque JSON
// values, almost always objects, and are never interpreted beyond what the
// individual pipeline stages need. Numbers decode as json.Number so upstream
// literals survive a round trip byte for byte.
type Catalog map[string]any

// Decode reads a single JSON document whose top-level value is an object.
// Trailing data after the document is an error.
func Decode(r io.Reader) (Catalog, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decoding JSON: %w", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("top-level JSON value is %T, want object", v)
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON document")
	}
	return Catalog(obj), nil
}

// Load reads an existing catalog file. A missing file is not an error: the
// first sync of a fresh checkout starts from an empty catalog.
func Load(path string) (Catalog, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		slog.Info("no existing catalog, starting fresh", "path", path)
		return Catalog{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	defer f.Close()

	cat, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("parsing catalog %s: %w", path, err)
	}
	return cat, nil
}

// Encode renders the catalog in canonical form: recursively sorted keys,
// two-space indent, a single trailing newline, HTML escaping off. Equal
// catalogs always produce identical bytes, which is what makes the content
// hash a reliable change signal.
func Encode(c Catalog) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any(c)); err != nil {
		return nil, fmt.Errorf("encoding catalog: %w", err)
	}
	return buf.Bytes(), nil
}

// ContentHash returns the SHA-256 hex digest of canonical catalog bytes.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Clone returns a deep copy. Stages that mutate records in place operate on
// clones so the caller's catalog stays untouched.
func (c Catalog) Clone() Catalog {
	out := make(Catalog, len(c))
	for name, v := range c {
		out[name] = DeepCopyValue(v)
	}
	return out
}

// SortedNames returns model names in lexical order for deterministic
// iteration and reporting.
func (c Catalog) SortedNames() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DeepCopyValue copies a decoded JSON value tree. Scalars (string, bool,
// json.Number, nil) are immutable and shared.
func DeepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = DeepCopyValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = DeepCopyValue(val)
		}
		return out
	default:
		return v
	}
}

// AsRecord reports whether a catalog value is an object record.
func AsRecord(v any) (map[string]any, bool) {
	rec, ok := v.(map[string]any)
	return rec, ok
}
