// Package project defines the shared project model for weftsync: stable
// project identity, document handles and file kinds, immutable project
// snapshots, the mutable state store the pipeline reads from and writes to,
// and the project dependency graph.
package project

import (
	"path/filepath"
	"runtime"
	"strings"
)

// Key is the stable identity of a project, derived from its build output
// directory. It is used as the cache and coalescing key throughout the
// pipeline. Comparison is case-insensitive on Windows and case-sensitive
// elsewhere; the folding happens once at construction so Key values are
// directly comparable.
type Key struct {
	id string
}

// NewKey derives a key from a project's build output directory.
func NewKey(outputDir string) Key {
	id := filepath.Clean(outputDir)
	if runtime.GOOS == "windows" {
		id = strings.ToLower(id)
	}
	return Key{id: id}
}

// Zero reports whether the key is the zero value.
func (k Key) Zero() bool {
	return k.id == ""
}

// String returns the normalized output directory backing the key.
func (k Key) String() string {
	return k.id
}

// MarshalText implements encoding.TextMarshaler so keys can appear in
// serialized project info.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Key) UnmarshalText(text []byte) error {
	*k = NewKey(string(text))
	return nil
}
