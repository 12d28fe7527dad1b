// Package lpm implements longest-prefix package matching.
//
// A population of known package paths (workspace members, lockfile entries,
// remote package indexes) is probed with a directory and each of its
// ancestors, deepest first. The first hit is the most specific package that
// owns the path. Every resolution tier goes through this one implementation.
package lpm

import "strings"

// Lookup reports whether candidate is a known package path and returns the
// value associated with it.
type Lookup[V any] func(candidate string) (V, bool)

// MatchFile strips the trailing filename from filePath and matches the
// remaining directory with MatchDir.
func MatchFile[V any](filePath string, lookup Lookup[V]) (string, V, bool) {
	return MatchDir(parent(strings.Trim(filePath, "/")), lookup)
}

// MatchDir tests dir, then each "/"-delimited ancestor of dir, ending with the
// empty string. It returns the first candidate lookup accepts.
func MatchDir[V any](dir string, lookup Lookup[V]) (string, V, bool) {
	candidate := strings.Trim(dir, "/")
	for {
		if v, ok := lookup(candidate); ok {
			return candidate, v, true
		}
		if candidate == "" {
			var zero V
			return "", zero, false
		}
		candidate = parent(candidate)
	}
}

// MapLookup adapts a map to a Lookup.
func MapLookup[V any](m map[string]V) Lookup[V] {
	return func(candidate string) (V, bool) {
		v, ok := m[candidate]
		return v, ok
	}
}

func parent(p string) string {
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return ""
	}
	return p[:idx]
}
