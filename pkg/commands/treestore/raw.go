package treestore

import (
	"context"
	"sort"
	"strings"

	"github.com/ryanuber/go-glob"

	"aphorist/pkg/commands"
)

// Keys enumerates logical keys matching a glob pattern. The underlying
// store has no pattern primitive, so this is a full scan over every
// structure namespace: documented as potentially slow, never silently
// partial.
func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	seen := map[string]struct{}{}
	var decodeErr error
	for _, ns := range []string{nsScalar, nsHash, nsList, nsSet, nsZSet} {
		err := s.scanPrefix("keys", []byte(ns), func(suffix string, _ []byte) bool {
			path := suffix
			if i := strings.Index(path, elemSep); i >= 0 {
				path = path[:i]
			}
			logical, err := keyFor(path)
			if err != nil {
				decodeErr = err
				return false
			}
			if glob.Glob(pattern, logical) {
				seen[logical] = struct{}{}
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		if decodeErr != nil {
			return nil, decodeErr
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// RawPathAccessor: the privileged subtree escape hatch used by migration.
// Paths are physical store keys in the documented layout; no escaping or
// namespace mapping is applied.

func (s *Store) ListPaths(ctx context.Context, prefix string) ([]commands.RawPath, error) {
	var out []commands.RawPath
	err := s.scanPrefix("listpaths", []byte(prefix), func(suffix string, value []byte) bool {
		out = append(out, commands.RawPath{Path: prefix + suffix, Value: string(value)})
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetPath(ctx context.Context, path string) (string, bool, error) {
	v, ok, err := s.get("getpath", []byte(path))
	if err != nil || !ok {
		return "", false, err
	}
	return string(v), true, nil
}

func (s *Store) SetPath(ctx context.Context, path, value string) error {
	return s.set("setpath", []byte(path), []byte(value))
}

func (s *Store) DeletePath(ctx context.Context, path string) error {
	return s.delete("deletepath", []byte(path))
}

// ScalarPathPrefix returns the physical prefix under which scalars for a
// logical key prefix live. Diagnostics tooling and migration use it instead
// of hand-building namespace strings.
func ScalarPathPrefix(keyPrefix string) string {
	return nsScalar + pathFor(keyPrefix)
}

// ScalarPath returns the physical path of one logical scalar key.
func ScalarPath(key string) string {
	return string(scalarKey(key))
}

// LogicalKeyOfScalarPath recovers the logical key from a physical scalar
// path, failing with a keys.DecodeError on malformed segments.
func LogicalKeyOfScalarPath(path string) (string, error) {
	return keyFor(strings.TrimPrefix(path, nsScalar))
}
