package domain

import (
	"sort"
	"strings"
)

// DefaultEndpointPatterns maps a literal path prefix to the number of dynamic
// segments that may follow it.
var DefaultEndpointPatterns = map[string]int{
	"/status":            1,
	"/basic-auth":        2,
	"/hidden-basic-auth": 2,
	"/digest-auth":       3,
	"/delay":             1,
	"/bytes":             1,
	"/stream":            1,
	"/redirect":          1,
	"/cookies/set":       2,
}

type endpointPattern struct {
	prefix   string
	segments []string
	arity    int
}

type Normalizer struct {
	patterns []endpointPattern
}

func NewNormalizer(table map[string]int) *Normalizer {
	patterns := make([]endpointPattern, 0, len(table))
	for prefix, arity := range table {
		prefix = trimTrailingSlash(prefix)
		segs := splitSegments(prefix)
		if len(segs) == 0 || arity <= 0 {
			continue
		}
		patterns = append(patterns, endpointPattern{prefix: prefix, segments: segs, arity: arity})
	}
	// longest prefix first, then lexical, so overlapping prefixes resolve the same way every run
	sort.Slice(patterns, func(i, j int) bool {
		if len(patterns[i].segments) != len(patterns[j].segments) {
			return len(patterns[i].segments) > len(patterns[j].segments)
		}
		return patterns[i].prefix < patterns[j].prefix
	})
	return &Normalizer{patterns: patterns}
}

func NewDefaultNormalizer() *Normalizer {
	return NewNormalizer(DefaultEndpointPatterns)
}

// Normalize collapses a raw request path to its canonical endpoint. Query
// strings and trailing slashes are dropped; a known prefix followed by up to
// arity dynamic segments collapses to the prefix. Anything else passes through.
func (n *Normalizer) Normalize(raw string) string {
	path, _, _ := strings.Cut(raw, "?")
	path = trimTrailingSlash(path)

	segs := splitSegments(path)
	for _, p := range n.patterns {
		rest := len(segs) - len(p.segments)
		if rest < 1 || rest > p.arity {
			continue
		}
		if hasSegmentPrefix(segs, p.segments) {
			return p.prefix
		}
	}
	return path
}

func trimTrailingSlash(path string) string {
	for len(path) > 1 && strings.HasSuffix(path, "/") {
		path = path[:len(path)-1]
	}
	return path
}

func splitSegments(path string) []string {
	if !strings.HasPrefix(path, "/") {
		return nil
	}
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func hasSegmentPrefix(segs, prefix []string) bool {
	for i, s := range prefix {
		if segs[i] != s {
			return false
		}
	}
	return true
}
