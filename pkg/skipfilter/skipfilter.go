// Package skipfilter decides whether a request should bypass retrieval
// entirely based on a configured list of substrings. The match function is
// isolated from its callers so a future regex variant can be introduced
// without touching call sites.
package skipfilter

import "strings"

// Filter holds a case-insensitive substring skip-list.
type Filter struct {
	patterns []string
}

// New builds a Filter from a list of patterns. Patterns are lower-cased
// once at construction so Matches doesn't repeat the work per call.
func New(patterns []string) *Filter {
	lowered := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p == "" {
			continue
		}
		lowered = append(lowered, strings.ToLower(p))
	}
	return &Filter{patterns: lowered}
}

// Matches reports whether text should be skipped, i.e. whether any
// configured pattern occurs as a case-insensitive substring of text.
func (f *Filter) Matches(text string) bool {
	if f == nil || len(f.patterns) == 0 {
		return false
	}
	return matchAny(strings.ToLower(text), f.patterns)
}

// matchAny is the isolated match primitive, the one place that would
// change if patterns grew regex support.
func matchAny(lowered string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(lowered, p) {
			return true
		}
	}
	return false
}
