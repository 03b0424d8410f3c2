// Package strings normalizes the comma-separated lists that arrive in query
// parameters, environment variables and CLI flags.
package strings

import (
	"strings"
)

// SplitList splits every value on commas, trims the parts and drops empty
// and repeated ones. Order of first appearance is preserved; no input yields
// nil.
//
// Example:
//
//	SplitList("draft, active", "active", " ")
//	// Returns: []string{"draft", "active"}
func SplitList(values ...string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, dup := seen[part]; dup {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}
	return out
}

// SplitListLower is SplitList with each part lowercased first, for
// case-insensitive values such as lifecycle states.
func SplitListLower(values ...string) []string {
	lowered := make([]string, len(values))
	for i, v := range values {
		lowered[i] = strings.ToLower(v)
	}
	return SplitList(lowered...)
}
