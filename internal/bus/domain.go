package bus

import "strings"

// MatchDomain reports whether origin satisfies pattern.
// Pattern is Wildcard, empty (any), or an exact origin.
func MatchDomain(pattern, origin string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || pattern == Wildcard {
		return true
	}
	return pattern == strings.TrimSpace(origin)
}
