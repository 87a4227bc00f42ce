package common

import "strings"

// HasAny reports whether s contains any of subs. No subs never matches.
func HasAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
