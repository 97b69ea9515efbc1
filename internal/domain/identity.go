package domain

import "strings"

// NormalizeNumber canonicalizes a phone number or JID to its bare digits:
// strips whitespace, a leading "+", the device part after ":" and any
// "@server" suffix. Configured whitelist numbers and wire-format sender
// IDs both go through this, so the same user maps to the same store key
// no matter which JID form a message arrived with.
func NormalizeNumber(s string) string {
	if i := strings.IndexByte(s, '@'); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	s = strings.ReplaceAll(s, " ", "")
	s = strings.TrimPrefix(s, "+")
	return strings.TrimSpace(s)
}
