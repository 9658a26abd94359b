package utils

import (
	"strings"
	"unicode"
)

// Slugify derives a URL-safe identifier from a human readable title: lowercase,
// strip everything outside [a-z0-9- ] and whitespace, collapse whitespace runs to a
// single hyphen, collapse repeated hyphens and trim them from both ends.
// The function is idempotent: Slugify(Slugify(s)) == Slugify(s).
func Slugify(s string) string {
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	pendingHyphen := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		case r == '-' || unicode.IsSpace(r):
			pendingHyphen = true
		}
		// every other rune is stripped
	}
	return b.String()
}
