// Package clip bounds text that is headed for a language model or a speaker.
// Limits count runes, never bytes, so a cut never splits a UTF-8 sequence.
package clip

import (
	"strings"
	"unicode/utf8"
)

// Runes returns at most n runes of s. Invalid UTF-8 is replaced with U+FFFD
// first so the result is always valid text.
func Runes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	s = strings.ToValidUTF8(s, "�")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// WithMarker clips s to n runes and appends marker when anything was cut.
func WithMarker(s string, n int, marker string) string {
	out := Runes(s, n)
	if len(out) < len(strings.ToValidUTF8(s, "�")) {
		return out + marker
	}
	return out
}

// Flatten replaces line breaks with spaces.
func Flatten(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
}
