// Package caller turns caller identifiers from the telephony side into the
// canonical digit form used for authorization.
package caller

import "strings"

// Normalize returns the canonical form of a caller identifier.
//
// Every non-digit is dropped. An 11-digit North American number with a
// leading country code "1" is reduced to its 10-digit national form; any
// other digit string is returned unchanged, including the empty string.
// Only ASCII digits count; other Unicode digits are stripped like punctuation.
//
// Normalize is the equality basis for the allowlist. Changing these rules
// changes who may call, so keep the tests in caller_test.go in lockstep.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '1' {
		return digits[1:]
	}
	return digits
}

var schemePrefixes = []string{"tel:", "sip:"}

// ExtractToken pulls the caller token out of a room identifier of the form
// "<prefix>_<token>_<suffix...>". The token may carry a "tel:" or "sip:"
// scheme, which is removed. Identifiers with fewer than two fields yield "".
func ExtractToken(room string) string {
	parts := strings.Split(room, "_")
	if len(parts) < 2 {
		return ""
	}
	token := strings.TrimSpace(parts[1])
	for _, p := range schemePrefixes {
		if len(token) >= len(p) && strings.EqualFold(token[:len(p)], p) {
			token = strings.TrimSpace(token[len(p):])
			break
		}
	}
	return token
}
