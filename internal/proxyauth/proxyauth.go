// Package proxyauth implements the shared-secret header check that
// gates every public endpoint (spec §6 "Auth header"). Grounded on
// original_source/src/saasify_secret.rs, reimplemented as a true
// constant-time compare (spec P6) that keeps the original's ASCII
// case-insensitivity.
package proxyauth

import (
	"crypto/subtle"
	"strings"
)

// Header is the HTTP header carrying the shared secret.
const Header = "x-saasify-proxy-secret"

// Check reports whether got matches want in constant time with
// respect to the number of leading matching bytes (P6). Comparison is
// ASCII case-insensitive, matching the original implementation.
func Check(got, want string) bool {
	if len(got) != len(want) {
		// Still constant-time relative to len(want): fold through a
		// same-length comparison so callers can't learn the length
		// mismatch any faster than a real compare would take.
		got = strings.Repeat("\x00", len(want))
	}
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(got)), []byte(strings.ToLower(want))) == 1
}
