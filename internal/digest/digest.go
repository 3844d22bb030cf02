// Package digest is the hash primitive shared by clipboard fingerprints and the
// audit chain. Both formats are consumed by tools outside this module, so the
// output is always lowercase hex SHA-256.
package digest

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// Size is the raw digest length in bytes.
const Size = sha256.Size

// HexSize is the length of a hex-encoded digest.
const HexSize = 2 * Size

// Hex returns the lowercase hex SHA-256 of data.
func Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HexString is Hex for string input.
func HexString(s string) string {
	return Hex([]byte(s))
}

// JoinHex hashes parts joined by sep without materializing the composite.
// JoinHex(sep, a, b) == HexString(a + sep + b).
func JoinHex(sep string, parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte(sep))
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// IsHex reports whether s is a well-formed hex digest (HexSize hex characters,
// either case).
func IsHex(s string) bool {
	if len(s) != HexSize {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// Normalize lowercases a hex digest so that lookups are case-insensitive.
func Normalize(s string) string {
	return strings.ToLower(s)
}

// Equal compares two hex digests in constant time, ignoring case.
func Equal(a, b string) bool {
	a, b = Normalize(a), Normalize(b)
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
