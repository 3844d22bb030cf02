// Package fingerprint derives salted, session-bound digests of clipboard text.
//
// A fingerprint binds content to one device (the persisted DeviceSalt) and
// one agent process (the SessionNonce), so an authorization granted in one
// session is meaningless in any other.
package fingerprint

import (
	"bytes"
	"errors"
	"fmt"

	"clipguard/internal/digest"
	"clipguard/internal/security"
)

const (
	// MaxCanonicalBytes bounds canonical text. Longer input is truncated,
	// never rejected, so two texts sharing this prefix fingerprint equal.
	MaxCanonicalBytes = 4096

	// OriginPlaceholder stands in for the page origin that browser-side
	// callers mix into the same composite.
	OriginPlaceholder = "local-origin"

	// SaltBytes is the size of the device salt before hex encoding.
	SaltBytes = 32

	// NonceBytes is the size of the session nonce before hex encoding.
	NonceBytes = 16

	separator = "||"
)

// ErrInvalidSecret is returned for a salt or nonce of the wrong shape.
var ErrInvalidSecret = errors.New("fingerprint: invalid secret")

var (
	bom      = []byte{0xEF, 0xBB, 0xBF}
	zwsp     = []byte{0xE2, 0x80, 0x8B} // U+200B
	zwj      = []byte{0xE2, 0x80, 0x8D} // U+200D
	zeroWide = [][]byte{zwsp, zwj}
)

// Canonicalize normalizes raw clipboard text before hashing: bytes <= 0x20
// are dropped, zero-width space and joiner are removed, leading byte-order
// marks are stripped, ASCII letters are lowercased, and the result is cut
// at MaxCanonicalBytes. Canonicalize(Canonicalize(x)) == Canonicalize(x).
func Canonicalize(raw string) string {
	out := make([]byte, 0, min(len(raw), MaxCanonicalBytes+len(bom)))
	for i := 0; i < len(raw); i++ {
		if raw[i] > 0x20 {
			out = append(out, raw[i])
		}
	}

	// Removing one sequence can splice its neighbours into another.
	for {
		n := len(out)
		for _, seq := range zeroWide {
			out = removeAll(out, seq)
		}
		if len(out) == n {
			break
		}
	}

	for bytes.HasPrefix(out, bom) {
		out = out[len(bom):]
	}

	for i, c := range out {
		if c >= 'A' && c <= 'Z' {
			out[i] = c + ('a' - 'A')
		}
	}

	if len(out) > MaxCanonicalBytes {
		out = out[:MaxCanonicalBytes]
	}
	return string(out)
}

func removeAll(b, seq []byte) []byte {
	if !bytes.Contains(b, seq) {
		return b
	}
	return bytes.ReplaceAll(b, seq, nil)
}

// Fingerprint returns the hex digest of
// Canonicalize(text) || "||" || OriginPlaceholder || "||" || salt || "||" || nonce.
// salt and nonce are used exactly as given (hex strings).
func Fingerprint(text, salt, nonce string) string {
	return digest.JoinHex(separator, Canonicalize(text), OriginPlaceholder, salt, nonce)
}

// Secrets holds the per-device salt and per-process nonce. It is created once
// by the agent and handed to everything that fingerprints.
type Secrets struct {
	salt  string
	nonce string
}

// NewSecrets validates salt and nonce and wraps them.
func NewSecrets(salt, nonce string) (*Secrets, error) {
	if err := security.ValidateHexString(salt, 2*SaltBytes); err != nil {
		return nil, fmt.Errorf("%w: salt: %v", ErrInvalidSecret, err)
	}
	if err := security.ValidateHexString(nonce, 2*NonceBytes); err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrInvalidSecret, err)
	}
	return &Secrets{salt: salt, nonce: nonce}, nil
}

// NewSessionSecrets pairs a device salt with a freshly generated nonce.
func NewSessionSecrets(salt string) (*Secrets, error) {
	return NewSecrets(salt, security.RandomHex(NonceBytes))
}

// LoadDeviceSalt reads the device salt at path, creating it on first use.
func LoadDeviceSalt(path string) (string, error) {
	salt, err := security.LoadOrCreateHexSecret(path, SaltBytes)
	if err != nil {
		return "", fmt.Errorf("device salt: %w", err)
	}
	return salt, nil
}

// Fingerprint fingerprints text with these secrets.
func (s *Secrets) Fingerprint(text string) (string, error) {
	if s == nil || s.salt == "" || s.nonce == "" {
		return "", ErrInvalidSecret
	}
	return Fingerprint(text, s.salt, s.nonce), nil
}
