package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"
)

// Cryptographic errors
var (
	ErrInsufficientEntropy = errors.New("security: insufficient entropy")
	ErrInvalidKeySize      = errors.New("security: invalid key size")
)

// MinKeySize is the minimum allowed key size in bytes.
const MinKeySize = 16 // 128 bits

// GenerateSecureRandom fills the given slice with cryptographically secure random bytes.
func GenerateSecureRandom(data []byte) error {
	n, err := rand.Read(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInsufficientEntropy, err)
	}
	if n != len(data) {
		return fmt.Errorf("%w: only got %d of %d bytes", ErrInsufficientEntropy, n, len(data))
	}
	return nil
}

// GenerateKey generates a cryptographically secure random key.
func GenerateKey(size int) ([]byte, error) {
	if size < MinKeySize {
		return nil, fmt.Errorf("%w: minimum %d bytes required", ErrInvalidKeySize, MinKeySize)
	}

	key := make([]byte, size)
	if err := GenerateSecureRandom(key); err != nil {
		return nil, err
	}
	return key, nil
}

// RandomHex returns n random bytes hex-encoded. It panics only if the
// system random source is unavailable, which crypto/rand treats as fatal.
func RandomHex(n int) string {
	b := make([]byte, n)
	if err := GenerateSecureRandom(b); err != nil {
		panic(err)
	}
	defer Wipe(b)
	return hex.EncodeToString(b)
}

// Wipe overwrites a byte slice with zeros.
func Wipe(data []byte) {
	for i := range data {
		data[i] = 0
	}
	runtime.KeepAlive(data)
}
