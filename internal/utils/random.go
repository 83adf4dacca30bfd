package utils // helper functions for random credentials and their at-rest hashes

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// RandomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data. Single-use tokens are built from
// 32 bytes (256 bits of entropy).
func RandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// HashTokenRaw returns the SHA-256 hash of a raw token as a hex string.
// Only this hash is stored, so a leak of the token table does not leak
// usable credentials.
func HashTokenRaw(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
