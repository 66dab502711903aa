package mfa

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

const codeDigits = 6

// GenerateCode returns a 6-digit numeric code string (e.g. "123456").
// Uses crypto/rand for randomness.
func GenerateCode() (string, error) {
	b := make([]byte, codeDigits)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := make([]byte, codeDigits)
	for i := 0; i < codeDigits; i++ {
		s[i] = '0' + (b[i] % 10)
	}
	return string(s), nil
}

// NewSalt returns a 16-byte random salt, hex-encoded. One salt per stored code.
func NewSalt() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// HashCode returns a SHA-256 hash of salt+code, hex-encoded. Codes are never
// stored in plaintext; the salt is stored alongside the hash.
func HashCode(code, salt string) string {
	h := sha256.Sum256([]byte(salt + code))
	return hex.EncodeToString(h[:])
}

// CodeEqual performs constant-time comparison of the provided code's salted
// hash with the stored hash.
func CodeEqual(providedCode, salt, storedHash string) bool {
	providedHash := HashCode(providedCode, salt)
	return subtle.ConstantTimeCompare([]byte(providedHash), []byte(storedHash)) == 1
}
