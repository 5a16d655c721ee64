package util

import (
	"crypto/rand"
	"encoding/hex"
)

// RandomToken returns byteLen random bytes hex-encoded.
func RandomToken(byteLen int) (string, error) {
	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
