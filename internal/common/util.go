package common

import (
	"crypto/rand"
	"encoding/hex"
)

// randRead is a seam for crypto/rand.Read.
var randRead = rand.Read

// MakeRandHexString generates size random bytes and returns them hex encoded,
// so the resulting string is twice as long as size.
func MakeRandHexString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := randRead(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GenerateRandBytes returns size bytes from the system CSPRNG.
func GenerateRandBytes(size int) ([]byte, error) {
	b := make([]byte, size)
	if _, err := randRead(b); err != nil {
		return nil, err
	}
	return b, nil
}

// WipeByteArray overwrites b with zeros. Use it for passwords and keys once
// they are no longer needed. A nil slice is a no-op.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
