package cryptox

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// SaltSize is the vault credential salt length in bytes (256 bits).
	SaltSize = 32
	// VaultKDFIterations is the fixed PBKDF2 iteration count for vault keys.
	VaultKDFIterations = 100000
)

// HashPassword returns SHA-256(salt || password). It authenticates vault
// access only; the vault encryption key comes from DeriveVaultKey.
func HashPassword(password, salt []byte) []byte {
	h := sha256.New()
	h.Write(salt)
	h.Write(password)
	return h.Sum(nil)
}

// DeriveVaultKey stretches password with PBKDF2-HMAC-SHA256 over salt into a
// 256-bit AES key. Deterministic for equal inputs. The result must not be
// persisted.
func DeriveVaultKey(password, salt []byte) []byte {
	return pbkdf2.Key(password, salt, VaultKDFIterations, KeySize, sha256.New)
}

// GenerateSalt returns a fresh random SaltSize-byte salt.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := randRead(salt); err != nil {
		return nil, err
	}
	return salt, nil
}
