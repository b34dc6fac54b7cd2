package cryptox

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

// DeriveMasterKey stretches a device passphrase into a 256-bit key with
// argon2id (t=1, m=64MiB, p=4).
func DeriveMasterKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, KeySize)
}

// DeriveSubkey expands master into an independent KeySize-byte key bound to
// info using HKDF-SHA256.
func DeriveSubkey(master []byte, info string) ([]byte, error) {
	if len(master) == 0 {
		return nil, fmt.Errorf("derive subkey: empty master key")
	}
	out := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(info)), out); err != nil {
		return nil, fmt.Errorf("derive subkey: %w", err)
	}
	return out, nil
}
