// Package cryptox implements the symmetric primitives used by the client:
// AES-256-GCM encryption with explicit IVs, the vault blob file format, the
// vault password hash and the PBKDF2 key derivation.
//
// Every function is stateless and safe for concurrent use. Keys are never
// logged or echoed in errors.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/cryptchat/internal/common"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// IVSize is the GCM nonce length in bytes (96 bits).
	IVSize = 12
	// TagSize is the GCM authentication tag length in bytes (128 bits).
	TagSize = 16
)

// randRead is a seam for crypto/rand.Read.
var randRead = rand.Read

// EncryptedPayload is a ciphertext together with the IV it was sealed with.
type EncryptedPayload struct {
	Ciphertext []byte
	IV         []byte
}

// Encode returns the base64 (std) encodings of ciphertext and IV, the form
// stored in Message.EncryptedContent / Message.IV.
func (p EncryptedPayload) Encode() (ciphertext, iv string) {
	return base64.StdEncoding.EncodeToString(p.Ciphertext), base64.StdEncoding.EncodeToString(p.IV)
}

// DecodePayload reverses Encode. Malformed base64 is reported as an
// authentication failure since the payload cannot be trusted.
func DecodePayload(ciphertext, iv string) (EncryptedPayload, error) {
	ct, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return EncryptedPayload{}, fmt.Errorf("%w: ciphertext encoding: %v", common.ErrAuthenticationFailure, err)
	}
	n, err := base64.StdEncoding.DecodeString(iv)
	if err != nil {
		return EncryptedPayload{}, fmt.Errorf("%w: iv encoding: %v", common.ErrAuthenticationFailure, err)
	}
	return EncryptedPayload{Ciphertext: ct, IV: n}, nil
}

// GenerateKey returns a fresh random 256-bit AES key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := randRead(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key size %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithTagSize(block, TagSize)
}

// Encrypt seals plaintext with AES-256-GCM under key. A new random 96-bit IV
// is generated for every call; ciphertext carries the 128-bit tag.
func Encrypt(plaintext, key []byte) (ciphertext, iv []byte, err error) {
	return seal(plaintext, key, nil)
}

func seal(plaintext, key, ad []byte) (ciphertext, iv []byte, err error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	iv = make([]byte, IVSize)
	if _, err := randRead(iv); err != nil {
		return nil, nil, fmt.Errorf("generate iv: %w", err)
	}

	return aead.Seal(nil, iv, plaintext, ad), iv, nil
}

// Decrypt opens ciphertext produced by Encrypt. Any tag mismatch, wrong IV
// length or unusable key is reported as common.ErrAuthenticationFailure;
// garbage is never returned.
func Decrypt(ciphertext, iv, key []byte) ([]byte, error) {
	return open(ciphertext, iv, key, nil)
}

func open(ciphertext, iv, key, ad []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrAuthenticationFailure, err)
	}
	if len(iv) != IVSize {
		return nil, fmt.Errorf("%w: iv size %d", common.ErrAuthenticationFailure, len(iv))
	}
	if len(ciphertext) < TagSize {
		return nil, fmt.Errorf("%w: ciphertext too short", common.ErrAuthenticationFailure)
	}

	plaintext, err := aead.Open(nil, iv, ciphertext, ad)
	if err != nil {
		return nil, common.ErrAuthenticationFailure
	}
	return plaintext, nil
}

// EncryptString is Encrypt for UTF-8 text.
func EncryptString(s string, key []byte) (EncryptedPayload, error) {
	ct, iv, err := Encrypt([]byte(s), key)
	if err != nil {
		return EncryptedPayload{}, err
	}
	return EncryptedPayload{Ciphertext: ct, IV: iv}, nil
}

// DecryptString is Decrypt returning UTF-8 text.
func DecryptString(p EncryptedPayload, key []byte) (string, error) {
	b, err := Decrypt(p.Ciphertext, p.IV, key)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// SealEntry serializes v to JSON and seals it in the blob format (see
// SealBlob). Used for the encrypted vault manifest.
func SealEntry(v any, key []byte) ([]byte, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(plaintext)
	return SealBlob(plaintext, key)
}

// OpenEntry opens a blob produced by SealEntry and unmarshals it into v.
func OpenEntry(raw, key []byte, v any) error {
	plaintext, err := OpenBlob(raw, key)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(plaintext)
	return json.Unmarshal(plaintext, v)
}
