package cryptox

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/cryptchat/internal/common"
)

// ErrCorruptBlob reports a blob whose header cannot be parsed. It wraps
// common.ErrAuthenticationFailure so callers can treat both the same way.
var ErrCorruptBlob = fmt.Errorf("%w: corrupt blob", common.ErrAuthenticationFailure)

const blobHeaderLen = 4

// SealBlob encrypts plaintext and frames it in the on-disk format:
//
//	[4 bytes big-endian IV length][IV bytes][AES-GCM ciphertext + 128-bit tag]
func SealBlob(plaintext, key []byte) ([]byte, error) {
	return SealBlobAD(plaintext, key, nil)
}

// SealBlobAD is SealBlob with GCM associated data. The same ad must be
// supplied to OpenBlobAD.
func SealBlobAD(plaintext, key, ad []byte) ([]byte, error) {
	ct, iv, err := seal(plaintext, key, ad)
	if err != nil {
		return nil, err
	}

	out := make([]byte, blobHeaderLen, blobHeaderLen+len(iv)+len(ct))
	binary.BigEndian.PutUint32(out, uint32(len(iv)))
	out = append(out, iv...)
	out = append(out, ct...)
	return out, nil
}

// OpenBlob parses and decrypts a blob produced by SealBlob.
func OpenBlob(raw, key []byte) ([]byte, error) {
	return OpenBlobAD(raw, key, nil)
}

// OpenBlobAD parses and decrypts a blob produced by SealBlobAD.
func OpenBlobAD(raw, key, ad []byte) ([]byte, error) {
	iv, ct, err := splitBlob(raw)
	if err != nil {
		return nil, err
	}
	return open(ct, iv, key, ad)
}

func splitBlob(raw []byte) (iv, ct []byte, err error) {
	if len(raw) < blobHeaderLen {
		return nil, nil, ErrCorruptBlob
	}
	n := binary.BigEndian.Uint32(raw[:blobHeaderLen])
	if n != IVSize {
		return nil, nil, ErrCorruptBlob
	}
	body := raw[blobHeaderLen:]
	if len(body) < IVSize+TagSize {
		return nil, nil, ErrCorruptBlob
	}
	return body[:IVSize], body[IVSize:], nil
}

// IsCorruptBlob reports whether err came from a malformed blob header
// rather than a failed tag check.
func IsCorruptBlob(err error) bool {
	return errors.Is(err, ErrCorruptBlob)
}
