// Package keyexchange implements finite-field Diffie-Hellman over the 2048-bit
// MODP group of RFC 3526 (group 14). Two parties exchange public values and
// each derives the same 256-bit conversation key without sending it.
//
// Keys travel as hex-encoded big integers. Private keys never leave the device.
package keyexchange

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/dmitrijs2005/cryptchat/internal/common"
)

const primeHex = "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD1" +
	"29024E088A67CC74020BBEA63B139B22514A08798E3404DD" +
	"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245" +
	"E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
	"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3D" +
	"C2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F" +
	"83655D23DCA3AD961C62F356208552BB9ED529077096966D" +
	"670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B" +
	"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9" +
	"DE2BCBF6955817183995497CEA956AE515D2261898FA0510" +
	"15728E5A8AACAA68FFFFFFFFFFFFFFFF"

var (
	// P is the group prime, G the generator.
	P = mustHex(primeHex)
	G = big.NewInt(2)

	two = big.NewInt(2)
	// pMinus2 is the upper bound accepted for peer public values.
	pMinus2 = new(big.Int).Sub(P, two)

	// primeLen is the byte length used to pad the shared value before hashing.
	primeLen = (P.BitLen() + 7) / 8
)

// random is a seam for crypto/rand.Reader.
var random io.Reader = rand.Reader

func mustHex(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("keyexchange: bad constant")
	}
	return n
}

// KeyPair is an ephemeral DH key pair. Only PublicKey may be transmitted.
type KeyPair struct {
	PrivateKey string
	PublicKey  string
}

// GenerateKeyPair draws a private exponent uniformly from [2, P-2] and
// returns it together with G^priv mod P.
func GenerateKeyPair() (KeyPair, error) {
	// [0, P-4] shifted by 2.
	limit := new(big.Int).Sub(P, big.NewInt(3))
	priv, err := rand.Int(random, limit)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate private key: %w", err)
	}
	priv.Add(priv, two)

	pub := new(big.Int).Exp(G, priv, P)
	return KeyPair{PrivateKey: priv.Text(16), PublicKey: pub.Text(16)}, nil
}

// ComputeSharedSecret returns SHA-256(otherPublic^ownPrivate mod P). The DH
// value is left-padded to the prime length before hashing so both sides hash
// identical bytes. The peer value must lie in [2, P-2]; anything else is
// rejected with common.ErrInvalidPublicKey.
func ComputeSharedSecret(ownPrivate, otherPublic string) ([]byte, error) {
	priv, err := parse(ownPrivate)
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	if priv.Cmp(two) < 0 || priv.Cmp(pMinus2) > 0 {
		return nil, fmt.Errorf("private key out of range")
	}

	pub, err := parse(otherPublic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidPublicKey, err)
	}
	if err := ValidatePublicKey(pub); err != nil {
		return nil, err
	}

	shared := new(big.Int).Exp(pub, priv, P)
	buf := make([]byte, primeLen)
	shared.FillBytes(buf)
	defer common.WipeByteArray(buf)

	sum := sha256.Sum256(buf)
	return sum[:], nil
}

// ValidatePublicKey rejects values outside [2, P-2], which would confine
// the shared secret to a trivial subgroup.
func ValidatePublicKey(pub *big.Int) error {
	if pub.Cmp(two) < 0 || pub.Cmp(pMinus2) > 0 {
		return fmt.Errorf("%w: out of range", common.ErrInvalidPublicKey)
	}
	return nil
}

func parse(s string) (*big.Int, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return nil, fmt.Errorf("empty value")
	}
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, fmt.Errorf("not a hex integer")
	}
	return n, nil
}
