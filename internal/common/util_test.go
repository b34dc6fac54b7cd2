package common

import (
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// ---------- MakeRandHexString ----------

func TestMakeRandHexString_LengthAndHex(t *testing.T) {
	const n = 16
	s, err := MakeRandHexString(n)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s) != n*2 {
		t.Fatalf("expected hex length %d, got %d", n*2, len(s))
	}
	if _, err := hex.DecodeString(s); err != nil {
		t.Fatalf("string is not valid hex: %v", err)
	}
}

func TestMakeRandHexString_ZeroSize(t *testing.T) {
	s, err := MakeRandHexString(0)
	if err != nil {
		t.Fatalf("unexpected error for size=0: %v", err)
	}
	if s != "" {
		t.Fatalf("expected empty string for size=0, got %q", s)
	}
}

// ---------- WipeByteArray ----------

func TestWipeByteArray_ZerosBuffer(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5}
	WipeByteArray(buf)
	for i, v := range buf {
		if v != 0 {
			t.Fatalf("expected buf[%d]==0, got %d", i, v)
		}
	}
}

func TestWipeByteArray_NilSafe(t *testing.T) {
	WipeByteArray(nil)
}

// ---------- GenerateRandBytes ----------

func TestGenerateRandBytes_Basic(t *testing.T) {
	const n = 24
	buf, err := GenerateRandBytes(n)
	require.NoError(t, err)
	require.Len(t, buf, n)
}

func TestGenerateRandBytes_Distinct(t *testing.T) {
	a, err := GenerateRandBytes(32)
	require.NoError(t, err)
	b, err := GenerateRandBytes(32)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestGenerateRandBytes_ReaderError(t *testing.T) {
	orig := randRead
	t.Cleanup(func() { randRead = orig })
	randRead = func([]byte) (int, error) { return 0, errors.New("entropy") }

	_, err := GenerateRandBytes(8)
	require.Error(t, err)

	_, err = MakeRandHexString(8)
	require.Error(t, err)
}
