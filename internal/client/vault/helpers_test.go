package vault

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/cryptchat/internal/client/securestore"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, dir, name string) *securestore.Store {
	t.Helper()
	s, err := securestore.Open(context.Background(), filepath.Join(dir, name+".db"), name,
		securestore.StaticKeyProvider(bytes.Repeat([]byte{7}, 32)), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newPasswords(t *testing.T) *PasswordManager {
	t.Helper()
	return NewPasswordManager(openStore(t, t.TempDir(), "vault_credentials"), nil)
}

func newBridge(t *testing.T) *BiometricBridge {
	t.Helper()
	dir := t.TempDir()
	return NewBiometricBridge(openStore(t, dir, "vault_biometric"), openStore(t, dir, "preferences"))
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
