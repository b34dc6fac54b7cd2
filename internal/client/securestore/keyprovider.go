package securestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/cryptchat/internal/common"
	"github.com/dmitrijs2005/cryptchat/internal/cryptox"
	"github.com/dmitrijs2005/cryptchat/internal/filex"
)

// MasterKeyProvider supplies the device-bound master key all stores derive
// their sealing keys from.
type MasterKeyProvider interface {
	MasterKey(ctx context.Context) ([]byte, error)
}

// FileKeyProvider keeps a random master key in a 0600 file, creating it on
// first use.
type FileKeyProvider struct {
	Path string
}

func (p FileKeyProvider) MasterKey(ctx context.Context) ([]byte, error) {
	return loadOrCreate(p.Path, cryptox.KeySize)
}

// PassphraseKeyProvider derives the master key from a device passphrase with
// argon2id. The salt is persisted next to the data on first use.
type PassphraseKeyProvider struct {
	Passphrase []byte
	SaltPath   string
}

const passphraseSaltSize = 16

func (p PassphraseKeyProvider) MasterKey(ctx context.Context) ([]byte, error) {
	if len(p.Passphrase) == 0 {
		return nil, fmt.Errorf("%w: empty device passphrase", common.ErrInvalidCredential)
	}
	salt, err := loadOrCreate(p.SaltPath, passphraseSaltSize)
	if err != nil {
		return nil, err
	}
	return cryptox.DeriveMasterKey(p.Passphrase, salt), nil
}

// StaticKeyProvider returns a fixed key.
type StaticKeyProvider []byte

func (p StaticKeyProvider) MasterKey(ctx context.Context) ([]byte, error) {
	if len(p) != cryptox.KeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", cryptox.KeySize, len(p))
	}
	return append([]byte(nil), p...), nil
}

func loadOrCreate(path string, size int) ([]byte, error) {
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(b) != size {
			return nil, fmt.Errorf("%s: expected %d bytes, got %d", path, size, len(b))
		}
		return b, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	b, err = common.GenerateRandBytes(size)
	if err != nil {
		return nil, err
	}
	if _, err := filex.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}
	if err := filex.AtomicWriteFile(path, b, 0o600); err != nil {
		return nil, err
	}
	return b, nil
}
