package vault

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"github.com/dmitrijs2005/cryptchat/internal/client/securestore"
	"github.com/dmitrijs2005/cryptchat/internal/common"
	"github.com/dmitrijs2005/cryptchat/internal/cryptox"
	"github.com/dmitrijs2005/cryptchat/internal/logging"
)

const (
	keyPasswordHash = "password_hash"
	keySalt         = "salt"

	keyPendingHash = "pending_password_hash"
	keyPendingSalt = "pending_salt"
)

// PasswordManager keeps the vault credential (hash and salt) in an
// encrypted store.
type PasswordManager struct {
	store  *securestore.Store
	logger logging.Logger
}

func NewPasswordManager(store *securestore.Store, logger logging.Logger) *PasswordManager {
	if logger == nil {
		logger = logging.Nop()
	}
	return &PasswordManager{store: store, logger: logger}
}

func (p *PasswordManager) IsPasswordSet(ctx context.Context) (bool, error) {
	return p.store.Contains(ctx, keyPasswordHash)
}

// SetPassword stores a new credential with a fresh random salt. Length and
// format policy (see ValidatePIN) is the caller's job.
func (p *PasswordManager) SetPassword(ctx context.Context, password string) error {
	salt, err := cryptox.GenerateSalt()
	if err != nil {
		return err
	}
	return p.store.PutStrings(ctx, credential(keyPasswordHash, keySalt, password, salt))
}

func credential(hashKey, saltKey, password string, salt []byte) map[string]string {
	hash := cryptox.HashPassword([]byte(password), salt)
	return map[string]string{
		hashKey: base64.StdEncoding.EncodeToString(hash),
		saltKey: base64.StdEncoding.EncodeToString(salt),
	}
}

// VerifyPassword reports whether password matches the stored credential.
// It returns false when no password has been set.
func (p *PasswordManager) VerifyPassword(ctx context.Context, password string) (bool, error) {
	stored, ok, err := p.store.GetString(ctx, keyPasswordHash)
	if err != nil || !ok {
		return false, err
	}
	salt, err := p.Salt(ctx)
	if err != nil {
		return false, err
	}
	want, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return false, fmt.Errorf("decode password hash: %w", err)
	}
	got := cryptox.HashPassword([]byte(password), salt)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// ChangePassword replaces the credential when oldPassword verifies. Vault
// content is not re-encrypted; use Engine.ChangePassword for that.
func (p *PasswordManager) ChangePassword(ctx context.Context, oldPassword, newPassword string) (bool, error) {
	ok, err := p.VerifyPassword(ctx, oldPassword)
	if err != nil || !ok {
		return false, err
	}
	if err := p.SetPassword(ctx, newPassword); err != nil {
		return false, err
	}
	return true, nil
}

// Salt returns the stored salt or common.ErrNotInitialized.
func (p *PasswordManager) Salt(ctx context.Context) ([]byte, error) {
	v, ok, err := p.store.GetString(ctx, keySalt)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrNotInitialized
	}
	salt, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	return salt, nil
}

// Clear removes the credential and any pending change.
func (p *PasswordManager) Clear(ctx context.Context) error {
	return p.store.Clear(ctx)
}

// unlock verifies password and returns the derived vault key.
func (p *PasswordManager) unlock(ctx context.Context, password string) ([]byte, error) {
	salt, err := p.Salt(ctx)
	if err != nil {
		return nil, err
	}
	ok, err := p.VerifyPassword(ctx, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrInvalidCredential
	}
	return cryptox.DeriveVaultKey([]byte(password), salt), nil
}

// stagePending records the credential a password change will switch to.
func (p *PasswordManager) stagePending(ctx context.Context, password string, salt []byte) error {
	return p.store.PutStrings(ctx, credential(keyPendingHash, keyPendingSalt, password, salt))
}

// commitPending promotes a staged credential. It is a no-op when nothing is
// staged, so an interrupted commit can be replayed.
func (p *PasswordManager) commitPending(ctx context.Context) error {
	hash, ok, err := p.store.GetString(ctx, keyPendingHash)
	if err != nil || !ok {
		return err
	}
	salt, ok, err := p.store.GetString(ctx, keyPendingSalt)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("pending credential incomplete")
	}
	if err := p.store.PutStrings(ctx, map[string]string{keyPasswordHash: hash, keySalt: salt}); err != nil {
		return err
	}
	return p.discardPending(ctx)
}

func (p *PasswordManager) discardPending(ctx context.Context) error {
	return p.store.RemoveAll(ctx, []string{keyPendingHash, keyPendingSalt})
}
