package vault

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/cryptchat/internal/client/securestore"
	"github.com/dmitrijs2005/cryptchat/internal/common"
)

const (
	PrefBiometricEnabled = "biometric_unlock_enabled"
	keySavedPassword     = "vault_password"
)

// Authenticator is the platform biometric prompt.
type Authenticator interface {
	Authenticate(ctx context.Context, reason string) error
}

type AuthenticatorFunc func(ctx context.Context, reason string) error

func (f AuthenticatorFunc) Authenticate(ctx context.Context, reason string) error {
	return f(ctx, reason)
}

// BiometricBridge caches the vault password so a biometric check can stand
// in for typing it. Everything is gated by the biometric_unlock_enabled
// preference.
type BiometricBridge struct {
	secrets *securestore.Store
	prefs   *securestore.Store
}

func NewBiometricBridge(secrets, prefs *securestore.Store) *BiometricBridge {
	return &BiometricBridge{secrets: secrets, prefs: prefs}
}

func (b *BiometricBridge) IsEnabled(ctx context.Context) (bool, error) {
	v, ok, err := b.prefs.GetString(ctx, PrefBiometricEnabled)
	if err != nil || !ok {
		return false, err
	}
	enabled, err := strconv.ParseBool(v)
	if err != nil {
		return false, nil
	}
	return enabled, nil
}

// SetEnabled flips the preference. Disabling also forgets the saved
// password.
func (b *BiometricBridge) SetEnabled(ctx context.Context, enabled bool) error {
	if err := b.prefs.PutString(ctx, PrefBiometricEnabled, strconv.FormatBool(enabled)); err != nil {
		return err
	}
	if !enabled {
		return b.ClearSavedPassword(ctx)
	}
	return nil
}

func (b *BiometricBridge) requireEnabled(ctx context.Context) error {
	enabled, err := b.IsEnabled(ctx)
	if err != nil {
		return err
	}
	if !enabled {
		return common.ErrBiometricDisabled
	}
	return nil
}

func (b *BiometricBridge) SavePassword(ctx context.Context, password string) error {
	if err := b.requireEnabled(ctx); err != nil {
		return err
	}
	return b.secrets.PutString(ctx, keySavedPassword, password)
}

// SavedPassword returns the cached password, common.ErrBiometricDisabled
// when the feature is off, or common.ErrNotFound when nothing is cached.
func (b *BiometricBridge) SavedPassword(ctx context.Context) (string, error) {
	if err := b.requireEnabled(ctx); err != nil {
		return "", err
	}
	v, ok, err := b.secrets.GetString(ctx, keySavedPassword)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("saved vault password: %w", common.ErrNotFound)
	}
	return v, nil
}

func (b *BiometricBridge) ClearSavedPassword(ctx context.Context) error {
	return b.secrets.Remove(ctx, keySavedPassword)
}

// Unlock runs the biometric prompt and, if it succeeds, returns the cached
// password.
func (b *BiometricBridge) Unlock(ctx context.Context, auth Authenticator) (string, error) {
	if err := b.requireEnabled(ctx); err != nil {
		return "", err
	}
	if err := auth.Authenticate(ctx, "Unlock vault"); err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInvalidCredential, err)
	}
	return b.SavedPassword(ctx)
}
