package cli

import (
	"bytes"
	"context"
	"errors"

	"github.com/dmitrijs2005/cryptchat/internal/client/vault"
	"github.com/dmitrijs2005/cryptchat/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

var errPINMismatch = errors.New("PINs do not match")

// readNewPIN asks for a PIN twice and applies the PIN policy.
func (a *App) readNewPIN() ([]byte, error) {
	pin, err := getPassword(a.out, "New PIN (5-10 digits)")
	if err != nil {
		return nil, err
	}
	if err := vault.ValidatePIN(string(pin)); err != nil {
		common.WipeByteArray(pin)
		return nil, err
	}
	again, err := getPassword(a.out, "Repeat PIN")
	if err != nil {
		common.WipeByteArray(pin)
		return nil, err
	}
	defer common.WipeByteArray(again)
	if !bytes.Equal(pin, again) {
		common.WipeByteArray(pin)
		return nil, errPINMismatch
	}
	return pin, nil
}

// SetPIN creates the vault PIN on first use and unlocks the session.
func (a *App) SetPIN(ctx context.Context) error {
	set, err := a.passwords.IsPasswordSet(ctx)
	if err != nil {
		return a.fail(err)
	}
	if set {
		a.println("PIN already set; use 'changepin'")
		return nil
	}
	pin, err := a.readNewPIN()
	if err != nil {
		return a.fail(err)
	}
	defer common.WipeByteArray(pin)

	if err := a.vault.SetPassword(ctx, string(pin)); err != nil {
		return a.fail(err)
	}
	a.unlockWith(pin)
	a.println("PIN set, vault unlocked")
	return nil
}

// Unlock verifies the PIN and keeps it for the session.
func (a *App) Unlock(ctx context.Context) error {
	set, err := a.passwords.IsPasswordSet(ctx)
	if err != nil {
		return a.fail(err)
	}
	if !set {
		a.println("No PIN yet; run 'setpin' first")
		return nil
	}
	pin, err := getPassword(a.out, "PIN")
	if err != nil {
		return a.fail(err)
	}
	defer common.WipeByteArray(pin)

	ok, err := a.passwords.VerifyPassword(ctx, string(pin))
	if err != nil {
		return a.fail(err)
	}
	if !ok {
		return a.fail(common.ErrInvalidCredential)
	}
	a.unlockWith(pin)
	if enabled, err := a.bio.IsEnabled(ctx); err == nil && enabled {
		if err := a.vault.SavePasswordForBiometric(ctx, string(pin)); err != nil {
			a.logger.Warn(ctx, "biometric password not saved", "error", err)
		}
	}
	a.println("Vault unlocked")
	return nil
}

func (a *App) Lock(ctx context.Context) error {
	a.lock()
	a.println("Vault locked")
	return nil
}

// ChangePIN re-encrypts the vault under a new PIN.
func (a *App) ChangePIN(ctx context.Context) error {
	if !a.requireUnlocked() {
		return nil
	}
	pin, err := a.readNewPIN()
	if err != nil {
		return a.fail(err)
	}
	defer common.WipeByteArray(pin)

	if err := a.vault.ChangePassword(ctx, string(a.pin), string(pin)); err != nil {
		return a.fail(err)
	}
	a.unlockWith(pin)
	a.println("PIN changed")
	return nil
}

// Reset wipes the vault, its PIN and the saved biometric password after
// confirmation.
func (a *App) Reset(ctx context.Context) error {
	if !GetConfirmation(a.reader, "Delete every vault image and the PIN", a.out) {
		a.println("Cancelled")
		return nil
	}
	if err := a.vault.ClearVault(ctx); err != nil {
		return a.fail(err)
	}
	a.lock()
	a.println("Vault cleared")
	return nil
}

func (a *App) requireUnlocked() bool {
	if !a.isUnlocked() {
		a.println("Vault is locked; run 'unlock' first")
		return false
	}
	return true
}

// fail reports err to the user and returns it.
func (a *App) fail(err error) error {
	switch {
	case errors.Is(err, common.ErrInvalidCredential):
		a.println("Wrong PIN")
	case errors.Is(err, common.ErrNotFound):
		a.println("Not found")
	case errors.Is(err, common.ErrUnsupportedImage):
		a.println("Unsupported image")
	case errors.Is(err, common.ErrKeyNotFound):
		a.println("No key for this conversation; run 'newconv' or 'dhgen'")
	case errors.Is(err, vault.ErrOrphanedContent):
		a.println("Vault holds images from a lost PIN; run 'reset' to start over")
	case errors.Is(err, common.ErrBiometricDisabled):
		a.println("Biometric unlock is off; run 'bio on'")
	default:
		a.println("Error:", err)
	}
	return err
}
