package vault

import (
	"context"
	"errors"
	"testing"

	"github.com/dmitrijs2005/cryptchat/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBiometric_DisabledByDefault(t *testing.T) {
	b := newBridge(t)
	ctx := context.Background()

	enabled, err := b.IsEnabled(ctx)
	require.NoError(t, err)
	assert.False(t, enabled)

	assert.ErrorIs(t, b.SavePassword(ctx, "12345"), common.ErrBiometricDisabled)
	_, err = b.SavedPassword(ctx)
	assert.ErrorIs(t, err, common.ErrBiometricDisabled)
}

func TestBiometric_SaveAndDisable(t *testing.T) {
	b := newBridge(t)
	ctx := context.Background()

	require.NoError(t, b.SetEnabled(ctx, true))
	_, err := b.SavedPassword(ctx)
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, b.SavePassword(ctx, "12345"))
	got, err := b.SavedPassword(ctx)
	require.NoError(t, err)
	assert.Equal(t, "12345", got)

	require.NoError(t, b.SetEnabled(ctx, false))
	require.NoError(t, b.SetEnabled(ctx, true))
	_, err = b.SavedPassword(ctx)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestBiometric_Unlock(t *testing.T) {
	b := newBridge(t)
	ctx := context.Background()
	require.NoError(t, b.SetEnabled(ctx, true))
	require.NoError(t, b.SavePassword(ctx, "54321"))

	deny := AuthenticatorFunc(func(context.Context, string) error { return errors.New("no match") })
	_, err := b.Unlock(ctx, deny)
	assert.ErrorIs(t, err, common.ErrInvalidCredential)

	var reason string
	allow := AuthenticatorFunc(func(_ context.Context, r string) error { reason = r; return nil })
	pw, err := b.Unlock(ctx, allow)
	require.NoError(t, err)
	assert.Equal(t, "54321", pw)
	assert.NotEmpty(t, reason)
}

func TestBiometric_UnlockDisabledSkipsPrompt(t *testing.T) {
	b := newBridge(t)
	called := false
	auth := AuthenticatorFunc(func(context.Context, string) error { called = true; return nil })

	_, err := b.Unlock(context.Background(), auth)
	assert.ErrorIs(t, err, common.ErrBiometricDisabled)
	assert.False(t, called)
}
