package cli

import (
	"context"

	"github.com/dmitrijs2005/cryptchat/internal/common"
)

// Biometric handles "bio on|off|unlock|status".
func (a *App) Biometric(ctx context.Context, action string) error {
	switch action {
	case "on":
		if err := a.bio.SetEnabled(ctx, true); err != nil {
			return a.fail(err)
		}
		if a.isUnlocked() {
			if err := a.vault.SavePasswordForBiometric(ctx, string(a.pin)); err != nil {
				return a.fail(err)
			}
			a.println("Biometric unlock enabled")
		} else {
			a.println("Biometric unlock enabled; unlock once with the PIN to arm it")
		}

	case "off":
		if err := a.bio.SetEnabled(ctx, false); err != nil {
			return a.fail(err)
		}
		a.println("Biometric unlock disabled")

	case "unlock":
		pw, err := a.vault.UnlockWithBiometric(ctx, a.auth)
		if err != nil {
			return a.fail(err)
		}
		pin := []byte(pw)
		defer common.WipeByteArray(pin)
		a.unlockWith(pin)
		a.println("Vault unlocked")

	case "status", "":
		enabled, err := a.bio.IsEnabled(ctx)
		if err != nil {
			return a.fail(err)
		}
		a.printf("Biometric unlock: %t\n", enabled)

	default:
		a.println("Usage: bio on|off|unlock|status")
	}
	return nil
}
