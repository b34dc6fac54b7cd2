package vault

import (
	"errors"
)

const (
	MinPINLength = 5
	MaxPINLength = 10
)

var ErrInvalidPIN = errors.New("pin must be 5 to 10 digits")

// ValidatePIN applies the vault PIN policy: 5 to 10 ASCII digits.
func ValidatePIN(pin string) error {
	if len(pin) < MinPINLength || len(pin) > MaxPINLength {
		return ErrInvalidPIN
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return ErrInvalidPIN
		}
	}
	return nil
}
