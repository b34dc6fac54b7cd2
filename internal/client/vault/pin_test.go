package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePIN(t *testing.T) {
	tests := []struct {
		pin     string
		wantErr bool
	}{
		{"12345", false},
		{"0123456789", false},
		{"1234", true},
		{"01234567890", true},
		{"12a45", true},
		{"", true},
		{"１２３４５", true},
	}
	for _, tt := range tests {
		t.Run(tt.pin, func(t *testing.T) {
			err := ValidatePIN(tt.pin)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPIN)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
