// Package common defines shared sentinel errors and small helpers used across
// the cryptchat client layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Cryptographic errors.
	ErrAuthenticationFailure = errors.New("authentication failure")
	ErrInvalidPublicKey      = errors.New("invalid public key")

	// Conversation key errors. A message whose key is missing is unreadable on
	// this device; callers skip it instead of failing the whole conversation.
	ErrKeyNotFound = errors.New("conversation key not found")

	// Vault errors.
	ErrInvalidCredential = errors.New("invalid credential")
	ErrNotInitialized    = errors.New("not initialized")
	ErrBiometricDisabled = errors.New("biometric unlock disabled")
	ErrUnsupportedImage  = errors.New("unsupported image")

	// Secure storage could not be opened even after one reset. Not recoverable.
	ErrStorageCorruption = errors.New("secure storage corrupted")
)
