// Package keystore keeps per-conversation 256-bit AES keys.
//
// Keys are raw bytes at the API boundary. The persistent implementation
// stores them base64-encoded in an encrypted securestore under
// "shared_conv_key_<conversationID>".
package keystore

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/cryptchat/internal/cryptox"
)

// KeyPrefix namespaces conversation keys inside a shared secure store.
const KeyPrefix = "shared_conv_key_"

// Store persists conversation keys. Get returns common.ErrKeyNotFound when
// no key exists for the conversation.
type Store interface {
	Get(ctx context.Context, conversationID string) ([]byte, error)
	Put(ctx context.Context, conversationID string, key []byte) error
	Delete(ctx context.Context, conversationID string) error
	Exists(ctx context.Context, conversationID string) (bool, error)
	ClearAll(ctx context.Context) error
}

func validate(conversationID string, key []byte) error {
	if conversationID == "" {
		return fmt.Errorf("keystore: empty conversation id")
	}
	if key != nil && len(key) != cryptox.KeySize {
		return fmt.Errorf("keystore: key must be %d bytes, got %d", cryptox.KeySize, len(key))
	}
	return nil
}
