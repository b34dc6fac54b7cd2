package keystore

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/dmitrijs2005/cryptchat/internal/client/securestore"
	"github.com/dmitrijs2005/cryptchat/internal/common"
)

// SecureStore is the persistent Store backed by an encrypted securestore.
type SecureStore struct {
	s *securestore.Store
}

func NewSecureStore(s *securestore.Store) *SecureStore {
	return &SecureStore{s: s}
}

func (k *SecureStore) Get(ctx context.Context, conversationID string) ([]byte, error) {
	if err := validate(conversationID, nil); err != nil {
		return nil, err
	}
	v, ok, err := k.s.GetString(ctx, KeyPrefix+conversationID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: conversation %s", common.ErrKeyNotFound, conversationID)
	}
	key, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("decode key for conversation %s: %w", conversationID, err)
	}
	return key, nil
}

// Put stores key, replacing any previous key for the conversation.
func (k *SecureStore) Put(ctx context.Context, conversationID string, key []byte) error {
	if key == nil {
		key = []byte{}
	}
	if err := validate(conversationID, key); err != nil {
		return err
	}
	return k.s.PutString(ctx, KeyPrefix+conversationID, base64.StdEncoding.EncodeToString(key))
}

func (k *SecureStore) Delete(ctx context.Context, conversationID string) error {
	if err := validate(conversationID, nil); err != nil {
		return err
	}
	return k.s.Remove(ctx, KeyPrefix+conversationID)
}

func (k *SecureStore) Exists(ctx context.Context, conversationID string) (bool, error) {
	if err := validate(conversationID, nil); err != nil {
		return false, err
	}
	return k.s.Contains(ctx, KeyPrefix+conversationID)
}

// ClearAll removes every conversation key and leaves other entries of the
// underlying store alone.
func (k *SecureStore) ClearAll(ctx context.Context) error {
	keys, err := k.s.Keys(ctx, KeyPrefix)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return k.s.RemoveAll(ctx, keys)
}
