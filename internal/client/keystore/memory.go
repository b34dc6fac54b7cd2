package keystore

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/cryptchat/internal/common"
)

// MemoryStore keeps keys in process memory only.
type MemoryStore struct {
	mu   sync.RWMutex
	keys map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string][]byte)}
}

func (m *MemoryStore) Get(ctx context.Context, conversationID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.keys[conversationID]
	if !ok {
		return nil, fmt.Errorf("%w: conversation %s", common.ErrKeyNotFound, conversationID)
	}
	return append([]byte(nil), key...), nil
}

func (m *MemoryStore) Put(ctx context.Context, conversationID string, key []byte) error {
	if key == nil {
		key = []byte{}
	}
	if err := validate(conversationID, key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[conversationID] = append([]byte(nil), key...)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if key, ok := m.keys[conversationID]; ok {
		common.WipeByteArray(key)
		delete(m.keys, conversationID)
	}
	return nil
}

func (m *MemoryStore) Exists(ctx context.Context, conversationID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.keys[conversationID]
	return ok, nil
}

func (m *MemoryStore) ClearAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, key := range m.keys {
		common.WipeByteArray(key)
		delete(m.keys, id)
	}
	return nil
}
