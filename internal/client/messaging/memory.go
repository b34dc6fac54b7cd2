package messaging

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dmitrijs2005/cryptchat/internal/common"
	"github.com/google/uuid"
)

// MemoryRepository is an in-process Repository used when no database is
// configured and in tests.
type MemoryRepository struct {
	mu            sync.RWMutex
	conversations map[string]Conversation
	messages      map[string][]Message
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		conversations: make(map[string]Conversation),
		messages:      make(map[string][]Message),
	}
}

func (r *MemoryRepository) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conversations[id]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, common.ErrNotFound)
	}
	return &c, nil
}

func (r *MemoryRepository) CreateConversation(ctx context.Context, c Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conversations[c.ID]; !ok {
		r.conversations[c.ID] = c
	}
	return nil
}

func (r *MemoryRepository) GetMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.messages[conversationID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]Message(nil), all...), nil
}

func (r *MemoryRepository) SaveMessage(ctx context.Context, m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conversations[m.ConversationID]; !ok {
		return fmt.Errorf("conversation %s: %w", m.ConversationID, common.ErrNotFound)
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	msgs := append(r.messages[m.ConversationID], m)
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
	r.messages[m.ConversationID] = msgs
	return nil
}

func (r *MemoryRepository) MarkViewed(ctx context.Context, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for cid, msgs := range r.messages {
		for i := range msgs {
			if msgs[i].ID == messageID {
				r.messages[cid][i].Viewed = true
				return nil
			}
		}
	}
	return fmt.Errorf("message %s: %w", messageID, common.ErrNotFound)
}

func (r *MemoryRepository) DeleteConversation(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conversations, id)
	delete(r.messages, id)
	return nil
}
