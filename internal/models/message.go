// Package models holds the chat records shared by the client messaging
// service and the Postgres message store. Content fields are always
// ciphertext or references to it.
package models

import (
	"context"
	"time"
)

type MessageType string

const (
	TypeText  MessageType = "TEXT"
	TypeImage MessageType = "IMAGE"
)

// Message is the transport/storage shape of a chat message. For text
// messages EncryptedContent is base64 ciphertext; for images it is a content
// reference. IV is always base64.
type Message struct {
	ID               string      `json:"id"`
	ConversationID   string      `json:"conversation_id"`
	SenderID         string      `json:"sender_id"`
	EncryptedContent string      `json:"encrypted_content"`
	IV               string      `json:"iv"`
	Type             MessageType `json:"message_type"`
	CreatedAt        time.Time   `json:"created_at"`
	EditedAt         *time.Time  `json:"edited_at,omitempty"`
	ExpiresAt        *time.Time  `json:"expires_at,omitempty"`
	ViewOnce         bool        `json:"view_once"`
	Viewed           bool        `json:"viewed"`
}

// Expired reports whether the message has an expiry at or before now.
func (m Message) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

type Conversation struct {
	ID             string    `json:"id"`
	ParticipantIDs []string  `json:"participant_ids"`
	CreatedAt      time.Time `json:"created_at"`
}

// Repository is the conversation/message data store.
// GetConversation returns common.ErrNotFound for unknown ids.
type Repository interface {
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	CreateConversation(ctx context.Context, c Conversation) error
	// GetMessages returns up to limit newest messages, oldest first.
	// limit <= 0 means no limit.
	GetMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)
	SaveMessage(ctx context.Context, m Message) error
	MarkViewed(ctx context.Context, messageID string) error
	DeleteConversation(ctx context.Context, id string) error
}
