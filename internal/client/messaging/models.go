// Package messaging encrypts outgoing chat content and decrypts incoming
// history with per-conversation AES-256-GCM keys.
//
// Message persistence and delivery belong to an external Repository; image
// ciphertext lives in an external ContentStore and messages only carry a
// reference to it. The package never stores plaintext.
package messaging

import (
	"time"

	"github.com/dmitrijs2005/cryptchat/internal/models"
)

// The record types live in internal/models so the Postgres store can
// implement Repository without importing this package.
type (
	MessageType  = models.MessageType
	Message      = models.Message
	Conversation = models.Conversation
)

const (
	TypeText  = models.TypeText
	TypeImage = models.TypeImage
)

// DecryptedMessage pairs a message with its plaintext. Exactly one of Text
// and Image is set, depending on Message.Type.
type DecryptedMessage struct {
	Message Message
	Text    string
	Image   []byte
}

// SendOptions carries per-message lifecycle flags.
type SendOptions struct {
	// TTL sets ExpiresAt relative to the send time; zero means no expiry.
	TTL      time.Duration
	ViewOnce bool
}
