package messaging

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/cryptchat/internal/client/keystore"
	"github.com/dmitrijs2005/cryptchat/internal/common"
	"github.com/dmitrijs2005/cryptchat/internal/cryptox"
	"github.com/dmitrijs2005/cryptchat/internal/keyexchange"
	"github.com/dmitrijs2005/cryptchat/internal/logging"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// batchParallelism bounds concurrent image fetches in DecryptMessages.
const batchParallelism = 4

var errNoContentStore = errors.New("messaging: no content store configured")

// Service encrypts and decrypts conversation content. It is safe for
// concurrent use; key rotation racing with in-flight calls for the same
// conversation is not ordered.
type Service struct {
	keys    keystore.Store
	repo    Repository
	content ContentStore
	logger  logging.Logger

	now   func() time.Time
	newID func() string
}

// NewService wires a Service. content may be nil when image messages are
// not used.
func NewService(keys keystore.Store, repo Repository, content ContentStore, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Service{
		keys:    keys,
		repo:    repo,
		content: content,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// ConversationID returns the deterministic id for a two-party conversation.
func ConversationID(userA, userB string) string {
	if userA < userB {
		return userA + ":" + userB
	}
	return userB + ":" + userA
}

func (s *Service) key(ctx context.Context, conversationID string) ([]byte, error) {
	key, err := s.keys.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return key, nil
}

// EncryptForConversation seals plaintext under the conversation key. A
// missing key yields common.ErrKeyNotFound; keys are created by
// StartConversation or EstablishKey, not here.
func (s *Service) EncryptForConversation(ctx context.Context, conversationID, plaintext string) (cryptox.EncryptedPayload, error) {
	key, err := s.key(ctx, conversationID)
	if err != nil {
		return cryptox.EncryptedPayload{}, err
	}
	defer common.WipeByteArray(key)
	return cryptox.EncryptString(plaintext, key)
}

func (s *Service) DecryptForConversation(ctx context.Context, conversationID string, p cryptox.EncryptedPayload) (string, error) {
	key, err := s.key(ctx, conversationID)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(key)
	return cryptox.DecryptString(p, key)
}

// EstablishKey runs DH agreement and stores the result as the conversation
// key, replacing any previous one.
func (s *Service) EstablishKey(ctx context.Context, conversationID, ownPrivateHex, otherPublicHex string) error {
	secret, err := keyexchange.ComputeSharedSecret(ownPrivateHex, otherPublicHex)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(secret)
	if err := s.keys.Put(ctx, conversationID, secret); err != nil {
		return err
	}
	s.logger.Info(ctx, "conversation key established", "conversation_id", conversationID, "method", "dh")
	return nil
}

// CreateConversationKey stores a freshly generated random key for the
// conversation, replacing any previous one.
func (s *Service) CreateConversationKey(ctx context.Context, conversationID string) error {
	key, err := cryptox.GenerateKey()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(key)
	if err := s.keys.Put(ctx, conversationID, key); err != nil {
		return err
	}
	s.logger.Info(ctx, "conversation key created", "conversation_id", conversationID, "method", "random")
	return nil
}

// StartConversation returns the two-party conversation between userA and
// userB, creating the repository record if it does not exist yet. A random
// conversation key is stored when none exists; an existing key is kept.
func (s *Service) StartConversation(ctx context.Context, userA, userB string) (*Conversation, error) {
	conv, err := s.getOrCreateConversation(ctx, userA, userB)
	if err != nil {
		return nil, err
	}
	exists, err := s.keys.Exists(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := s.CreateConversationKey(ctx, conv.ID); err != nil {
			return nil, err
		}
	}
	return conv, nil
}

func (s *Service) getOrCreateConversation(ctx context.Context, userA, userB string) (*Conversation, error) {
	id := ConversationID(userA, userB)
	c, err := s.repo.GetConversation(ctx, id)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	conv := Conversation{ID: id, ParticipantIDs: []string{userA, userB}, CreatedAt: s.now().UTC()}
	if err := s.repo.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *Service) newMessage(conversationID, senderID string, t MessageType, opts SendOptions) Message {
	now := s.now().UTC()
	m := Message{
		ID:             s.newID(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Type:           t,
		CreatedAt:      now,
		ViewOnce:       opts.ViewOnce,
	}
	if opts.TTL > 0 {
		exp := now.Add(opts.TTL)
		m.ExpiresAt = &exp
	}
	return m
}

// SendText encrypts text and persists it as a new message.
func (s *Service) SendText(ctx context.Context, conversationID, senderID, text string, opts SendOptions) (Message, error) {
	p, err := s.EncryptForConversation(ctx, conversationID, text)
	if err != nil {
		return Message{}, err
	}
	m := s.newMessage(conversationID, senderID, TypeText, opts)
	m.EncryptedContent, m.IV = p.Encode()
	if err := s.repo.SaveMessage(ctx, m); err != nil {
		return Message{}, fmt.Errorf("save message: %w", err)
	}
	return m, nil
}

// SendImage encrypts image under the conversation key with a fresh IV,
// uploads the ciphertext and persists a message carrying the reference.
func (s *Service) SendImage(ctx context.Context, conversationID, senderID string, image []byte, opts SendOptions) (Message, error) {
	if s.content == nil {
		return Message{}, errNoContentStore
	}
	key, err := s.key(ctx, conversationID)
	if err != nil {
		return Message{}, err
	}
	defer common.WipeByteArray(key)

	ct, iv, err := cryptox.Encrypt(image, key)
	if err != nil {
		return Message{}, err
	}
	ref, err := s.content.Put(ctx, ct)
	if err != nil {
		return Message{}, fmt.Errorf("upload image: %w", err)
	}

	m := s.newMessage(conversationID, senderID, TypeImage, opts)
	m.EncryptedContent = ref
	m.IV = base64.StdEncoding.EncodeToString(iv)
	if err := s.repo.SaveMessage(ctx, m); err != nil {
		return Message{}, fmt.Errorf("save message: %w", err)
	}
	s.logger.Debug(ctx, "image message sent", "conversation_id", conversationID, "message_id", m.ID, "size", len(image))
	return m, nil
}

// DecryptImage fetches the referenced ciphertext and opens it with the
// conversation key and the message IV.
func (s *Service) DecryptImage(ctx context.Context, m Message) ([]byte, error) {
	if m.Type != TypeImage {
		return nil, fmt.Errorf("message %s is %s, not an image", m.ID, m.Type)
	}
	if s.content == nil {
		return nil, errNoContentStore
	}
	iv, err := base64.StdEncoding.DecodeString(m.IV)
	if err != nil {
		return nil, fmt.Errorf("%w: iv encoding: %v", common.ErrAuthenticationFailure, err)
	}
	key, err := s.key(ctx, m.ConversationID)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	ct, err := s.content.Fetch(ctx, m.EncryptedContent)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	return cryptox.Decrypt(ct, iv, key)
}

func (s *Service) decryptOne(ctx context.Context, m Message) (DecryptedMessage, error) {
	switch m.Type {
	case TypeText:
		p, err := cryptox.DecodePayload(m.EncryptedContent, m.IV)
		if err != nil {
			return DecryptedMessage{}, err
		}
		text, err := s.DecryptForConversation(ctx, m.ConversationID, p)
		if err != nil {
			return DecryptedMessage{}, err
		}
		return DecryptedMessage{Message: m, Text: text}, nil
	case TypeImage:
		img, err := s.DecryptImage(ctx, m)
		if err != nil {
			return DecryptedMessage{}, err
		}
		return DecryptedMessage{Message: m, Image: img}, nil
	default:
		return DecryptedMessage{}, fmt.Errorf("unknown message type %q", m.Type)
	}
}

// DecryptMessages decrypts msgs independently. Messages that fail (missing
// key, bad IV, tag mismatch, fetch error) are logged and left out; expired
// and already-viewed view-once messages are left out silently. Order is
// preserved.
func (s *Service) DecryptMessages(ctx context.Context, conversationID string, msgs []Message) []DecryptedMessage {
	now := s.now()
	results := make([]*DecryptedMessage, len(msgs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchParallelism)
	for i, m := range msgs {
		if m.ConversationID == "" {
			m.ConversationID = conversationID
		}
		if m.Expired(now) || (m.ViewOnce && m.Viewed) {
			continue
		}
		g.Go(func() error {
			dm, err := s.decryptOne(gctx, m)
			if err != nil {
				s.logger.Warn(ctx, "skipping undecryptable message",
					"conversation_id", m.ConversationID,
					"message_id", m.ID,
					"reason", errorKind(err))
				return nil
			}
			results[i] = &dm
			return nil
		})
	}
	_ = g.Wait()

	out := make([]DecryptedMessage, 0, len(msgs))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// LoadConversation reads up to limit messages from the repository and
// decrypts them. View-once messages returned here are marked viewed.
func (s *Service) LoadConversation(ctx context.Context, conversationID string, limit int) ([]DecryptedMessage, error) {
	msgs, err := s.repo.GetMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	out := s.DecryptMessages(ctx, conversationID, msgs)
	for _, dm := range out {
		if dm.Message.ViewOnce && !dm.Message.Viewed {
			if err := s.repo.MarkViewed(ctx, dm.Message.ID); err != nil {
				s.logger.Warn(ctx, "mark viewed failed", "message_id", dm.Message.ID, "error", err)
			}
		}
	}
	return out, nil
}

// DeleteConversation removes the conversation from the repository and
// destroys its key. Ciphertext left anywhere else becomes unreadable.
func (s *Service) DeleteConversation(ctx context.Context, conversationID string) error {
	if err := s.repo.DeleteConversation(ctx, conversationID); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if err := s.keys.Delete(ctx, conversationID); err != nil {
		return fmt.Errorf("delete conversation key: %w", err)
	}
	s.logger.Info(ctx, "conversation deleted", "conversation_id", conversationID)
	return nil
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, common.ErrKeyNotFound):
		return "key_not_found"
	case errors.Is(err, common.ErrAuthenticationFailure):
		return "authentication_failure"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}
