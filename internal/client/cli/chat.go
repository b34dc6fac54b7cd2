package cli

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/cryptchat/internal/client/messaging"
	"github.com/dmitrijs2005/cryptchat/internal/cryptox"
	"github.com/dmitrijs2005/cryptchat/internal/keyexchange"
)

// defaultHistoryLimit caps how many messages History prints.
const defaultHistoryLimit = 50

// NewConversation opens the conversation with peer. The service gives it a
// random key unless one is already stored.
func (a *App) NewConversation(ctx context.Context, peer string) error {
	conv, err := a.chat.StartConversation(ctx, a.config.UserID, peer)
	if err != nil {
		return a.fail(err)
	}
	a.println("Conversation", conv.ID)
	return nil
}

// DHGen starts a key exchange for the conversation with peer and prints our
// public value. The private half stays in memory until DHAgree.
func (a *App) DHGen(ctx context.Context, peer string) error {
	conv, err := a.chat.StartConversation(ctx, a.config.UserID, peer)
	if err != nil {
		return a.fail(err)
	}
	kp, err := keyexchange.GenerateKeyPair()
	if err != nil {
		return a.fail(err)
	}
	a.dhPending[conv.ID] = kp
	a.println("Send this public key to", peer+":")
	a.println(kp.PublicKey)
	return nil
}

// DHAgree completes the exchange started by DHGen with the peer's public
// value and stores the resulting conversation key.
func (a *App) DHAgree(ctx context.Context, peer, peerPublic string) error {
	id := messaging.ConversationID(a.config.UserID, peer)
	kp, ok := a.dhPending[id]
	if !ok {
		a.println("No pending exchange; run 'dhgen", peer+"' first")
		return nil
	}
	if err := a.chat.EstablishKey(ctx, id, kp.PrivateKey, peerPublic); err != nil {
		return a.fail(err)
	}
	delete(a.dhPending, id)
	a.println("Key established for", id)
	return nil
}

// Send encrypts and stores a text message. With no text on the command line
// the body is read as multiple lines.
func (a *App) Send(ctx context.Context, peer, text string, opts messaging.SendOptions) error {
	if text == "" {
		var err error
		text, err = GetMultiline(a.reader, "Message", a.out)
		if err != nil {
			return a.fail(err)
		}
	}
	id := messaging.ConversationID(a.config.UserID, peer)
	m, err := a.chat.SendText(ctx, id, a.config.UserID, text, opts)
	if err != nil {
		return a.fail(err)
	}
	a.println("Sent", m.ID)
	return nil
}

func (a *App) SendImage(ctx context.Context, peer, path string, opts messaging.SendOptions) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return a.fail(err)
	}
	id := messaging.ConversationID(a.config.UserID, peer)
	m, err := a.chat.SendImage(ctx, id, a.config.UserID, data, opts)
	if err != nil {
		return a.fail(err)
	}
	a.println("Sent", m.ID)
	return nil
}

// History prints the decryptable part of the conversation. Messages that
// cannot be decrypted are left out.
func (a *App) History(ctx context.Context, peer string, limit int) error {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	id := messaging.ConversationID(a.config.UserID, peer)
	msgs, err := a.chat.LoadConversation(ctx, id, limit)
	if err != nil {
		return a.fail(err)
	}
	for _, dm := range msgs {
		ts := dm.Message.CreatedAt.Local().Format(time.DateTime)
		switch dm.Message.Type {
		case messaging.TypeImage:
			a.printf("[%s] %s: <image, %d bytes>\n", ts, dm.Message.SenderID, len(dm.Image))
		default:
			a.printf("[%s] %s: %s\n", ts, dm.Message.SenderID, dm.Text)
		}
	}
	return nil
}

// Encrypt prints the base64 ciphertext and IV of text under the
// conversation key without storing a message.
func (a *App) Encrypt(ctx context.Context, peer, text string) error {
	id := messaging.ConversationID(a.config.UserID, peer)
	p, err := a.chat.EncryptForConversation(ctx, id, text)
	if err != nil {
		return a.fail(err)
	}
	ct, iv := p.Encode()
	a.println("ciphertext:", ct)
	a.println("iv:", iv)
	return nil
}

func (a *App) Decrypt(ctx context.Context, peer, ciphertext, iv string) error {
	p, err := cryptox.DecodePayload(ciphertext, iv)
	if err != nil {
		return a.fail(err)
	}
	id := messaging.ConversationID(a.config.UserID, peer)
	text, err := a.chat.DecryptForConversation(ctx, id, p)
	if err != nil {
		return a.fail(err)
	}
	a.println(text)
	return nil
}

// Forget deletes the conversation and its key.
func (a *App) Forget(ctx context.Context, peer string) error {
	id := messaging.ConversationID(a.config.UserID, peer)
	if err := a.chat.DeleteConversation(ctx, id); err != nil {
		return a.fail(err)
	}
	delete(a.dhPending, id)
	a.println("Forgot", id)
	return nil
}

// parseSendFlags splits leading "ttl=<duration>" and "once" tokens off a
// send command.
func parseSendFlags(args []string) (messaging.SendOptions, []string, error) {
	var opts messaging.SendOptions
	for len(args) > 0 {
		switch {
		case args[0] == "once":
			opts.ViewOnce = true
		case strings.HasPrefix(args[0], "ttl="):
			d, err := time.ParseDuration(strings.TrimPrefix(args[0], "ttl="))
			if err != nil {
				return opts, nil, err
			}
			opts.TTL = d
		default:
			return opts, args, nil
		}
		args = args[1:]
	}
	return opts, args, nil
}
