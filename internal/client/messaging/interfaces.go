package messaging

import (
	"context"

	"github.com/dmitrijs2005/cryptchat/internal/models"
)

// Repository is the external conversation/message data store.
type Repository = models.Repository

// ContentStore holds opaque image ciphertext addressed by reference.
type ContentStore interface {
	Put(ctx context.Context, data []byte) (ref string, err error)
	Fetch(ctx context.Context, ref string) ([]byte, error)
}
