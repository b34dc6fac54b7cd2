// Package preferences persists opaque key/value pairs in the client's local
// SQLite database. Values are stored as-is; callers are responsible for
// sealing anything sensitive before it reaches this layer.
package preferences

import (
	"context"
)

type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
