// Package kvstore defines the keyed storage used for the credential slot and the pending write queue.
package kvstore

import (
	"context"

	apperrors "github.com/jrsteele09/go-session-sync/internal/errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = apperrors.ErrNotFound

// Item is one stored key and its raw value.
type Item struct {
	Key   string
	Value []byte
}

// Repo is a keyed store with a stable iteration order.
// List returns items in first-insertion order; overwriting a key keeps its position.
type Repo interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]Item, error)
}
