// Package store defines the blob persistence interface for progression
// state. Implementations include a local file store (the default single-device
// store), PostgreSQL, MongoDB, a Redis read-through cache, and in-memory (for
// testing).
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no blob is stored under the key.
var ErrNotFound = errors.New("store: key not found")

// Store persists opaque blobs under string keys. Implementations must be safe
// for concurrent use and must not retain the slices passed to or returned
// from them.
type Store interface {
	// Get returns the blob stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put replaces the blob stored under key.
	Put(ctx context.Context, key string, blob []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
