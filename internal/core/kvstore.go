package core

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is wrapped by KVStore.Get when a key is absent or expired.
var ErrKeyNotFound = errors.New("key not found")

// KVStore defines the interface for key-value store operations.
// The identity link store keeps its records in one.
type KVStore interface {
	// Get retrieves a value by key. Missing keys return an error wrapping
	// ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a key-value pair. A ttl of 0 never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key from the store.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists in the store.
	Exists(ctx context.Context, key string) (bool, error)

	// BatchSet stores multiple key-value pairs with a shared TTL.
	BatchSet(ctx context.Context, items map[string][]byte, ttl time.Duration) error

	// Close releases the connection.
	Close() error
}
