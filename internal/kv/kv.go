// Package kv defines the key-value substrate shared by the product cache and
// the cart/favorites managers, together with an in-memory implementation and
// helpers for namespacing and JSON payloads.
package kv

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned by Store.Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// Store is a byte-oriented key-value store.
//
// Implementations must be safe for concurrent use and must accept payloads of
// arbitrary size.
type Store interface {
	// Get returns the value stored under key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys lists every key that starts with prefix, in no particular order.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// PersistenceError reports a failed load or save of a persisted collection.
type PersistenceError struct {
	Op  string // "load", "decode", "encode", "save" or "delete"
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
