// Package serialstore holds a single persisted collection whose every access,
// read or write, is serialized behind one lock.
//
// A mutation loads the whole collection from the key-value store, applies a
// pure function to it, writes the result back and signals subscribers. The lock
// covers that entire span, so two mutations never observe the same snapshot.
package serialstore

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/kv"
	"github.com/xenking/kart-storefront/internal/notify"
)

// MutateFunc derives the next collection from the current one. Returning
// changed=false skips the write and the notification.
type MutateFunc[T any] func(current T) (next T, changed bool, err error)

// Store is a serialized, persisted collection of type T stored as JSON under
// a single key.
type Store[T any] struct {
	mu      sync.Mutex
	kv      kv.Store
	key     string
	changes *notify.Broadcaster
	logger  *zap.Logger
}

// New creates a store persisting under key in store.
func New[T any](store kv.Store, key string, logger *zap.Logger) *Store[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store[T]{
		kv:      store,
		key:     key,
		changes: notify.NewBroadcaster(),
		logger:  logger,
	}
}

// Load returns the current collection, or the zero T if nothing was persisted.
func (s *Store[T]) Load(ctx context.Context) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, _, err := kv.LoadJSON[T](ctx, s.kv, s.key)
	return v, err
}

// Update applies fn atomically relative to every other Load and Update.
// Errors from fn are returned as is; storage failures are *kv.PersistenceError.
// Subscribers are signalled once, only after a successful write.
func (s *Store[T]) Update(ctx context.Context, fn MutateFunc[T]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, _, err := kv.LoadJSON[T](ctx, s.kv, s.key)
	if err != nil {
		return err
	}

	next, changed, err := fn(current)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	if err := kv.SaveJSON(ctx, s.kv, s.key, next); err != nil {
		s.logger.Error("Failed to persist collection",
			zap.String("key", s.key),
			zap.Error(err),
		)
		return err
	}

	s.changes.Publish()
	return nil
}

// Subscribe returns a channel signalled after every successful mutation and a
// function that cancels the subscription.
func (s *Store[T]) Subscribe() (<-chan struct{}, func()) {
	return s.changes.Subscribe()
}
