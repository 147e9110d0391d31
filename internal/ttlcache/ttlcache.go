// Package ttlcache stores timestamped payloads in a key-value store and treats
// them as absent once they are older than a fixed TTL.
package ttlcache

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/kv"
)

// DefaultTTL is the lifetime of a cached entry unless configured otherwise.
const DefaultTTL = time.Hour

// Entry wraps a payload with the time it was stored.
type Entry[T any] struct {
	Data     T         `json:"data"`
	StoredAt time.Time `json:"storedAt"`
}

// Expired reports whether the entry is older than ttl at now.
func (e Entry[T]) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.StoredAt) > ttl
}

// Cache is a TTL cache of T values over a kv.Store.
type Cache[T any] struct {
	store  kv.Store
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	now    func() time.Time
	logger *zap.Logger
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New creates a cache. A non-positive ttl selects DefaultTTL.
func New[T any](store kv.Store, ttl time.Duration, opts ...Option) *Cache[T] {
	o := options{now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache[T]{store: store, ttl: ttl, now: o.now, logger: o.logger}
}

// TTL returns the configured lifetime.
func (c *Cache[T]) TTL() time.Duration {
	return c.ttl
}

// Store saves payload under key stamped with the current time.
func (c *Cache[T]) Store(ctx context.Context, key string, payload T) error {
	return kv.SaveJSON(ctx, c.store, key, Entry[T]{Data: payload, StoredAt: c.now()})
}

// Load returns the payload under key. Missing, expired and undecodable
// entries are reported as found=false; expired and undecodable ones are
// deleted before returning.
func (c *Cache[T]) Load(ctx context.Context, key string) (v T, found bool, err error) {
	entry, found, err := kv.LoadJSON[Entry[T]](ctx, c.store, key)
	if err != nil {
		var perr *kv.PersistenceError
		if errors.As(err, &perr) && perr.Op == "decode" {
			c.logger.Warn("Dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
			return v, false, c.evict(ctx, key)
		}
		return v, false, err
	}
	if !found {
		return v, false, nil
	}
	if entry.Expired(c.now(), c.ttl) {
		c.logger.Debug("Cache entry expired",
			zap.String("key", key),
			zap.Time("stored_at", entry.StoredAt),
		)
		return v, false, c.evict(ctx, key)
	}
	return entry.Data, true, nil
}

// Delete removes key.
func (c *Cache[T]) Delete(ctx context.Context, key string) error {
	return c.evict(ctx, key)
}

func (c *Cache[T]) evict(ctx context.Context, key string) error {
	if err := c.store.Delete(ctx, key); err != nil {
		return &kv.PersistenceError{Op: "delete", Key: key, Err: err}
	}
	return nil
}
