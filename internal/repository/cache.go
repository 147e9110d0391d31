package repository

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/kv"
	"github.com/xenking/kart-storefront/internal/ttlcache"
)

// Cache partitions.
const (
	keyProducts       = "products"
	keyCategories     = "categories"
	keyCategoryPrefix = "category:"
)

// Cache is the product cache used by ProductRepository.
type Cache interface {
	Products(ctx context.Context) ([]product.Product, bool, error)
	SaveProducts(ctx context.Context, products []product.Product) error
	ProductsByCategory(ctx context.Context, category string) ([]product.Product, bool, error)
	SaveProductsByCategory(ctx context.Context, category string, products []product.Product) error
	Categories(ctx context.Context) ([]string, bool, error)
	SaveCategories(ctx context.Context, categories []string) error
	Clear(ctx context.Context) error
}

var _ Cache = (*KVCache)(nil)

// KVCache stores catalog partitions as TTL entries in the cache namespace of a
// kv.Store.
type KVCache struct {
	// mu is held exclusively by Clear so no load or save observes a partly
	// cleared cache.
	mu         sync.RWMutex
	store      kv.Store
	products   *ttlcache.Cache[[]product.Product]
	categories *ttlcache.Cache[[]string]
}

// NewKVCache creates a product cache with the given TTL over store.
func NewKVCache(store kv.Store, ttl time.Duration, opts ...ttlcache.Option) *KVCache {
	ns := kv.WithPrefix(store, kv.NamespaceCache)
	return &KVCache{
		store:      ns,
		products:   ttlcache.New[[]product.Product](ns, ttl, opts...),
		categories: ttlcache.New[[]string](ns, ttl, opts...),
	}
}

func (c *KVCache) Products(ctx context.Context) ([]product.Product, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.products.Load(ctx, keyProducts)
}

func (c *KVCache) SaveProducts(ctx context.Context, products []product.Product) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.products.Store(ctx, keyProducts, products)
}

func (c *KVCache) ProductsByCategory(ctx context.Context, category string) ([]product.Product, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.products.Load(ctx, keyCategoryPrefix+category)
}

func (c *KVCache) SaveProductsByCategory(ctx context.Context, category string, products []product.Product) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.products.Store(ctx, keyCategoryPrefix+category, products)
}

func (c *KVCache) Categories(ctx context.Context) ([]string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.categories.Load(ctx, keyCategories)
}

func (c *KVCache) SaveCategories(ctx context.Context, categories []string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.categories.Store(ctx, keyCategories, categories)
}

// Clear removes every partition, including all per-category entries.
func (c *KVCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys, err := c.store.Keys(ctx, "")
	if err != nil {
		return errors.Wrap(err, "list cache keys")
	}
	for _, k := range keys {
		if err := c.store.Delete(ctx, k); err != nil {
			return &kv.PersistenceError{Op: "delete", Key: k, Err: err}
		}
	}
	return nil
}
