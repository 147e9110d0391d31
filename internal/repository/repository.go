// Package repository is the single source of product and category data for
// the rest of the application. It serves from the TTL cache when it can, goes
// to the catalog on a miss, and falls back to the cache when the catalog fails.
package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/kart-storefront/internal/domain/product"
)

// Source tells where a result came from.
type Source int

const (
	// SourceNetwork is a fresh catalog response.
	SourceNetwork Source = iota
	// SourceCache is an unexpired cache entry served without a network call.
	SourceCache
	// SourceOffline is a cache entry served after the catalog failed.
	SourceOffline
)

func (s Source) String() string {
	switch s {
	case SourceNetwork:
		return "network"
	case SourceCache:
		return "cache"
	case SourceOffline:
		return "offline"
	default:
		return fmt.Sprintf("Source(%d)", int(s))
	}
}

var _ product.Repository = (*ProductRepository)(nil)

// Option configures a ProductRepository.
type Option func(*ProductRepository)

// WithLogger sets the logger.
func WithLogger(lg *zap.Logger) Option {
	return func(r *ProductRepository) { r.logger = lg }
}

// WithMeterProvider sets the meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(r *ProductRepository) { r.meter = mp.Meter("storefront") }
}

// ProductRepository merges the product cache with the catalog client.
// Concurrent misses for the same partition share one catalog request.
type ProductRepository struct {
	catalog product.Catalog
	cache   Cache
	group   singleflight.Group
	logger  *zap.Logger
	meter   metric.Meter

	lookups metric.Int64Counter
}

// NewProductRepository creates a repository over catalog and cache.
func NewProductRepository(catalog product.Catalog, cache Cache, opts ...Option) (*ProductRepository, error) {
	r := &ProductRepository{
		catalog: catalog,
		cache:   cache,
		logger:  zap.NewNop(),
		meter:   otel.GetMeterProvider().Meter("storefront"),
	}
	for _, opt := range opts {
		opt(r)
	}

	lookups, err := r.meter.Int64Counter("storefront.repository.lookups",
		metric.WithDescription("Repository lookups by partition and result source"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create lookups counter")
	}
	r.lookups = lookups
	return r, nil
}

// Products returns all products.
func (r *ProductRepository) Products(ctx context.Context) ([]product.Product, error) {
	products, _, err := r.ProductsWithSource(ctx)
	return products, err
}

// ProductsWithSource returns all products and where they came from.
func (r *ProductRepository) ProductsWithSource(ctx context.Context) ([]product.Product, Source, error) {
	return lookup(ctx, r, partition[product.Product]{
		name:  keyProducts,
		load:  r.cache.Products,
		save:  r.cache.SaveProducts,
		fetch: r.catalog.FetchProducts,
	})
}

// ProductsByCategory returns the products of one category.
func (r *ProductRepository) ProductsByCategory(ctx context.Context, category string) ([]product.Product, error) {
	products, _, err := r.ProductsByCategoryWithSource(ctx, category)
	return products, err
}

// ProductsByCategoryWithSource returns the products of one category and where
// they came from.
func (r *ProductRepository) ProductsByCategoryWithSource(ctx context.Context, category string) ([]product.Product, Source, error) {
	return lookup(ctx, r, partition[product.Product]{
		name:     "category",
		category: category,
		load: func(ctx context.Context) ([]product.Product, bool, error) {
			return r.cache.ProductsByCategory(ctx, category)
		},
		save: func(ctx context.Context, v []product.Product) error {
			return r.cache.SaveProductsByCategory(ctx, category, v)
		},
		fetch: func(ctx context.Context) ([]product.Product, error) {
			return r.catalog.FetchProductsByCategory(ctx, category)
		},
	})
}

// Categories returns the category names.
func (r *ProductRepository) Categories(ctx context.Context) ([]string, error) {
	categories, _, err := r.CategoriesWithSource(ctx)
	return categories, err
}

// CategoriesWithSource returns the category names and where they came from.
func (r *ProductRepository) CategoriesWithSource(ctx context.Context) ([]string, Source, error) {
	return lookup(ctx, r, partition[string]{
		name:  keyCategories,
		load:  r.cache.Categories,
		save:  r.cache.SaveCategories,
		fetch: r.catalog.FetchCategories,
	})
}

// Product fetches a single product from the catalog. It never reads or
// writes the cache.
func (r *ProductRepository) Product(ctx context.Context, id int) (product.Product, error) {
	p, err := r.catalog.FetchProduct(ctx, id)
	if err != nil {
		return product.Product{}, err
	}
	r.record(ctx, "product", SourceNetwork)
	return p, nil
}

// CachedProducts returns the cached product list without touching the
// network. found is false when nothing usable is cached.
func (r *ProductRepository) CachedProducts(ctx context.Context) (products []product.Product, found bool, err error) {
	return r.cache.Products(ctx)
}

// ClearCache empties every partition.
func (r *ProductRepository) ClearCache(ctx context.Context) error {
	if err := r.cache.Clear(ctx); err != nil {
		return errors.Wrap(err, "clear cache")
	}
	r.logger.Info("Product cache cleared")
	return nil
}

type partition[E any] struct {
	name     string
	category string
	load     func(ctx context.Context) ([]E, bool, error)
	save     func(ctx context.Context, v []E) error
	fetch    func(ctx context.Context) ([]E, error)
}

func (p partition[E]) flightKey() string {
	if p.category == "" {
		return p.name
	}
	return p.name + ":" + p.category
}

func (p partition[E]) fields(extra ...zap.Field) []zap.Field {
	fields := []zap.Field{zap.String("partition", p.name)}
	if p.category != "" {
		fields = append(fields, zap.String("category", p.category))
	}
	return append(fields, extra...)
}

// lookup is the cache-first, network-second, cache-as-fallback read shared by
// every list partition. Network errors are returned unchanged when no cached
// value can stand in.
func lookup[E any](ctx context.Context, r *ProductRepository, p partition[E]) ([]E, Source, error) {
	if cached, ok := loadCached(ctx, r, p); ok {
		r.logger.Debug("Cache hit", p.fields()...)
		r.record(ctx, p.name, SourceCache)
		return cached, SourceCache, nil
	}

	r.logger.Debug("Cache miss, fetching from catalog", p.fields()...)
	fresh, err := fetchShared(ctx, r, p)
	if err == nil {
		r.record(ctx, p.name, SourceNetwork)
		return fresh, SourceNetwork, nil
	}

	if cached, ok := loadCached(ctx, r, p); ok {
		r.logger.Warn("Catalog unavailable, serving cached data", p.fields(zap.Error(err))...)
		r.record(ctx, p.name, SourceOffline)
		return cached, SourceOffline, nil
	}

	r.recordError(ctx, p.name)
	return nil, SourceNetwork, err
}

// loadCached reports a usable (present and non-empty) cache entry. Cache
// failures are logged and treated as a miss.
func loadCached[E any](ctx context.Context, r *ProductRepository, p partition[E]) ([]E, bool) {
	v, found, err := p.load(ctx)
	if err != nil {
		r.logger.Warn("Failed to read cache", p.fields(zap.Error(err))...)
		return nil, false
	}
	if !found || len(v) == 0 {
		return nil, false
	}
	return v, true
}

// fetchShared fetches the partition from the catalog and stores a successful
// result. Concurrent callers for the same partition wait on one request; the
// request runs detached from any single caller's cancellation.
func fetchShared[E any](ctx context.Context, r *ProductRepository, p partition[E]) ([]E, error) {
	ch := r.group.DoChan(p.flightKey(), func() (any, error) {
		fctx := context.WithoutCancel(ctx)
		v, err := p.fetch(fctx)
		if err != nil {
			return nil, err
		}
		if err := p.save(fctx, v); err != nil {
			r.logger.Warn("Failed to store catalog response in cache", p.fields(zap.Error(err))...)
		}
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			r.logger.Debug("Shared in-flight catalog request", p.fields()...)
		}
		return res.Val.([]E), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *ProductRepository) record(ctx context.Context, partition string, src Source) {
	r.lookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("partition", partition),
		attribute.String("result", src.String()),
	))
}

func (r *ProductRepository) recordError(ctx context.Context, partition string) {
	r.lookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("partition", partition),
		attribute.String("result", "error"),
	))
}
