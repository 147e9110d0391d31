package repository

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Warm loads every cache partition: all products, the category list and the
// products of each category, at most concurrency catalog lookups at a time.
// It returns the number of partitions loaded. Partitions already cached are
// served from the cache and still count.
func (r *ProductRepository) Warm(ctx context.Context, concurrency int) (int, error) {
	if concurrency <= 0 {
		concurrency = 1
	}

	categories, err := r.Categories(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "categories")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	g.Go(func() error {
		if _, err := r.Products(gctx); err != nil {
			return errors.Wrap(err, "products")
		}
		return nil
	})
	for _, category := range categories {
		g.Go(func() error {
			if _, err := r.ProductsByCategory(gctx, category); err != nil {
				return errors.Wrapf(err, "category %q", category)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	n := 2 + len(categories)
	r.logger.Info("Cache warmed", zap.Int("partitions", n))
	return n, nil
}
