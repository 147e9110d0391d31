// Package favorite implements the persisted, ordered set of favorite product IDs.
package favorite

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/kv"
	"github.com/xenking/kart-storefront/internal/serialstore"
)

const idsKey = "ids"

// Manager owns the favorites set. IDs keep insertion order and never repeat.
// All methods are serialized against each other.
type Manager struct {
	store *serialstore.Store[[]int]
}

// NewManager creates a favorites manager persisting into the favorites
// namespace of store.
func NewManager(store kv.Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store: serialstore.New[[]int](
			kv.WithPrefix(store, kv.NamespaceFavorites),
			idsKey,
			logger.Named("favorites"),
		),
	}
}

// Add appends id unless it is already a favorite.
func (m *Manager) Add(ctx context.Context, id int) error {
	return m.store.Update(ctx, func(ids []int) ([]int, bool, error) {
		return add(ids, id)
	})
}

// Remove drops id from the favorites.
func (m *Manager) Remove(ctx context.Context, id int) error {
	return m.store.Update(ctx, func(ids []int) ([]int, bool, error) {
		return remove(ids, id)
	})
}

// Toggle adds id if absent and removes it otherwise, in a single step.
func (m *Manager) Toggle(ctx context.Context, id int) error {
	return m.store.Update(ctx, func(ids []int) ([]int, bool, error) {
		if slices.Contains(ids, id) {
			return remove(ids, id)
		}
		return add(ids, id)
	})
}

// Contains reports whether id is a favorite.
func (m *Manager) Contains(ctx context.Context, id int) (bool, error) {
	ids, err := m.store.Load(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(ids, id), nil
}

// IDs returns the favorite IDs in the order they were added.
func (m *Manager) IDs(ctx context.Context) ([]int, error) {
	ids, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []int{}
	}
	return ids, nil
}

// Subscribe returns a channel signalled after every successful change.
func (m *Manager) Subscribe() (<-chan struct{}, func()) {
	return m.store.Subscribe()
}

// ProductLister provides the catalog used to resolve favorites.
type ProductLister interface {
	Products(ctx context.Context) ([]product.Product, error)
}

// Products resolves the favorites to catalog products in favorite order.
// IDs unknown to the catalog are skipped.
func (m *Manager) Products(ctx context.Context, catalog ProductLister) ([]product.Product, error) {
	ids, err := m.IDs(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []product.Product{}, nil
	}

	all, err := catalog.Products(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}

	byID := product.Index(all)
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func add(ids []int, id int) ([]int, bool, error) {
	if slices.Contains(ids, id) {
		return ids, false, nil
	}
	return append(ids, id), true, nil
}

func remove(ids []int, id int) ([]int, bool, error) {
	i := slices.Index(ids, id)
	if i < 0 {
		return ids, false, nil
	}
	return slices.Delete(ids, i, i+1), true, nil
}
