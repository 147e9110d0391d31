// Package cart implements the shopping cart: a persisted list of product IDs
// with quantities whose operations are serialized per manager instance.
package cart

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/kv"
	"github.com/xenking/kart-storefront/internal/serialstore"
)

// ErrInvalidQuantity is returned by Add for a non-positive quantity.
var ErrInvalidQuantity = errors.New("quantity must be greater than 0")

const itemsKey = "items"

// Entry is one cart line. ProductID refers to a catalog product; the product
// itself is never embedded.
type Entry struct {
	ProductID int `json:"productId"`
	Quantity  int `json:"quantity"`
}

// Manager owns the cart collection. All methods are safe for concurrent use
// and never interleave with each other.
type Manager struct {
	store *serialstore.Store[[]Entry]
}

// NewManager creates a cart manager persisting into the cart namespace of store.
func NewManager(store kv.Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store: serialstore.New[[]Entry](
			kv.WithPrefix(store, kv.NamespaceCart),
			itemsKey,
			logger.Named("cart"),
		),
	}
}

// Add puts quantity units of a product into the cart, creating the entry or
// increasing an existing one.
func (m *Manager) Add(ctx context.Context, productID, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	return m.store.Update(ctx, func(items []Entry) ([]Entry, bool, error) {
		if i := indexOf(items, productID); i >= 0 {
			items[i].Quantity += quantity
			return items, true, nil
		}
		return append(items, Entry{ProductID: productID, Quantity: quantity}), true, nil
	})
}

// Remove deletes the product's entry.
func (m *Manager) Remove(ctx context.Context, productID int) error {
	return m.store.Update(ctx, func(items []Entry) ([]Entry, bool, error) {
		return remove(items, productID)
	})
}

// SetQuantity replaces the quantity of an existing entry. A quantity of zero
// or less removes the entry. Unknown products are ignored.
func (m *Manager) SetQuantity(ctx context.Context, productID, quantity int) error {
	return m.store.Update(ctx, func(items []Entry) ([]Entry, bool, error) {
		if quantity <= 0 {
			return remove(items, productID)
		}
		i := indexOf(items, productID)
		if i < 0 || items[i].Quantity == quantity {
			return items, false, nil
		}
		items[i].Quantity = quantity
		return items, true, nil
	})
}

// Increase adds one unit to an existing entry.
func (m *Manager) Increase(ctx context.Context, productID int) error {
	return m.store.Update(ctx, func(items []Entry) ([]Entry, bool, error) {
		i := indexOf(items, productID)
		if i < 0 {
			return items, false, nil
		}
		items[i].Quantity++
		return items, true, nil
	})
}

// Decrease removes one unit from an existing entry; the last unit removes the
// entry itself.
func (m *Manager) Decrease(ctx context.Context, productID int) error {
	return m.store.Update(ctx, func(items []Entry) ([]Entry, bool, error) {
		i := indexOf(items, productID)
		if i < 0 {
			return items, false, nil
		}
		if items[i].Quantity <= 1 {
			return slices.Delete(items, i, i+1), true, nil
		}
		items[i].Quantity--
		return items, true, nil
	})
}

// Clear empties the cart.
func (m *Manager) Clear(ctx context.Context) error {
	return m.store.Update(ctx, func(items []Entry) ([]Entry, bool, error) {
		if len(items) == 0 {
			return items, false, nil
		}
		return []Entry{}, true, nil
	})
}

// Items returns the cart entries in insertion order.
func (m *Manager) Items(ctx context.Context) ([]Entry, error) {
	items, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []Entry{}
	}
	return items, nil
}

// Quantity returns the quantity of a product, or 0 if it is not in the cart.
func (m *Manager) Quantity(ctx context.Context, productID int) (int, error) {
	items, err := m.store.Load(ctx)
	if err != nil {
		return 0, err
	}
	if i := indexOf(items, productID); i >= 0 {
		return items[i].Quantity, nil
	}
	return 0, nil
}

// Contains reports whether the product is in the cart.
func (m *Manager) Contains(ctx context.Context, productID int) (bool, error) {
	items, err := m.store.Load(ctx)
	if err != nil {
		return false, err
	}
	return indexOf(items, productID) >= 0, nil
}

// TotalCount returns the sum of all quantities.
func (m *Manager) TotalCount(ctx context.Context) (int, error) {
	items, err := m.store.Load(ctx)
	if err != nil {
		return 0, err
	}
	return totalCount(items), nil
}

// Subscribe returns a channel signalled after every successful cart change.
func (m *Manager) Subscribe() (<-chan struct{}, func()) {
	return m.store.Subscribe()
}

func indexOf(items []Entry, productID int) int {
	return slices.IndexFunc(items, func(e Entry) bool { return e.ProductID == productID })
}

func remove(items []Entry, productID int) ([]Entry, bool, error) {
	i := indexOf(items, productID)
	if i < 0 {
		return items, false, nil
	}
	return slices.Delete(items, i, i+1), true, nil
}

func totalCount(items []Entry) int {
	n := 0
	for _, e := range items {
		n += e.Quantity
	}
	return n
}
