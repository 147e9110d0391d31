package product

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// NotFoundError reports a missing product together with the catalog failure
// that revealed it. It matches ErrNotFound.
type NotFoundError struct {
	ID  int
	Err error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("product %d not found: %v", e.ID, e.Err)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func (e *NotFoundError) Unwrap() error { return e.Err }

// Product represents a catalog item. Values are only ever produced by decoding
// the catalog API or cache representation and are not modified afterwards.
type Product struct {
	ID          int             `json:"id"`
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Image       string          `json:"image"`
	Rating      *Rating         `json:"rating,omitempty"`
}

// Rating is the aggregated customer rating of a product.
type Rating struct {
	Rate  float64 `json:"rate"`
	Count int     `json:"count"`
}

// Catalog is the remote source of product data.
type Catalog interface {
	FetchProducts(ctx context.Context) ([]Product, error)
	FetchProduct(ctx context.Context, id int) (Product, error)
	FetchCategories(ctx context.Context) ([]string, error)
	FetchProductsByCategory(ctx context.Context, category string) ([]Product, error)
}

// Repository defines read operations over the catalog as seen by the app,
// hiding whether data came from the cache or the network.
type Repository interface {
	Products(ctx context.Context) ([]Product, error)
	Product(ctx context.Context, id int) (Product, error)
	Categories(ctx context.Context) ([]string, error)
	ProductsByCategory(ctx context.Context, category string) ([]Product, error)
	ClearCache(ctx context.Context) error
}

// Index maps products by ID.
func Index(products []Product) map[int]Product {
	m := make(map[int]Product, len(products))
	for _, p := range products {
		m[p.ID] = p
	}
	return m
}
