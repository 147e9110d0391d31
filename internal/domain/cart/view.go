package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-storefront/internal/domain/product"
)

// ProductLister provides the catalog used to resolve cart entries.
type ProductLister interface {
	Products(ctx context.Context) ([]product.Product, error)
}

// Line is a cart entry resolved against the catalog.
type Line struct {
	Product  product.Product
	Quantity int
	Total    decimal.Decimal
}

// View is the priced cart.
type View struct {
	Lines      []Line
	Subtotal   decimal.Decimal
	TotalCount int
}

// BuildView joins entries with products. Entries whose product is not in the
// catalog are left out of Lines and Subtotal but still count in TotalCount.
func BuildView(entries []Entry, products []product.Product) View {
	byID := product.Index(products)

	v := View{
		Lines:      make([]Line, 0, len(entries)),
		Subtotal:   decimal.Zero,
		TotalCount: totalCount(entries),
	}
	for _, e := range entries {
		p, ok := byID[e.ProductID]
		if !ok {
			continue
		}
		total := p.Price.Mul(decimal.NewFromInt(int64(e.Quantity))).Round(2)
		v.Lines = append(v.Lines, Line{Product: p, Quantity: e.Quantity, Total: total})
		v.Subtotal = v.Subtotal.Add(total)
	}
	v.Subtotal = v.Subtotal.Round(2)
	return v
}

// View resolves the current cart against the catalog.
func (m *Manager) View(ctx context.Context, catalog ProductLister) (View, error) {
	entries, err := m.Items(ctx)
	if err != nil {
		return View{}, err
	}
	if len(entries) == 0 {
		return BuildView(entries, nil), nil
	}

	products, err := catalog.Products(ctx)
	if err != nil {
		return View{}, errors.Wrap(err, "list products")
	}
	return BuildView(entries, products), nil
}
