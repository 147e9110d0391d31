package catalogapi

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
)

// DefaultBaseURL is the public catalog API.
const DefaultBaseURL = "https://fakestoreapi.com"

type endpointKind int

const (
	kindProducts endpointKind = iota
	kindProduct
	kindCategories
	kindProductsByCategory
)

// Endpoint identifies one catalog resource. The zero value is the product list.
type Endpoint struct {
	kind     endpointKind
	id       int
	category string
}

// Products is the full product list.
func Products() Endpoint { return Endpoint{kind: kindProducts} }

// Product is a single product by ID.
func Product(id int) Endpoint { return Endpoint{kind: kindProduct, id: id} }

// Categories is the category name list.
func Categories() Endpoint { return Endpoint{kind: kindCategories} }

// ProductsByCategory is the product list of one category.
func ProductsByCategory(category string) Endpoint {
	return Endpoint{kind: kindProductsByCategory, category: category}
}

// Name is a low-cardinality label for logs and metrics.
func (e Endpoint) Name() string {
	switch e.kind {
	case kindProducts:
		return "products"
	case kindProduct:
		return "product"
	case kindCategories:
		return "categories"
	case kindProductsByCategory:
		return "products_by_category"
	default:
		return "unknown"
	}
}

// Path returns the escaped request path.
func (e Endpoint) Path() string {
	switch e.kind {
	case kindProducts:
		return "/products"
	case kindProduct:
		return "/products/" + strconv.Itoa(e.id)
	case kindCategories:
		return "/products/categories"
	case kindProductsByCategory:
		return "/products/category/" + url.PathEscape(e.category)
	default:
		return ""
	}
}

// URL resolves the endpoint against base.
func (e Endpoint) URL(base string) (string, error) {
	path := e.Path()
	if path == "" {
		return "", ErrInvalidURL
	}
	if e.kind == kindProductsByCategory && e.category == "" {
		return "", errors.Wrap(ErrInvalidURL, "empty category")
	}

	u, err := url.Parse(strings.TrimRight(base, "/") + path)
	if err != nil {
		return "", errors.Wrapf(ErrInvalidURL, "%s: %v", base, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return "", errors.Wrapf(ErrInvalidURL, "%s", base)
	}
	return u.String(), nil
}
