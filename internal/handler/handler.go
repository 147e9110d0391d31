// Package handler exposes the storefront over HTTP: catalog reads, cart and
// favorites mutations, cached product images, and a server-sent event stream
// of cart and favorites changes.
package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/xenking/kart-storefront/internal/domain/cart"
	"github.com/xenking/kart-storefront/internal/domain/favorite"
	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/imagecache"
	"github.com/xenking/kart-storefront/internal/repository"
)

// Catalog is the product repository as seen by the HTTP layer.
type Catalog interface {
	Products(ctx context.Context) ([]product.Product, error)
	ProductsWithSource(ctx context.Context) ([]product.Product, repository.Source, error)
	Product(ctx context.Context, id int) (product.Product, error)
	CategoriesWithSource(ctx context.Context) ([]string, repository.Source, error)
	ProductsByCategoryWithSource(ctx context.Context, category string) ([]product.Product, repository.Source, error)
	ClearCache(ctx context.Context) error
}

// Cart is the cart manager.
type Cart interface {
	Add(ctx context.Context, productID, quantity int) error
	Remove(ctx context.Context, productID int) error
	SetQuantity(ctx context.Context, productID, quantity int) error
	Increase(ctx context.Context, productID int) error
	Decrease(ctx context.Context, productID int) error
	Clear(ctx context.Context) error
	View(ctx context.Context, catalog cart.ProductLister) (cart.View, error)
	Subscribe() (<-chan struct{}, func())
}

// Favorites is the favorites manager.
type Favorites interface {
	Add(ctx context.Context, id int) error
	Remove(ctx context.Context, id int) error
	Toggle(ctx context.Context, id int) error
	IDs(ctx context.Context) ([]int, error)
	Products(ctx context.Context, catalog favorite.ProductLister) ([]product.Product, error)
	Subscribe() (<-chan struct{}, func())
}

// Images is the product image cache.
type Images interface {
	Load(ctx context.Context, url string) *imagecache.Image
	CancelAll() int
}

var (
	_ Catalog   = (*repository.ProductRepository)(nil)
	_ Cart      = (*cart.Manager)(nil)
	_ Favorites = (*favorite.Manager)(nil)
	_ Images    = (*imagecache.Cache)(nil)
)

// HeaderSource reports whether catalog data came from the network, the cache,
// or the cache after a failed network call.
const HeaderSource = "X-Catalog-Source"

// Config holds non-dependency settings.
type Config struct {
	// EventsHeartbeat is the interval of keep-alive comments on /api/events.
	EventsHeartbeat time.Duration
	// ImageMaxAge is the Cache-Control max-age for served images.
	ImageMaxAge time.Duration
}

func (c Config) withDefaults() Config {
	if c.EventsHeartbeat <= 0 {
		c.EventsHeartbeat = 15 * time.Second
	}
	if c.ImageMaxAge <= 0 {
		c.ImageMaxAge = time.Hour
	}
	return c
}

// Handler serves the storefront API.
type Handler struct {
	catalog   Catalog
	cart      Cart
	favorites Favorites
	images    Images
	cfg       Config

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Handler.
func New(cfg Config, catalog Catalog, carts Cart, favorites Favorites, images Images) *Handler {
	return &Handler{
		catalog:   catalog,
		cart:      carts,
		favorites: favorites,
		images:    images,
		cfg:       cfg.withDefaults(),
		done:      make(chan struct{}),
	}
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.listProducts)
	mux.HandleFunc("GET /api/products/{id}", h.getProduct)
	mux.HandleFunc("GET /api/categories", h.listCategories)
	mux.HandleFunc("GET /api/categories/{category}/products", h.listCategoryProducts)
	mux.HandleFunc("DELETE /api/cache", h.clearCache)

	mux.HandleFunc("GET /api/cart", h.getCart)
	mux.HandleFunc("DELETE /api/cart", h.clearCart)
	mux.HandleFunc("POST /api/cart/items", h.addCartItem)
	mux.HandleFunc("PUT /api/cart/items/{id}", h.setCartItem)
	mux.HandleFunc("DELETE /api/cart/items/{id}", h.removeCartItem)
	mux.HandleFunc("POST /api/cart/items/{id}/increase", h.increaseCartItem)
	mux.HandleFunc("POST /api/cart/items/{id}/decrease", h.decreaseCartItem)

	mux.HandleFunc("GET /api/favorites", h.listFavorites)
	mux.HandleFunc("PUT /api/favorites/{id}", h.addFavorite)
	mux.HandleFunc("DELETE /api/favorites/{id}", h.removeFavorite)
	mux.HandleFunc("POST /api/favorites/{id}/toggle", h.toggleFavorite)

	mux.HandleFunc("GET /api/images", h.getImage)
	mux.HandleFunc("DELETE /api/images/inflight", h.cancelImageFetches)

	mux.HandleFunc("GET /api/events", h.events)
}

// Close ends open event streams so the server can drain. It is meant for
// http.Server.RegisterOnShutdown.
func (h *Handler) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// mutateByID runs a mutation keyed by the {id} path value and answers 204.
func (h *Handler) mutateByID(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id int) error) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := op(r.Context(), id); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
