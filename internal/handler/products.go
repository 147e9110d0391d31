package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/repository"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, src, err := h.catalog.ProductsWithSource(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeProducts(w, src, products)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	p, err := h.catalog.Product(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	w.Header().Set(HeaderSource, repository.SourceNetwork.String())
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, p) })
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, src, err := h.catalog.CategoriesWithSource(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	w.Header().Set(HeaderSource, src.String())
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeStrings(e, categories) })
}

func (h *Handler) listCategoryProducts(w http.ResponseWriter, r *http.Request) {
	products, src, err := h.catalog.ProductsByCategoryWithSource(r.Context(), r.PathValue("category"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeProducts(w, src, products)
}

func (h *Handler) clearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.ClearCache(r.Context()); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeProducts(w http.ResponseWriter, src repository.Source, products []product.Product) {
	w.Header().Set(HeaderSource, src.String())
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProducts(e, products) })
}
