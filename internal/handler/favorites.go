package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

func (h *Handler) listFavorites(w http.ResponseWriter, r *http.Request) {
	ids, err := h.favorites.IDs(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	products, err := h.favorites.Products(r.Context(), h.catalog)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("ids")
		encodeInts(e, ids)
		e.FieldStart("products")
		encodeProducts(e, products)
		e.ObjEnd()
	})
}

func (h *Handler) addFavorite(w http.ResponseWriter, r *http.Request) {
	h.mutateByID(w, r, h.favorites.Add)
}

func (h *Handler) removeFavorite(w http.ResponseWriter, r *http.Request) {
	h.mutateByID(w, r, h.favorites.Remove)
}

func (h *Handler) toggleFavorite(w http.ResponseWriter, r *http.Request) {
	h.mutateByID(w, r, h.favorites.Toggle)
}
