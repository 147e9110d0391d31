package handler

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// getImage serves the bytes of a product image, fetching and caching it first
// when needed. Any load failure is a bare 404 so clients show a placeholder.
func (h *Handler) getImage(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	u, err := url.Parse(raw)
	if raw == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		fail(w, r, errors.Wrap(errInvalidBody, "url must be an absolute http(s) URL"))
		return
	}

	known, err := h.catalogImage(r.Context(), raw)
	if err != nil {
		fail(w, r, err)
		return
	}
	if !known {
		writeError(w, http.StatusNotFound, "image is not part of the catalog")
		return
	}

	img := h.images.Load(r.Context(), raw)
	if img == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", img.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(int(h.cfg.ImageMaxAge.Seconds())))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.Data)
}

// catalogImage reports whether raw is the image of a catalog product. Only
// those URLs are fetched on behalf of clients.
func (h *Handler) catalogImage(ctx context.Context, raw string) (bool, error) {
	products, err := h.catalog.Products(ctx)
	if err != nil {
		return false, err
	}
	for _, p := range products {
		if p.Image == raw {
			return true, nil
		}
	}
	return false, nil
}

// cancelImageFetches is the low-memory signal: every in-flight image fetch is
// cancelled, cached images stay.
func (h *Handler) cancelImageFetches(w http.ResponseWriter, _ *http.Request) {
	n := h.images.CancelAll()
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("cancelled")
		e.Int(n)
		e.ObjEnd()
	})
}
