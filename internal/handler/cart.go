package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

const maxBodySize = 64 << 10

type cartItemRequest struct {
	ProductID   int
	Quantity    int
	HasQuantity bool
}

// decodeCartItem reads {"productId": int, "quantity": int}. Fields other than
// those two are ignored.
func decodeCartItem(r io.Reader) (cartItemRequest, error) {
	var req cartItemRequest
	d := jx.Decode(r, 512)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			req.ProductID, err = d.Int()
		case "quantity":
			req.Quantity, err = d.Int()
			req.HasQuantity = true
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return req, errors.Wrap(errInvalidBody, err.Error())
	}
	return req, nil
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.cart.View(r.Context(), h.catalog)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCartView(e, view) })
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.cart.Clear(r.Context()); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// addCartItem adds one unit unless the body names a quantity.
func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCartItem(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		fail(w, r, err)
		return
	}
	if req.ProductID <= 0 {
		fail(w, r, errors.Wrap(errInvalidBody, "productId is required"))
		return
	}
	if !req.HasQuantity {
		req.Quantity = 1
	}
	if err := h.cart.Add(r.Context(), req.ProductID, req.Quantity); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// setCartItem replaces the quantity; zero or less removes the entry.
func (h *Handler) setCartItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	req, err := decodeCartItem(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		fail(w, r, err)
		return
	}
	if !req.HasQuantity {
		fail(w, r, errors.Wrap(errInvalidBody, "quantity is required"))
		return
	}
	if err := h.cart.SetQuantity(r.Context(), id, req.Quantity); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	h.mutateByID(w, r, h.cart.Remove)
}

func (h *Handler) increaseCartItem(w http.ResponseWriter, r *http.Request) {
	h.mutateByID(w, r, h.cart.Increase)
}

func (h *Handler) decreaseCartItem(w http.ResponseWriter, r *http.Request) {
	h.mutateByID(w, r, h.cart.Decrease)
}
