package handler

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/catalogapi"
	"github.com/xenking/kart-storefront/internal/domain/cart"
	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/kv"
)

// Errors raised by request parsing.
var (
	errInvalidID   = errors.New("invalid id")
	errInvalidBody = errors.New("invalid request body")
)

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("error")
		e.Str(msg)
		e.ObjEnd()
	})
}

// fail maps err to a status and message, logging server-side failures.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request error",
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	writeError(w, status, msg)
}

func classify(err error) (int, string) {
	var (
		perr   *kv.PersistenceError
		herr   *catalogapi.HTTPError
		decErr *catalogapi.DecodingError
		netErr net.Error
	)
	switch {
	case errors.Is(err, errInvalidID), errors.Is(err, errInvalidBody):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, cart.ErrInvalidQuantity):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, product.ErrNotFound):
		return http.StatusNotFound, "product not found"
	case errors.As(err, &perr):
		return http.StatusInternalServerError, "storage unavailable"
	case errors.As(err, &herr):
		return http.StatusBadGateway, fmt.Sprintf("catalog returned HTTP %d", herr.StatusCode)
	case errors.As(err, &decErr):
		return http.StatusBadGateway, "catalog data could not be decoded"
	case errors.Is(err, catalogapi.ErrInvalidResponse):
		return http.StatusBadGateway, "invalid response from catalog"
	case errors.Is(err, catalogapi.ErrInvalidURL):
		return http.StatusBadGateway, "invalid catalog URL"
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr):
		return http.StatusBadGateway, "catalog unavailable"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "request cancelled"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func pathID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		return 0, errors.Wrapf(errInvalidID, "%q", r.PathValue("id"))
	}
	return id, nil
}
