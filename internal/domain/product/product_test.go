package product

import (
	"encoding/json"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProduct_DecodeCatalogPayload(t *testing.T) {
	payload := `{
		"id": 1,
		"title": "Fjallraven - Foldsack No. 1 Backpack, Fits 15 Laptops",
		"price": 109.95,
		"description": "Your perfect pack for everyday use",
		"category": "men's clothing",
		"image": "https://fakestoreapi.com/img/81fPKd-2AYL._AC_SL1500_.jpg",
		"rating": {"rate": 3.9, "count": 120}
	}`

	var p Product
	require.NoError(t, json.Unmarshal([]byte(payload), &p))

	assert.Equal(t, 1, p.ID)
	assert.True(t, decimal.RequireFromString("109.95").Equal(p.Price))
	assert.Equal(t, "men's clothing", p.Category)
	require.NotNil(t, p.Rating)
	assert.InDelta(t, 3.9, p.Rating.Rate, 1e-9)
	assert.Equal(t, 120, p.Rating.Count)
}

func TestProduct_RatingOptional(t *testing.T) {
	var p Product
	require.NoError(t, json.Unmarshal([]byte(`{"id":2,"title":"x","price":"1.50"}`), &p))
	assert.Nil(t, p.Rating)
	assert.True(t, decimal.RequireFromString("1.5").Equal(p.Price))
}

func TestIndex(t *testing.T) {
	idx := Index([]Product{{ID: 1}, {ID: 3}})
	assert.Len(t, idx, 2)
	_, ok := idx[3]
	assert.True(t, ok)
}

func TestNotFoundError(t *testing.T) {
	cause := errors.New("http status 404")
	err := errors.Wrap(&NotFoundError{ID: 7, Err: cause}, "fetch product")

	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "product 7 not found")
}
