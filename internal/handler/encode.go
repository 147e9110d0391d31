package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-storefront/internal/domain/cart"
	"github.com/xenking/kart-storefront/internal/domain/product"
)

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.StringFixed(2)))
}

func encodeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int(p.ID)
	e.FieldStart("title")
	e.Str(p.Title)
	e.FieldStart("price")
	e.Num(jx.Num(p.Price.String()))
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("category")
	e.Str(p.Category)
	e.FieldStart("image")
	e.Str(p.Image)
	if p.Rating != nil {
		e.FieldStart("rating")
		e.ObjStart()
		e.FieldStart("rate")
		e.Float64(p.Rating.Rate)
		e.FieldStart("count")
		e.Int(p.Rating.Count)
		e.ObjEnd()
	}
	e.ObjEnd()
}

func encodeProducts(e *jx.Encoder, products []product.Product) {
	e.ArrStart()
	for _, p := range products {
		encodeProduct(e, p)
	}
	e.ArrEnd()
}

func encodeStrings(e *jx.Encoder, values []string) {
	e.ArrStart()
	for _, v := range values {
		e.Str(v)
	}
	e.ArrEnd()
}

func encodeInts(e *jx.Encoder, values []int) {
	e.ArrStart()
	for _, v := range values {
		e.Int(v)
	}
	e.ArrEnd()
}

func encodeCartView(e *jx.Encoder, v cart.View) {
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for _, l := range v.Lines {
		e.ObjStart()
		e.FieldStart("product")
		encodeProduct(e, l.Product)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.FieldStart("total")
		encodeMoney(e, l.Total)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("subtotal")
	encodeMoney(e, v.Subtotal)
	e.FieldStart("totalCount")
	e.Int(v.TotalCount)
	e.ObjEnd()
}
