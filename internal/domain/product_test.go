package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogRecord = `{
	"id": 1,
	"title": "Essence Mascara Lash Princess",
	"description": "Popular mascara",
	"category": "beauty",
	"price": 9.99,
	"discountPercentage": 7.17,
	"rating": 4.94,
	"stock": 5,
	"tags": ["beauty", "mascara"],
	"thumbnail": "https://cdn.dummyjson.com/1/thumbnail.png"
}`

func TestProduct_KeepsUnknownFields(t *testing.T) {
	var p Product
	require.NoError(t, json.Unmarshal([]byte(catalogRecord), &p))

	assert.Equal(t, int64(1), p.ID)
	assert.True(t, p.Price.Valid)
	assert.Equal(t, "9.99", p.Price.Decimal.String())
	assert.Contains(t, p.Extra, "discountPercentage")
	assert.Contains(t, p.Extra, "tags")
	assert.NotContains(t, p.Extra, "price")

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var back map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &back))
	assert.JSONEq(t, `["beauty", "mascara"]`, string(back["tags"]))
	assert.JSONEq(t, `7.17`, string(back["discountPercentage"]))
}

func TestProduct_UnitPrice(t *testing.T) {
	p := Product{ID: 3, Price: PriceOf("19.99")}
	price, err := p.UnitPrice()
	require.NoError(t, err)
	assert.Equal(t, Money(1999), price)

	_, err = Product{ID: 3}.UnitPrice()
	assert.True(t, IsValidation(err), "missing price")

	_, err = Product{ID: 3, Price: PriceOf("-1")}.UnitPrice()
	assert.True(t, IsValidation(err), "negative price")

	_, err = Product{Price: PriceOf("1")}.UnitPrice()
	assert.True(t, IsValidation(err), "missing id")
}

func TestProduct_MissingPriceInJSON(t *testing.T) {
	var p Product
	require.NoError(t, json.Unmarshal([]byte(`{"id": 2, "title": "x"}`), &p))
	assert.False(t, p.Price.Valid)
}

func TestProduct_ImageFallback(t *testing.T) {
	p := Product{Images: []string{"a.png", "b.png"}}
	assert.Equal(t, "a.png", p.Image())

	p.Thumbnail = "t.png"
	assert.Equal(t, "t.png", p.Image())
}
