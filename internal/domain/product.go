package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Product is a catalog record. Fields the catalog sends that are not modelled
// here are kept in Extra and written back out unchanged.
type Product struct {
	ID          int64               `json:"id"`
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	Category    string              `json:"category,omitempty"`
	Brand       string              `json:"brand,omitempty"`
	Price       decimal.NullDecimal `json:"price"`
	Rating      float64             `json:"rating,omitempty"`
	Stock       int                 `json:"stock,omitempty"`
	Thumbnail   string              `json:"thumbnail,omitempty"`
	Images      []string            `json:"images,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var productFields = []string{
	"id", "title", "description", "category", "brand",
	"price", "rating", "stock", "thumbnail", "images",
}

// PriceOf wraps a decimal for Product.Price.
func PriceOf(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

// UnitPrice validates the product as cart input and returns its price in cents.
func (p Product) UnitPrice() (Money, error) {
	if p.ID <= 0 {
		return 0, NewValidationError("product_id", "must be greater than 0")
	}
	if !p.Price.Valid {
		return 0, NewValidationError("price", "is required")
	}
	if p.Price.Decimal.IsNegative() {
		return 0, NewValidationError("price", "must not be negative")
	}
	return MoneyFromDecimal(p.Price.Decimal)
}

// Image returns the thumbnail, falling back to the first gallery image.
func (p Product) Image() string {
	if p.Thumbnail != "" {
		return p.Thumbnail
	}
	if len(p.Images) > 0 {
		return p.Images[0]
	}
	return ""
}

func (p *Product) UnmarshalJSON(data []byte) error {
	type plain Product
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decode product: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode product: %w", err)
	}
	for _, k := range productFields {
		delete(raw, k)
	}
	if len(raw) > 0 {
		v.Extra = raw
	}

	*p = Product(v)
	return nil
}

func (p Product) MarshalJSON() ([]byte, error) {
	type plain Product
	data, err := json.Marshal(plain(p))
	if err != nil || len(p.Extra) == 0 {
		return data, err
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for k, v := range p.Extra {
		if _, known := merged[k]; !known {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}
