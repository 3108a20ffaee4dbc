package pricing

import (
	"fmt"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

// Policy holds the checkout charges applied on top of a cart subtotal.
// Every view prices a cart through the same Policy:
//
//	total = subtotal + shipping(subtotal) + tax(subtotal) + gift wrap (if requested)
//
// Tax is charged on the subtotal only.
type Policy struct {
	// Shipping is free when the subtotal is strictly greater than this.
	FreeShippingThreshold domain.Money
	ShippingFee           domain.Money
	TaxRate               decimal.Decimal
	GiftWrapFee           domain.Money
}

// Options are chosen by the shopper during checkout.
type Options struct {
	GiftWrap bool `json:"gift_wrap"`
}

type Breakdown struct {
	ItemCount int          `json:"item_count"`
	Subtotal  domain.Money `json:"subtotal"`
	Shipping  domain.Money `json:"shipping"`
	Tax       domain.Money `json:"tax"`
	GiftWrap  domain.Money `json:"gift_wrap"`
	Total     domain.Money `json:"total"`
}

func DefaultPolicy() Policy {
	return Policy{
		FreeShippingThreshold: domain.MustMoney("100.00"),
		ShippingFee:           domain.MustMoney("9.99"),
		TaxRate:               decimal.RequireFromString("0.08"),
		GiftWrapFee:           domain.MustMoney("4.99"),
	}
}

func (p Policy) Validate() error {
	if p.FreeShippingThreshold < 0 {
		return domain.NewValidationError("free_shipping_threshold", "must not be negative")
	}
	if p.ShippingFee < 0 {
		return domain.NewValidationError("shipping_fee", "must not be negative")
	}
	if p.GiftWrapFee < 0 {
		return domain.NewValidationError("gift_wrap_fee", "must not be negative")
	}
	if p.TaxRate.IsNegative() || p.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
		return domain.NewValidationError("tax_rate", "must be between 0 and 1")
	}
	return nil
}

func (p Policy) Shipping(subtotal domain.Money) domain.Money {
	if subtotal > p.FreeShippingThreshold {
		return 0
	}
	return p.ShippingFee
}

// Tax rounds half away from zero to whole cents.
func (p Policy) Tax(subtotal domain.Money) (domain.Money, error) {
	return domain.MoneyFromDecimal(subtotal.Decimal().Mul(p.TaxRate))
}

// Quote prices a cart state.
func (p Policy) Quote(cart domain.CartState, opts Options) (Breakdown, error) {
	subtotal, err := cart.Subtotal()
	if err != nil {
		return Breakdown{}, fmt.Errorf("subtotal: %w", err)
	}

	b := Breakdown{
		ItemCount: cart.ItemCount(),
		Subtotal:  subtotal,
		Shipping:  p.Shipping(subtotal),
	}
	if b.Tax, err = p.Tax(subtotal); err != nil {
		return Breakdown{}, fmt.Errorf("tax: %w", err)
	}
	if opts.GiftWrap {
		b.GiftWrap = p.GiftWrapFee
	}

	total := subtotal
	for _, charge := range []domain.Money{b.Shipping, b.Tax, b.GiftWrap} {
		if total, err = total.Add(charge); err != nil {
			return Breakdown{}, fmt.Errorf("total: %w", err)
		}
	}
	b.Total = total
	return b, nil
}
