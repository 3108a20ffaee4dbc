package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// CartState is the full content of one shopping session's cart.
type CartState struct {
	SessionID string     `json:"session_id"`
	Lines     []CartLine `json:"lines"`
	Version   uint64     `json:"version"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CartLine is one distinct product in the cart. UnitPrice is captured on the
// first add and never changes afterwards.
type CartLine struct {
	ProductID int64     `json:"product_id"`
	UnitPrice Money     `json:"unit_price"`
	Quantity  int       `json:"quantity"`
	Display   Display   `json:"display"`
	AddedAt   time.Time `json:"added_at"`
}

// Display is carried for the views and never interpreted by the cart.
type Display struct {
	Title       string                     `json:"title"`
	Thumbnail   string                     `json:"thumbnail,omitempty"`
	Description string                     `json:"description,omitempty"`
	Rating      float64                    `json:"rating,omitempty"`
	Attributes  map[string]json.RawMessage `json:"attributes,omitempty"`
}

func DisplayOf(p Product) Display {
	d := Display{
		Title:       p.Title,
		Thumbnail:   p.Image(),
		Description: p.Description,
		Rating:      p.Rating,
	}
	if len(p.Extra) > 0 {
		d.Attributes = make(map[string]json.RawMessage, len(p.Extra))
		for k, v := range p.Extra {
			d.Attributes[k] = v
		}
	}
	return d
}

// LineTotal is UnitPrice * Quantity.
func (l CartLine) LineTotal() (Money, error) {
	return l.UnitPrice.Mul(l.Quantity)
}

func (c CartState) IsEmpty() bool {
	return len(c.Lines) == 0
}

// ItemCount is the number of units across all lines.
func (c CartState) ItemCount() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

func (c CartState) Subtotal() (Money, error) {
	var total Money
	for _, l := range c.Lines {
		lt, err := l.LineTotal()
		if err != nil {
			return 0, fmt.Errorf("line %d: %w", l.ProductID, err)
		}
		if total, err = total.Add(lt); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// Find returns the index of the line for productID or -1.
func (c CartState) Find(productID int64) int {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// Deduct takes the paid quantities out of c. Lines paid for in full are
// removed, products missing from c are ignored. It reports whether c changed.
func (c *CartState) Deduct(paid []CartLine) bool {
	changed := false
	for _, p := range paid {
		i := c.Find(p.ProductID)
		if i < 0 || p.Quantity < 1 {
			continue
		}
		changed = true
		if c.Lines[i].Quantity <= p.Quantity {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			continue
		}
		c.Lines[i].Quantity -= p.Quantity
	}
	if changed && len(c.Lines) == 0 {
		c.Lines = nil
	}
	return changed
}

// Clone returns a copy that shares no slices with c.
func (c CartState) Clone() CartState {
	out := c
	if c.Lines != nil {
		out.Lines = make([]CartLine, len(c.Lines))
		copy(out.Lines, c.Lines)
	}
	return out
}

// Validate checks the cart invariants on state that did not come from the
// store itself, e.g. a cached snapshot.
func (c CartState) Validate() error {
	seen := make(map[int64]struct{}, len(c.Lines))
	for _, l := range c.Lines {
		if l.ProductID <= 0 {
			return NewValidationError("product_id", "must be greater than 0")
		}
		if _, dup := seen[l.ProductID]; dup {
			return NewValidationError("lines", fmt.Sprintf("duplicate product %d", l.ProductID))
		}
		seen[l.ProductID] = struct{}{}
		if l.Quantity < 1 {
			return NewValidationError("quantity", fmt.Sprintf("product %d has quantity %d", l.ProductID, l.Quantity))
		}
		if l.UnitPrice < 0 {
			return NewValidationError("unit_price", fmt.Sprintf("product %d has a negative price", l.ProductID))
		}
	}
	_, err := c.Subtotal()
	return err
}
