package checkout

import (
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/pricing"
)

const EventTypeCompleted = "checkout.completed"

// CompletedEvent is published once a checkout has been accepted. Amounts are
// in cents.
type CompletedEvent struct {
	CheckoutID  string      `json:"checkout_id"`
	SessionID   string      `json:"session_id"`
	Origin      string      `json:"origin"`
	Items       []EventItem `json:"items"`
	Subtotal    int64       `json:"subtotal"`
	Shipping    int64       `json:"shipping"`
	Tax         int64       `json:"tax"`
	GiftWrap    int64       `json:"gift_wrap"`
	Total       int64       `json:"total"`
	Currency    string      `json:"currency"`
	CompletedAt time.Time   `json:"completed_at"`
}

type EventItem struct {
	ProductID int64  `json:"product_id"`
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

func newCompletedEvent(r *Receipt, origin string) *CompletedEvent {
	items := make([]EventItem, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, EventItem{
			ProductID: it.ProductID,
			Title:     it.Title,
			Quantity:  it.Quantity,
			UnitPrice: int64(it.UnitPrice),
		})
	}

	return &CompletedEvent{
		CheckoutID:  r.CheckoutID,
		SessionID:   r.SessionID,
		Origin:      origin,
		Items:       items,
		Subtotal:    int64(r.Breakdown.Subtotal),
		Shipping:    int64(r.Breakdown.Shipping),
		Tax:         int64(r.Breakdown.Tax),
		GiftWrap:    int64(r.Breakdown.GiftWrap),
		Total:       int64(r.Breakdown.Total),
		Currency:    r.Currency,
		CompletedAt: r.CompletedAt,
	}
}

// Receipt is returned to the shopper after a successful checkout.
type Receipt struct {
	CheckoutID  string            `json:"checkout_id"`
	SessionID   string            `json:"session_id"`
	Status      Status            `json:"status"`
	Items       []Item            `json:"items"`
	Breakdown   pricing.Breakdown `json:"breakdown"`
	Currency    string            `json:"currency"`
	Payment     PaymentMethod     `json:"payment"`
	CardLast4   string            `json:"card_last4,omitempty"`
	ShipTo      Address           `json:"ship_to"`
	CompletedAt time.Time         `json:"completed_at"`
}

type Item struct {
	ProductID int64        `json:"product_id"`
	Title     string       `json:"title"`
	Thumbnail string       `json:"thumbnail,omitempty"`
	Quantity  int          `json:"quantity"`
	UnitPrice domain.Money `json:"unit_price"`
	LineTotal domain.Money `json:"line_total"`
}

type Address struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	City    string `json:"city"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

type Status string

const StatusCompleted Status = "COMPLETED"

// String representation (for logging)
func (s Status) String() string {
	return string(s)
}
