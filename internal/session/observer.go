package session

import "github.com/fjod/go_cart/storefront/internal/domain"

type EventKind string

const (
	EventItemAdded       EventKind = "item_added"
	EventItemRemoved     EventKind = "item_removed"
	EventQuantityChanged EventKind = "quantity_changed"
	EventCleared         EventKind = "cleared"
	EventSettled         EventKind = "settled"
	EventRestored        EventKind = "restored"
)

// Event describes one committed mutation. State is a copy of the cart right
// after the commit.
type Event struct {
	Kind      EventKind
	SessionID string
	ProductID int64
	State     domain.CartState
}

// Observer is notified synchronously after every committed mutation.
// Implementations may read the notifying store but must not mutate it from
// CartChanged.
type Observer interface {
	CartChanged(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) CartChanged(e Event) { f(e) }
