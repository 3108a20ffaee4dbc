package session

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/pricing"
)

// Store owns the cart of a single shopping session. Every operation runs its
// whole read-modify-write under one lock and either fully applies or leaves the
// cart untouched. Observers run after the commit, in commit order.
type Store struct {
	id     string
	policy pricing.Policy
	now    func() time.Time

	mu    sync.RWMutex
	state domain.CartState

	// serialises writers from commit until observers return, so events are
	// delivered in order; always taken before mu
	notifyMu sync.Mutex

	obsMu     sync.Mutex
	observers []subscription
	nextObs   uint64
}

type subscription struct {
	id  uint64
	obs Observer
}

type Option func(*Store)

func WithPolicy(p pricing.Policy) Option {
	return func(s *Store) { s.policy = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(sessionID string, opts ...Option) *Store {
	s := &Store{
		id:     sessionID,
		policy: pricing.DefaultPolicy(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state = domain.CartState{SessionID: sessionID, UpdatedAt: s.now()}
	return s
}

func (s *Store) SessionID() string {
	return s.id
}

func (s *Store) Policy() pricing.Policy {
	return s.policy
}

// Subscribe registers o and returns a function that removes it again.
func (s *Store) Subscribe(o Observer) (unsubscribe func()) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()

	s.nextObs++
	id := s.nextObs
	s.observers = append(s.observers, subscription{id: id, obs: o})

	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		for i, sub := range s.observers {
			if sub.id == id {
				s.observers = append(s.observers[:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

// AddItem puts quantity units of p in the cart. An existing line is
// incremented and keeps the price it was first added at.
func (s *Store) AddItem(p domain.Product, quantity int) error {
	if quantity < 1 {
		return domain.NewValidationError("quantity", "must be greater than 0")
	}
	price, err := p.UnitPrice()
	if err != nil {
		return err
	}

	return s.apply(p.ID, func(c *domain.CartState) (EventKind, error) {
		if i := c.Find(p.ID); i >= 0 {
			line := &c.Lines[i]
			if quantity > math.MaxInt-line.Quantity {
				return "", &domain.ArithmeticError{Op: "add", Reason: "quantity overflows"}
			}
			line.Quantity += quantity
			return EventItemAdded, nil
		}

		c.Lines = append(c.Lines, domain.CartLine{
			ProductID: p.ID,
			UnitPrice: price,
			Quantity:  quantity,
			Display:   domain.DisplayOf(p),
			AddedAt:   s.now(),
		})
		return EventItemAdded, nil
	})
}

func (s *Store) AddOne(p domain.Product) error {
	return s.AddItem(p, 1)
}

// RemoveItem drops the line for productID. Absent ids are ignored.
func (s *Store) RemoveItem(productID int64) error {
	return s.apply(productID, func(c *domain.CartState) (EventKind, error) {
		i := c.Find(productID)
		if i < 0 {
			return "", nil
		}
		removeLine(c, i)
		return EventItemRemoved, nil
	})
}

// UpdateQuantity adds delta to the line's quantity and removes the line when
// the result is zero or less. Absent ids are ignored.
func (s *Store) UpdateQuantity(productID int64, delta int) error {
	return s.apply(productID, func(c *domain.CartState) (EventKind, error) {
		i := c.Find(productID)
		if i < 0 || delta == 0 {
			return "", nil
		}

		current := c.Lines[i].Quantity
		if delta > 0 && current > math.MaxInt-delta {
			return "", &domain.ArithmeticError{Op: "update", Reason: "quantity overflows"}
		}
		if current+delta <= 0 {
			removeLine(c, i)
			return EventItemRemoved, nil
		}
		c.Lines[i].Quantity = current + delta
		return EventQuantityChanged, nil
	})
}

// SetQuantity sets an absolute quantity. Zero and negative values are
// rejected; use RemoveItem to drop a line.
func (s *Store) SetQuantity(productID int64, quantity int) error {
	if quantity < 1 {
		return domain.NewValidationError("quantity", "must be greater than 0")
	}

	return s.apply(productID, func(c *domain.CartState) (EventKind, error) {
		i := c.Find(productID)
		if i < 0 || c.Lines[i].Quantity == quantity {
			return "", nil
		}
		c.Lines[i].Quantity = quantity
		return EventQuantityChanged, nil
	})
}

func (s *Store) Clear() error {
	return s.apply(0, func(c *domain.CartState) (EventKind, error) {
		if c.IsEmpty() {
			return "", nil
		}
		c.Lines = nil
		return EventCleared, nil
	})
}

// Settle removes what was paid for in checkout. When nothing changed since
// the paid snapshot was taken the cart is simply cleared; otherwise only the
// paid quantities are taken out and later additions stay in the cart.
func (s *Store) Settle(paid domain.CartState) error {
	return s.apply(0, func(c *domain.CartState) (EventKind, error) {
		if c.IsEmpty() {
			return "", nil
		}
		if c.Version == paid.Version {
			c.Lines = nil
			return EventCleared, nil
		}
		if !c.Deduct(paid.Lines) {
			return "", nil
		}
		return EventSettled, nil
	})
}

// Deduct takes paid quantities out of the cart without comparing versions.
// It settles checkouts completed elsewhere, whose snapshot versions mean
// nothing to this store.
func (s *Store) Deduct(paid []domain.CartLine) error {
	return s.apply(0, func(c *domain.CartState) (EventKind, error) {
		if !c.Deduct(paid) {
			return "", nil
		}
		if c.IsEmpty() {
			return EventCleared, nil
		}
		return EventSettled, nil
	})
}

// Restore replaces the cart with a previously captured state.
func (s *Store) Restore(state domain.CartState) error {
	if err := state.Validate(); err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	return s.apply(0, func(c *domain.CartState) (EventKind, error) {
		*c = state.Clone()
		c.SessionID = s.id
		return EventRestored, nil
	})
}

// Snapshot returns a copy of the current cart.
func (s *Store) Snapshot() domain.CartState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

func (s *Store) Lines() []domain.CartLine {
	return s.Snapshot().Lines
}

func (s *Store) Line(productID int64) (domain.CartLine, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.state.Find(productID); i >= 0 {
		return s.state.Lines[i], true
	}
	return domain.CartLine{}, false
}

func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Version
}

func (s *Store) ItemCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.ItemCount()
}

func (s *Store) Subtotal() (domain.Money, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Subtotal()
}

func (s *Store) ShippingCost() (domain.Money, error) {
	subtotal, err := s.Subtotal()
	if err != nil {
		return 0, err
	}
	return s.policy.Shipping(subtotal), nil
}

func (s *Store) Tax() (domain.Money, error) {
	subtotal, err := s.Subtotal()
	if err != nil {
		return 0, err
	}
	return s.policy.Tax(subtotal)
}

// Total is subtotal + shipping + tax, plus the gift-wrap fee when the
// checkout flow asks for it.
func (s *Store) Total(opts pricing.Options) (domain.Money, error) {
	b, err := s.Quote(opts)
	if err != nil {
		return 0, err
	}
	return b.Total, nil
}

// Quote prices the cart from a single consistent read.
func (s *Store) Quote(opts pricing.Options) (pricing.Breakdown, error) {
	return s.policy.Quote(s.Snapshot(), opts)
}

func (s *Store) apply(productID int64, change func(*domain.CartState) (EventKind, error)) error {
	// notifyMu before mu: a writer waiting for its turn holds nothing readers need
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	next := s.state.Clone()
	kind, err := change(&next)
	if err == nil && kind != "" {
		if _, errTotal := next.Subtotal(); errTotal != nil {
			err = fmt.Errorf("cart total: %w", errTotal)
		}
	}
	if err != nil || kind == "" {
		s.mu.Unlock()
		return err
	}

	next.Version = max(s.state.Version, next.Version) + 1
	next.UpdatedAt = s.now()
	s.state = next
	ev := Event{Kind: kind, SessionID: s.id, ProductID: productID, State: next.Clone()}
	s.mu.Unlock()

	s.notify(ev)
	return nil
}

func (s *Store) notify(ev Event) {
	s.obsMu.Lock()
	subs := make([]subscription, len(s.observers))
	copy(subs, s.observers)
	s.obsMu.Unlock()

	for _, sub := range subs {
		sub.obs.CartChanged(ev)
	}
}

func removeLine(c *domain.CartState, i int) {
	c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	if len(c.Lines) == 0 {
		c.Lines = nil
	}
}
