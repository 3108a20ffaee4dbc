package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/metrics"
	"github.com/fjod/go_cart/storefront/internal/pricing"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const receiptTTL = 24 * time.Hour

// Cart is the part of a session store checkout works with.
type Cart interface {
	SessionID() string
	Policy() pricing.Policy
	Snapshot() domain.CartState
	Settle(paid domain.CartState) error
}

type Publisher interface {
	Publish(ctx context.Context, ev *CompletedEvent) error
}

type Request struct {
	Form           Form
	GiftWrap       bool
	IdempotencyKey string
}

// Service turns a cart into an order receipt. Requests carrying the same
// idempotency key for the same session complete at most once and receive the
// same receipt.
type Service struct {
	publisher Publisher
	origin    string
	currency  string
	validate  *validator.Validate
	log       *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
	newID     func() string

	sfg      singleflight.Group
	mu       sync.Mutex
	receipts map[string]storedReceipt
}

type storedReceipt struct {
	receipt *Receipt
	at      time.Time
}

type Option func(*Service)

// WithPublisher announces completed checkouts through p. Without a publisher
// checkouts complete locally only.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithOrigin tags published events so the instance can recognise its own.
func WithOrigin(origin string) Option {
	return func(s *Service) { s.origin = origin }
}

func WithCurrency(currency string) Option {
	return func(s *Service) { s.currency = currency }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(opts ...Option) *Service {
	s := &Service{
		currency: "USD",
		validate: newValidator(),
		log:      zap.NewNop(),
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
		receipts: make(map[string]storedReceipt),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Checkout validates the form, prices the cart, publishes the completed
// event and removes the paid items from the cart. When publishing fails the
// cart is left as it was.
func (s *Service) Checkout(ctx context.Context, cart Cart, req Request) (*Receipt, error) {
	if err := validateForm(s.validate, req.Form, s.now()); err != nil {
		s.metrics.Checkout("invalid")
		return nil, err
	}

	if req.IdempotencyKey == "" {
		return s.complete(ctx, cart, req)
	}

	key := cart.SessionID() + "|" + req.IdempotencyKey
	if r, ok := s.lookup(key); ok {
		s.log.Info("duplicate checkout request",
			zap.String("session_id", cart.SessionID()),
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.String("checkout_id", r.CheckoutID))
		s.metrics.Checkout("duplicate")
		return r, nil
	}

	v, err, _ := s.sfg.Do(key, func() (interface{}, error) {
		if r, ok := s.lookup(key); ok {
			return r, nil
		}
		r, err := s.complete(ctx, cart, req)
		if err != nil {
			return nil, err
		}
		s.remember(key, r)
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Receipt), nil
}

func (s *Service) complete(ctx context.Context, cart Cart, req Request) (*Receipt, error) {
	snapshot := cart.Snapshot()
	if snapshot.IsEmpty() {
		s.metrics.Checkout("empty")
		return nil, ErrEmptyCart
	}

	breakdown, err := cart.Policy().Quote(snapshot, pricing.Options{GiftWrap: req.GiftWrap})
	if err != nil {
		s.metrics.Checkout("failed")
		return nil, fmt.Errorf("price cart: %w", err)
	}

	receipt, err := s.buildReceipt(snapshot, breakdown, req.Form)
	if err != nil {
		s.metrics.Checkout("failed")
		return nil, err
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, newCompletedEvent(receipt, s.origin)); err != nil {
			s.metrics.Checkout("failed")
			return nil, fmt.Errorf("publish checkout %s: %w", receipt.CheckoutID, err)
		}
	}

	if err := cart.Settle(snapshot); err != nil {
		// the order is already announced, the shopper still gets the receipt
		s.log.Error("failed to settle cart after checkout",
			zap.String("session_id", snapshot.SessionID),
			zap.String("checkout_id", receipt.CheckoutID),
			zap.Error(err))
	}

	s.metrics.Checkout("completed")
	s.log.Info("checkout completed",
		zap.String("session_id", snapshot.SessionID),
		zap.String("checkout_id", receipt.CheckoutID),
		zap.Int("items", breakdown.ItemCount),
		zap.String("total", breakdown.Total.String()))
	return receipt, nil
}

func (s *Service) buildReceipt(snapshot domain.CartState, b pricing.Breakdown, f Form) (*Receipt, error) {
	items := make([]Item, 0, len(snapshot.Lines))
	for _, l := range snapshot.Lines {
		total, err := l.LineTotal()
		if err != nil {
			return nil, fmt.Errorf("line total for product %d: %w", l.ProductID, err)
		}
		items = append(items, Item{
			ProductID: l.ProductID,
			Title:     l.Display.Title,
			Thumbnail: l.Display.Thumbnail,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			LineTotal: total,
		})
	}

	r := &Receipt{
		CheckoutID: s.newID(),
		SessionID:  snapshot.SessionID,
		Status:     StatusCompleted,
		Items:      items,
		Breakdown:  b,
		Currency:   s.currency,
		Payment:    f.Payment,
		ShipTo: Address{
			Name:    f.Name,
			Address: f.Address,
			City:    f.City,
			Zip:     f.Zip,
			Country: f.Country,
		},
		CompletedAt: s.now().UTC(),
	}
	if f.Payment == PaymentCard {
		r.CardLast4 = last4(f.CardNumber)
	}
	return r, nil
}

func (s *Service) lookup(key string) (*Receipt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.receipts[key]
	if !ok || s.now().Sub(stored.at) > receiptTTL {
		return nil, false
	}
	return stored.receipt, true
}

func (s *Service) remember(key string, r *Receipt) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, stored := range s.receipts {
		if now.Sub(stored.at) > receiptTTL {
			delete(s.receipts, k)
		}
	}
	s.receipts[key] = storedReceipt{receipt: r, at: now}
}
