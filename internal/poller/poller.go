package poller

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fjod/go_cart/storefront/internal/checkout"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const readRetryDelay = time.Second

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type sessionSettler interface {
	Settle(ctx context.Context, sessionID string, paid []domain.CartLine) error
}

// Poller consumes checkout-completed events and takes the paid items out of
// the matching carts. Events this instance published itself are skipped
// because the checkout already settled the cart locally.
type Poller struct {
	reader   messageReader
	sessions sessionSettler
	origin   string
	log      *zap.Logger
}

// NewPoller joins groupID on topic. Every instance needs its own group id so
// that each one sees every checkout.
func NewPoller(sessions sessionSettler, origin, topic, groupID string, log *zap.Logger, brokers ...string) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
	return newPoller(reader, sessions, origin, log)
}

func newPoller(reader messageReader, sessions sessionSettler, origin string, log *zap.Logger) *Poller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{reader: reader, sessions: sessions, origin: origin, log: log}
}

func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		m, err := p.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Warn("error reading checkout event", zap.Error(err))
			select {
			case <-time.After(readRetryDelay):
			case <-ctx.Done():
				return
			}
			continue
		}
		p.handle(ctx, m)
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.Warn("error closing checkout event reader", zap.Error(err))
	}
}

func (p *Poller) handle(ctx context.Context, m kafka.Message) {
	var ev checkout.CompletedEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		p.log.Warn("error parsing checkout event",
			zap.Int64("offset", m.Offset),
			zap.Error(err))
		return
	}
	if ev.SessionID == "" {
		p.log.Warn("checkout event without session_id", zap.String("checkout_id", ev.CheckoutID))
		return
	}
	if ev.Origin == p.origin {
		return
	}

	if err := p.sessions.Settle(ctx, ev.SessionID, paidLines(ev.Items)); err != nil {
		p.log.Warn("failed to settle cart after remote checkout",
			zap.String("session_id", ev.SessionID),
			zap.String("checkout_id", ev.CheckoutID),
			zap.Error(err))
		return
	}
	p.log.Info("cart settled after remote checkout",
		zap.String("session_id", ev.SessionID),
		zap.String("checkout_id", ev.CheckoutID),
		zap.String("origin", ev.Origin))
}

func paidLines(items []checkout.EventItem) []domain.CartLine {
	lines := make([]domain.CartLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, domain.CartLine{
			ProductID: it.ProductID,
			UnitPrice: domain.Money(it.UnitPrice),
			Quantity:  it.Quantity,
		})
	}
	return lines
}
