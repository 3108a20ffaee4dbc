package poller

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/checkout"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/session"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockReader hands out queued messages and then blocks until the context ends.
type MockReader struct {
	messages chan kafka.Message
	mu       sync.Mutex
	closed   bool
}

func newMockReader(msgs ...kafka.Message) *MockReader {
	ch := make(chan kafka.Message, len(msgs))
	for _, m := range msgs {
		ch <- m
	}
	return &MockReader{messages: ch}
}

func (m *MockReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case msg := <-m.messages:
		return msg, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (m *MockReader) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

type settleCall struct {
	sessionID string
	paid      []domain.CartLine
}

type MockSettler struct {
	mu    sync.Mutex
	calls []settleCall
	err   error
}

func (m *MockSettler) Settle(_ context.Context, sessionID string, paid []domain.CartLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, settleCall{sessionID: sessionID, paid: paid})
	return m.err
}

func (m *MockSettler) settled() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	for i, c := range m.calls {
		out[i] = c.sessionID
	}
	return out
}

func eventMessage(t *testing.T, ev checkout.CompletedEvent) kafka.Message {
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	return kafka.Message{Key: []byte(ev.CheckoutID), Value: payload}
}

func TestHandle_SettlesRemoteCheckout(t *testing.T) {
	settler := &MockSettler{}
	p := newPoller(newMockReader(), settler, "instance-a", nil)

	p.handle(context.Background(), eventMessage(t, checkout.CompletedEvent{
		CheckoutID: "chk-1", SessionID: "sess-1", Origin: "instance-b",
		Items: []checkout.EventItem{{ProductID: 3, Title: "Lamp", Quantity: 2, UnitPrice: 1250}},
	}))

	require.Len(t, settler.calls, 1)
	assert.Equal(t, "sess-1", settler.calls[0].sessionID)
	assert.Equal(t, []domain.CartLine{{ProductID: 3, Quantity: 2, UnitPrice: 1250}}, settler.calls[0].paid)
}

func TestHandle_SkipsOwnEvents(t *testing.T) {
	settler := &MockSettler{}
	p := newPoller(newMockReader(), settler, "instance-a", nil)

	p.handle(context.Background(), eventMessage(t, checkout.CompletedEvent{
		CheckoutID: "chk-1", SessionID: "sess-1", Origin: "instance-a",
	}))

	assert.Empty(t, settler.settled())
}

func TestHandle_IgnoresBadPayloads(t *testing.T) {
	settler := &MockSettler{}
	p := newPoller(newMockReader(), settler, "instance-a", nil)

	p.handle(context.Background(), kafka.Message{Value: []byte(`{"checkout_id":`)})
	p.handle(context.Background(), eventMessage(t, checkout.CompletedEvent{CheckoutID: "chk-2", Origin: "instance-b"}))

	assert.Empty(t, settler.settled())
}

func TestHandle_SettleErrorIsNotFatal(t *testing.T) {
	settler := &MockSettler{err: errors.New("redis down")}
	p := newPoller(newMockReader(), settler, "instance-a", nil)

	p.handle(context.Background(), eventMessage(t, checkout.CompletedEvent{
		CheckoutID: "chk-1", SessionID: "sess-1", Origin: "instance-b",
	}))

	assert.Equal(t, []string{"sess-1"}, settler.settled())
}

func TestPoller_Run(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	redisCache := cache.NewRedisCache(client, time.Hour)

	registry := session.NewRegistry(time.Hour, session.WithSessionCache(redisCache))
	t.Cleanup(func() { registry.Close() })

	live, err := registry.Open(ctx, "live")
	require.NoError(t, err)
	require.NoError(t, live.AddOne(domain.Product{ID: 1, Title: "Backpack", Price: domain.PriceOf("25.00")}))
	// added on this instance after the remote checkout took its snapshot
	require.NoError(t, live.AddOne(domain.Product{ID: 4, Title: "Cap", Price: domain.PriceOf("8.00")}))

	// a cart this instance only knows through the shared cache
	require.NoError(t, redisCache.Set(ctx, "cached", &domain.CartState{
		SessionID: "cached",
		Lines: []domain.CartLine{
			{ProductID: 2, UnitPrice: 1000, Quantity: 1},
			{ProductID: 5, UnitPrice: 300, Quantity: 2},
		},
	}))

	reader := newMockReader(
		eventMessage(t, checkout.CompletedEvent{CheckoutID: "chk-1", SessionID: "live", Origin: "instance-b",
			Items: []checkout.EventItem{{ProductID: 1, Quantity: 1, UnitPrice: 2500}}}),
		eventMessage(t, checkout.CompletedEvent{CheckoutID: "chk-2", SessionID: "cached", Origin: "instance-b",
			Items: []checkout.EventItem{{ProductID: 2, Quantity: 1, UnitPrice: 1000}}}),
	)
	p := newPoller(reader, registry, "instance-a", nil)

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, ok := live.Line(1)
		return !ok
	}, 5*time.Second, 20*time.Millisecond)
	cap4, ok := live.Line(4)
	require.True(t, ok, "unpaid line must survive a remote checkout")
	assert.Equal(t, 1, cap4.Quantity)

	require.Eventually(t, func() bool {
		cached, err := redisCache.Get(ctx, "cached")
		return err == nil && len(cached.Lines) == 1
	}, 5*time.Second, 20*time.Millisecond)
	cached, err := redisCache.Get(ctx, "cached")
	require.NoError(t, err)
	assert.Equal(t, int64(5), cached.Lines[0].ProductID)
	assert.Equal(t, 2, cached.Lines[0].Quantity)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop after cancel")
	}

	p.Close()
	assert.True(t, reader.closed)
}
