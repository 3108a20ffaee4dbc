package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	cacheWriteTimeout   = time.Second
	cacheRestoreTimeout = 2 * time.Second
)

type gauge interface {
	Set(float64)
}

// Registry hands out one isolated Store per session id and drops sessions
// that have been idle for longer than the session TTL.
type Registry struct {
	ttl       time.Duration
	storeOpts []Option
	cache     cache.SessionCache
	log       *zap.Logger
	onOpen    []func(*Store)
	sessions  gauge
	now       func() time.Time
	sfg       singleflight.Group // one cache restore per session id

	mu      sync.Mutex
	entries map[string]*entry

	stopCleanup chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup
}

type entry struct {
	store       *Store
	lastSeen    time.Time
	unsubscribe func()
}

type RegistryOption func(*Registry)

// WithSessionCache mirrors every committed cart into c and restores carts
// from it when a session is opened.
func WithSessionCache(c cache.SessionCache) RegistryOption {
	return func(r *Registry) { r.cache = c }
}

func WithStoreOptions(opts ...Option) RegistryOption {
	return func(r *Registry) { r.storeOpts = append(r.storeOpts, opts...) }
}

func WithLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) { r.log = l }
}

// WithOnOpen runs fn for every newly created store, typically to subscribe observers.
func WithOnOpen(fn func(*Store)) RegistryOption {
	return func(r *Registry) { r.onOpen = append(r.onOpen, fn) }
}

func WithSessionGauge(g gauge) RegistryOption {
	return func(r *Registry) { r.sessions = g }
}

func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

func NewRegistry(ttl time.Duration, opts ...RegistryOption) *Registry {
	r := &Registry{
		ttl:         ttl,
		log:         zap.NewNop(),
		now:         time.Now,
		entries:     make(map[string]*entry),
		stopCleanup: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.wg.Add(1)
	go r.cleanupLoop(cleanupInterval(ttl))

	return r
}

func cleanupInterval(ttl time.Duration) time.Duration {
	interval := ttl / 4
	if interval < time.Second {
		return time.Second
	}
	if interval > time.Minute {
		return time.Minute
	}
	return interval
}

// Open returns the store of sessionID, creating it when needed.
func (r *Registry) Open(ctx context.Context, sessionID string) (*Store, error) {
	if sessionID == "" {
		return nil, domain.NewValidationError("session_id", "is required")
	}
	if store, ok := r.Lookup(sessionID); ok {
		return store, nil
	}

	v, err, _ := r.sfg.Do(sessionID, func() (interface{}, error) {
		if store, ok := r.Lookup(sessionID); ok {
			return store, nil
		}
		return r.create(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Store), nil
}

// Lookup returns the live store for sessionID and marks the session as active.
func (r *Registry) Lookup(sessionID string) (*Store, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[sessionID]
	if !ok {
		return nil, false
	}
	e.lastSeen = r.now()
	return e.store, true
}

// Settle takes the paid quantities out of the cart of sessionID. A session
// that is not live here is settled in the shared cache, so lines added after
// the checkout snapshot survive.
func (r *Registry) Settle(ctx context.Context, sessionID string, paid []domain.CartLine) error {
	if store, ok := r.Lookup(sessionID); ok {
		return store.Deduct(paid)
	}
	if r.cache == nil {
		return nil
	}

	cached, err := r.cache.Get(ctx, sessionID)
	if errors.Is(err, cache.ErrCacheMiss) || errors.Is(err, cache.ErrCorrupt) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !cached.Deduct(paid) {
		return nil
	}
	if cached.IsEmpty() {
		return r.cache.Delete(ctx, sessionID)
	}
	cached.Version++
	cached.UpdatedAt = r.now().UTC()
	return r.cache.Set(ctx, sessionID, cached)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close stops the background cleanup and waits for it to finish.
func (r *Registry) Close() error {
	r.closeOnce.Do(func() {
		close(r.stopCleanup)
	})
	r.wg.Wait()
	return nil
}

func (r *Registry) create(ctx context.Context, sessionID string) (*Store, error) {
	store := NewStore(sessionID, r.storeOpts...)
	unsubscribe := func() {}

	if r.cache != nil {
		if err := r.restore(ctx, store); err != nil {
			return nil, err
		}
		unsubscribe = store.Subscribe(&cacheWriter{cache: r.cache, log: r.log})
	}
	for _, fn := range r.onOpen {
		fn(store)
	}

	r.mu.Lock()
	r.entries[sessionID] = &entry{store: store, lastSeen: r.now(), unsubscribe: unsubscribe}
	n := len(r.entries)
	r.mu.Unlock()

	r.reportSize(n)
	r.log.Debug("session opened", zap.String("session_id", sessionID))
	return store, nil
}

// restore loads the cached cart into store. It runs detached from the
// caller's cancellation because other callers share its result.
func (r *Registry) restore(ctx context.Context, store *Store) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheRestoreTimeout)
	defer cancel()

	cached, err := r.cache.Get(ctx, store.SessionID())
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil
	}
	if errors.Is(err, cache.ErrCorrupt) {
		r.log.Warn("discarding unreadable cached cart", zap.String("session_id", store.SessionID()), zap.Error(err))
		return nil
	}
	if err != nil {
		r.log.Warn("session cache get error", zap.String("session_id", store.SessionID()), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := store.Restore(*cached); err != nil {
		r.log.Warn("discarding invalid cached cart", zap.String("session_id", store.SessionID()), zap.Error(err))
	}
	return nil
}

func (r *Registry) cleanupLoop(interval time.Duration) {
	defer r.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.evictIdle()
		case <-r.stopCleanup:
			return
		}
	}
}

func (r *Registry) evictIdle() {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	var evicted []*entry
	for id, e := range r.entries {
		if e.lastSeen.Before(cutoff) {
			evicted = append(evicted, e)
			delete(r.entries, id)
		}
	}
	n := len(r.entries)
	r.mu.Unlock()

	for _, e := range evicted {
		e.unsubscribe()
		r.log.Debug("session expired", zap.String("session_id", e.store.SessionID()))
	}
	if len(evicted) > 0 {
		r.reportSize(n)
	}
}

func (r *Registry) reportSize(n int) {
	if r.sessions != nil {
		r.sessions.Set(float64(n))
	}
}

// cacheWriter mirrors committed carts into the session cache.
type cacheWriter struct {
	cache cache.SessionCache
	log   *zap.Logger
}

func (w *cacheWriter) CartChanged(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
	defer cancel()

	var err error
	if ev.Kind == EventCleared {
		err = w.cache.Delete(ctx, ev.SessionID)
	} else {
		state := ev.State
		err = w.cache.Set(ctx, ev.SessionID, &state)
	}
	if err != nil {
		w.log.Warn("session cache write failed",
			zap.String("session_id", ev.SessionID),
			zap.String("event", string(ev.Kind)),
			zap.Error(err))
	}
}
