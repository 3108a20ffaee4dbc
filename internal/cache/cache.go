package cache

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

// SessionCache keeps a copy of each session's cart for the lifetime of the session.
type SessionCache interface {
	Get(ctx context.Context, sessionID string) (*domain.CartState, error)
	Set(ctx context.Context, sessionID string, cart *domain.CartState) error
	Delete(ctx context.Context, sessionID string) error
}

var (
	ErrCacheMiss = errors.New("cache miss")
	// ErrCorrupt is returned for an entry that exists but cannot be decoded.
	ErrCorrupt = errors.New("corrupt cache entry")
)
