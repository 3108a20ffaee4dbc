package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/checkout"
	"go.uber.org/zap"
)

const IdempotencyKeyHeader = "Idempotency-Key"

type Checkouts interface {
	Checkout(ctx context.Context, cart checkout.Cart, req checkout.Request) (*checkout.Receipt, error)
}

type CheckoutHandler struct {
	sessions  Sessions
	checkouts Checkouts
	timeout   time.Duration
	log       *zap.Logger
}

func NewCheckoutHandler(sessions Sessions, checkouts Checkouts, timeout time.Duration, log *zap.Logger) *CheckoutHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CheckoutHandler{
		sessions:  sessions,
		checkouts: checkouts,
		timeout:   timeout,
		log:       log,
	}
}

type CheckoutRequestDTO struct {
	checkout.Form
	GiftWrap bool `json:"gift_wrap"`
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CheckoutRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	sessionID := getSessionID(r.Context())
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session", "session id is required")
		return
	}
	store, err := h.sessions.Open(ctx, sessionID)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	receipt, err := h.checkouts.Checkout(ctx, store, checkout.Request{
		Form:           req.Form,
		GiftWrap:       req.GiftWrap,
		IdempotencyKey: r.Header.Get(IdempotencyKeyHeader),
	})
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusCreated, receipt)
}
