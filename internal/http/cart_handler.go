package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/pricing"
	"github.com/fjod/go_cart/storefront/internal/session"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxLineQuantity = 99

type Sessions interface {
	Open(ctx context.Context, sessionID string) (*session.Store, error)
}

type ProductGetter interface {
	Get(ctx context.Context, id int64) (*domain.Product, error)
}

type CartHandler struct {
	sessions Sessions
	products ProductGetter
	timeout  time.Duration
	log      *zap.Logger
}

func NewCartHandler(sessions Sessions, products ProductGetter, timeout time.Duration, log *zap.Logger) *CartHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CartHandler{
		sessions: sessions,
		products: products,
		timeout:  timeout,
		log:      log,
	}
}

// AddItemRequestDTO names the product either by id or through a product
// record. Only the record's id is used; price and display fields always come
// from the catalog. A missing quantity means one unit.
type AddItemRequestDTO struct {
	Product   *domain.Product `json:"product,omitempty"`
	ProductID int64           `json:"product_id,omitempty"`
	Quantity  *int            `json:"quantity,omitempty"`
}

type UpdateQuantityRequestDTO struct {
	Delta int `json:"delta"`
}

type SetQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type CartLineDTO struct {
	ProductID int64        `json:"product_id"`
	Title     string       `json:"title"`
	Thumbnail string       `json:"thumbnail,omitempty"`
	UnitPrice domain.Money `json:"unit_price"`
	Quantity  int          `json:"quantity"`
	LineTotal domain.Money `json:"line_total"`
}

type CartResponse struct {
	SessionID             string            `json:"session_id"`
	Items                 []CartLineDTO     `json:"items"`
	Summary               pricing.Breakdown `json:"summary"`
	FreeShippingThreshold domain.Money      `json:"free_shipping_threshold"`
	Version               uint64            `json:"version"`
}

type CountResponse struct {
	Count int `json:"count"`
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	store, ok := h.open(w, r)
	if !ok {
		return
	}
	opts, ok := parseOptions(w, r)
	if !ok {
		return
	}
	h.respondCart(w, r, http.StatusOK, store, opts)
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	if quantity < 1 || quantity > maxLineQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	productID := req.ProductID
	if req.Product != nil {
		productID = req.Product.ID
	}
	if productID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product or a positive product_id is required")
		return
	}

	product, err := h.products.Get(ctx, productID)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	store, ok := h.open(w, r)
	if !ok {
		return
	}
	if err := store.AddItem(*product, quantity); err != nil {
		handleError(w, r, h.log, err)
		return
	}

	h.respondCart(w, r, http.StatusCreated, store, pricing.Options{})
}

// PATCH /api/v1/cart/items/{product_id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseProductID(w, r)
	if !ok {
		return
	}

	var req UpdateQuantityRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	store, ok := h.open(w, r)
	if !ok {
		return
	}
	if err := store.UpdateQuantity(productID, req.Delta); err != nil {
		handleError(w, r, h.log, err)
		return
	}

	h.respondCart(w, r, http.StatusOK, store, pricing.Options{})
}

// PUT /api/v1/cart/items/{product_id}
func (h *CartHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseProductID(w, r)
	if !ok {
		return
	}

	var req SetQuantityRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Quantity > maxLineQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	store, ok := h.open(w, r)
	if !ok {
		return
	}
	if err := store.SetQuantity(productID, req.Quantity); err != nil {
		handleError(w, r, h.log, err)
		return
	}

	h.respondCart(w, r, http.StatusOK, store, pricing.Options{})
}

// DELETE /api/v1/cart/items/{product_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseProductID(w, r)
	if !ok {
		return
	}

	store, ok := h.open(w, r)
	if !ok {
		return
	}
	if err := store.RemoveItem(productID); err != nil {
		handleError(w, r, h.log, err)
		return
	}

	h.respondCart(w, r, http.StatusOK, store, pricing.Options{})
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	store, ok := h.open(w, r)
	if !ok {
		return
	}
	if err := store.Clear(); err != nil {
		handleError(w, r, h.log, err)
		return
	}

	h.respondCart(w, r, http.StatusOK, store, pricing.Options{})
}

// GET /api/v1/cart/count
func (h *CartHandler) Count(w http.ResponseWriter, r *http.Request) {
	store, ok := h.open(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, CountResponse{Count: store.ItemCount()})
}

func (h *CartHandler) open(w http.ResponseWriter, r *http.Request) (*session.Store, bool) {
	sessionID := getSessionID(r.Context())
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session", "session id is required")
		return nil, false
	}

	store, err := h.sessions.Open(r.Context(), sessionID)
	if err != nil {
		handleError(w, r, h.log, err)
		return nil, false
	}
	return store, true
}

// respondCart prices one snapshot so the lines and the summary always agree.
func (h *CartHandler) respondCart(w http.ResponseWriter, r *http.Request, status int, store *session.Store, opts pricing.Options) {
	snapshot := store.Snapshot()
	policy := store.Policy()

	summary, err := policy.Quote(snapshot, opts)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	items := make([]CartLineDTO, 0, len(snapshot.Lines))
	for _, l := range snapshot.Lines {
		total, err := l.LineTotal()
		if err != nil {
			handleError(w, r, h.log, err)
			return
		}
		items = append(items, CartLineDTO{
			ProductID: l.ProductID,
			Title:     l.Display.Title,
			Thumbnail: l.Display.Thumbnail,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
			LineTotal: total,
		})
	}

	respondJSON(w, status, CartResponse{
		SessionID:             snapshot.SessionID,
		Items:                 items,
		Summary:               summary,
		FreeShippingThreshold: policy.FreeShippingThreshold,
		Version:               snapshot.Version,
	})
}

func parseProductID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "product_id"), 10, 64)
	if err != nil || productID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return 0, false
	}
	return productID, true
}

func parseOptions(w http.ResponseWriter, r *http.Request) (pricing.Options, bool) {
	var opts pricing.Options
	if v := r.URL.Query().Get("gift_wrap"); v != "" {
		giftWrap, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_gift_wrap", "gift_wrap must be true or false")
			return opts, false
		}
		opts.GiftWrap = giftWrap
	}
	return opts, true
}
