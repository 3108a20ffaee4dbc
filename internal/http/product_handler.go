package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_cart/storefront/internal/catalog"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Catalog interface {
	List(ctx context.Context, limit, skip int) (*catalog.Page, error)
	Search(ctx context.Context, query string) (*catalog.Page, error)
	Category(ctx context.Context, slug string) (*catalog.Page, error)
	Get(ctx context.Context, id int64) (*domain.Product, error)
}

type ProductHandler struct {
	catalog Catalog
	timeout time.Duration
	log     *zap.Logger
}

func NewProductHandler(c Catalog, timeout time.Duration, log *zap.Logger) *ProductHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProductHandler{
		catalog: c,
		timeout: timeout,
		log:     log,
	}
}

// GET /api/v1/products?limit=&skip= (or &page=)
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	q := r.URL.Query()
	limit, ok := queryInt(w, q.Get("limit"), "limit", catalog.DefaultPageSize)
	if !ok {
		return
	}
	skip, ok := queryInt(w, q.Get("skip"), "skip", 0)
	if !ok {
		return
	}
	if q.Get("page") != "" {
		page, ok := queryInt(w, q.Get("page"), "page", 1)
		if !ok {
			return
		}
		skip = catalog.PageOffset(page, limit)
	}

	res, err := h.catalog.List(ctx, limit, skip)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// GET /api/v1/products/search?q=
func (h *ProductHandler) Search(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.catalog.Search(ctx, r.URL.Query().Get("q"))
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// GET /api/v1/products/category/{category}
func (h *ProductHandler) Category(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.catalog.Category(ctx, chi.URLParam(r, "category"))
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// GET /api/v1/products/{id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "id must be a positive integer")
		return
	}

	p, err := h.catalog.Get(ctx, id)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func queryInt(w http.ResponseWriter, raw, name string, def int) (int, bool) {
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_"+name, name+" must be an integer")
		return 0, false
	}
	return v, true
}
