package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Cart     *CartHandler
	Products *ProductHandler
	Checkout *CheckoutHandler
	// served on /metrics when set
	Metrics http.Handler

	Log            *zap.Logger
	RequestTimeout time.Duration
	SessionTTL     time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", cfg.Products.List)
			r.Get("/search", cfg.Products.Search)
			r.Get("/category/{category}", cfg.Products.Category)
			r.Get("/{id}", cfg.Products.Get)
		})

		r.Group(func(r chi.Router) {
			r.Use(SessionMiddleware(cfg.SessionTTL))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cfg.Cart.GetCart)
				r.Delete("/", cfg.Cart.ClearCart)
				r.Get("/count", cfg.Cart.Count)
				r.Post("/items", cfg.Cart.AddItem)
				r.Patch("/items/{product_id}", cfg.Cart.UpdateQuantity)
				r.Put("/items/{product_id}", cfg.Cart.SetQuantity)
				r.Delete("/items/{product_id}", cfg.Cart.RemoveItem)
			})
			r.Post("/checkout", cfg.Checkout.Checkout)
		})
	})

	return otelhttp.NewHandler(r, "storefront",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health" && r.URL.Path != "/metrics"
		}))
}
