package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/metrics"
	"github.com/fjod/go_cart/storefront/pkg/circuitbreaker"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultPageSize = 30
	MaxPageSize     = 100

	maxBodyBytes = 4 << 20
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrUnavailable     = errors.New("catalog unavailable")
)

// Page is one listing response of the product API.
type Page struct {
	Products []domain.Product `json:"products"`
	Total    int              `json:"total"`
	Skip     int              `json:"skip"`
	Limit    int              `json:"limit"`
}

// Client reads products from the public demo product API. Identical
// concurrent requests share one upstream call and repeated upstream failures
// open a circuit breaker.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	cbCfg   circuitbreaker.Config
	sfg     singleflight.Group
	log     *zap.Logger
	metrics *metrics.Metrics
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithBreaker(cfg circuitbreaker.Config) Option {
	return func(c *Client) { c.cbCfg = cfg }
}

func NewClient(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse catalog url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("catalog url %q must be absolute", baseURL)
	}

	c := &Client{
		baseURL: u,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		cbCfg: circuitbreaker.DefaultConfig("catalog"),
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cbCfg.IsSuccessful = countsAsSuccess
	c.breaker = circuitbreaker.New[[]byte](c.cbCfg, c.log)
	return c, nil
}

// List returns one page of the full catalog. A zero limit means DefaultPageSize.
func (c *Client) List(ctx context.Context, limit, skip int) (*Page, error) {
	if limit == 0 {
		limit = DefaultPageSize
	}
	if limit < 1 || limit > MaxPageSize {
		return nil, domain.NewValidationError("limit", fmt.Sprintf("must be between 1 and %d", MaxPageSize))
	}
	if skip < 0 {
		return nil, domain.NewValidationError("skip", "must not be negative")
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("skip", strconv.Itoa(skip))
	return c.page(ctx, q, "products")
}

// PageOffset converts a 1-based page number into the skip for List.
func PageOffset(page, limit int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit
}

func (c *Client) Search(ctx context.Context, query string) (*Page, error) {
	if query == "" {
		return nil, domain.NewValidationError("q", "is required")
	}
	q := url.Values{}
	q.Set("q", query)
	return c.page(ctx, q, "products", "search")
}

// Category lists the products of a category slug such as "mens-shoes".
func (c *Client) Category(ctx context.Context, slug string) (*Page, error) {
	if slug == "" {
		return nil, domain.NewValidationError("category", "is required")
	}
	return c.page(ctx, nil, "products", "category", slug)
}

func (c *Client) Get(ctx context.Context, id int64) (*domain.Product, error) {
	if id <= 0 {
		return nil, domain.NewValidationError("product_id", "must be greater than 0")
	}

	data, err := c.fetch(ctx, nil, "products", strconv.FormatInt(id, 10))
	if err != nil {
		return nil, err
	}

	var p domain.Product
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode product %d: %w", id, err)
	}
	return &p, nil
}

func (c *Client) page(ctx context.Context, q url.Values, path ...string) (*Page, error) {
	data, err := c.fetch(ctx, q, path...)
	if err != nil {
		return nil, err
	}

	var p Page
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode product page: %w", err)
	}
	return &p, nil
}

func (c *Client) fetch(ctx context.Context, q url.Values, path ...string) ([]byte, error) {
	u := c.baseURL.JoinPath(path...)
	if q != nil {
		u.RawQuery = q.Encode()
	}
	target := u.String()

	v, err, _ := c.sfg.Do(target, func() (interface{}, error) {
		return c.breaker.Execute(func() ([]byte, error) {
			return c.do(ctx, target)
		})
	})

	switch {
	case err == nil:
		c.metrics.CatalogCall("ok")
		return v.([]byte), nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.metrics.CatalogCall("rejected")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	case errors.Is(err, ErrProductNotFound):
		c.metrics.CatalogCall("not_found")
		return nil, err
	default:
		c.metrics.CatalogCall("error")
		c.log.Warn("catalog request failed", zap.String("url", target), zap.Error(err))
		return nil, err
	}
}

func (c *Client) do(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrProductNotFound
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("catalog returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	return data, nil
}

// only transport failures and 5xx responses count against the breaker
func countsAsSuccess(err error) bool {
	return err == nil || !errors.Is(err, ErrUnavailable)
}
