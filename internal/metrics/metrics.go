package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the storefront collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	CartMutations  *prometheus.CounterVec
	ActiveSessions prometheus.Gauge
	Checkouts      *prometheus.CounterVec
	CatalogCalls   *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		CartMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "cart_mutations_total",
			Help:      "Committed cart mutations by kind.",
		}, []string{"kind"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "storefront",
			Name:      "active_sessions",
			Help:      "Sessions currently held in memory.",
		}),
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "checkouts_total",
			Help:      "Checkout attempts by outcome.",
		}, []string{"outcome"}),
		CatalogCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "catalog_requests_total",
			Help:      "Catalog API requests by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.CartMutations,
		m.ActiveSessions,
		m.Checkouts,
		m.CatalogCalls,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) CartMutation(kind string) {
	if m == nil {
		return
	}
	m.CartMutations.WithLabelValues(kind).Inc()
}

func (m *Metrics) Checkout(outcome string) {
	if m == nil {
		return
	}
	m.Checkouts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CatalogCall(outcome string) {
	if m == nil {
		return
	}
	m.CatalogCalls.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
