// Package monitoring exposes Prometheus metrics for the proxy, the
// translation pipeline, and the pane bridge.
package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every instrument the service records.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	proxyFetches  *prometheus.CounterVec
	translations  *prometheus.CounterVec
	batchSize     prometheus.Histogram
	activePanes   prometheus.Gauge
	paneMessages  *prometheus.CounterVec
	layoutErrors  *prometheus.CounterVec
	librarySaves  prometheus.Counter
}

// New creates and registers all instruments on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lingolens_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lingolens_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		proxyFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lingolens_proxy_fetches_total",
			Help: "Upstream fetches by outcome.",
		}, []string{"outcome"}),
		translations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lingolens_translations_total",
			Help: "Translation RPCs by kind and outcome.",
		}, []string{"kind", "outcome"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lingolens_batch_size",
			Help:    "Items per batch translation request.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		}),
		activePanes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lingolens_active_panes",
			Help: "Currently attached pane sessions.",
		}),
		paneMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lingolens_pane_messages_total",
			Help: "Protocol messages by direction.",
		}, []string{"direction"}),
		layoutErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lingolens_layout_errors_total",
			Help: "Layout breakage reports by type.",
		}, []string{"type"}),
		librarySaves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lingolens_library_saves_total",
			Help: "Saved page sessions.",
		}),
	}

	reg.MustRegister(
		m.httpRequests, m.httpDuration, m.proxyFetches, m.translations,
		m.batchSize, m.activePanes, m.paneMessages, m.layoutErrors,
		m.librarySaves,
	)
	return m
}

// Handler serves the scrape endpoint.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}

// Middleware records request counts and latency per route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// ProxyFetch records one upstream fetch outcome ("ok", "error", "denied").
func (m *Metrics) ProxyFetch(outcome string) {
	m.proxyFetches.WithLabelValues(outcome).Inc()
}

// Translation records one translation RPC.
func (m *Metrics) Translation(kind string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.translations.WithLabelValues(kind, outcome).Inc()
}

// BatchSize records the item count of a batch request.
func (m *Metrics) BatchSize(n int) {
	m.batchSize.Observe(float64(n))
}

// PaneAttached and PaneDetached track the active pane gauge.
func (m *Metrics) PaneAttached() { m.activePanes.Inc() }

// PaneDetached decrements the active pane gauge.
func (m *Metrics) PaneDetached() { m.activePanes.Dec() }

// PaneMessage records one protocol message ("inbound" or "outbound").
func (m *Metrics) PaneMessage(direction string) {
	m.paneMessages.WithLabelValues(direction).Inc()
}

// LayoutError records one layout breakage report.
func (m *Metrics) LayoutError(errType string) {
	m.layoutErrors.WithLabelValues(errType).Inc()
}

// LibrarySave records one saved session.
func (m *Metrics) LibrarySave() { m.librarySaves.Inc() }
