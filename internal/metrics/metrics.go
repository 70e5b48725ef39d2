// Package metrics provides Prometheus metrics collection for tabled.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tabled"

// Collector holds all Prometheus metrics for tabled. A nil *Collector is
// valid and records nothing.
type Collector struct {
	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Import metrics
	ImportsTotal   *prometheus.CounterVec
	ImportedRows   prometheus.Counter
	ImportDuration prometheus.Histogram
	ImportsWaiting prometheus.Gauge

	// Inventory metrics
	SalesTotal           *prometheus.CounterVec
	RentalsTotal         *prometheus.CounterVec
	LedgerWriteFailures  prometheus.Counter
	LockContentionsTotal prometheus.Counter

	// Cache metrics
	CacheLookups *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a collector registered on its own registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c := NewWithRegistry(reg)
	c.registry = reg
	return c
}

// NewWithRegistry creates a collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
		),

		ImportsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "imports_total",
				Help:      "Total number of bulk imports by outcome",
			},
			[]string{"mode", "outcome"},
		),
		ImportedRows: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "imported_rows_total",
				Help:      "Total number of rows written by bulk imports",
			},
		),
		ImportDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "import_duration_seconds",
				Help:      "Bulk import duration in seconds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		ImportsWaiting: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "imports_waiting",
				Help:      "Number of imports waiting for a slot",
			},
		),

		SalesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sales_total",
				Help:      "Total number of purchase attempts by outcome",
			},
			[]string{"outcome"},
		),
		RentalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rental_transitions_total",
				Help:      "Total number of rental state transitions by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		LedgerWriteFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_write_failures_total",
				Help:      "Total number of inventory ledger entries that could not be written",
			},
		),
		LockContentionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "item_lock_contentions_total",
				Help:      "Total number of item lock acquisitions that gave up",
			},
		),

		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Total number of advisory cache lookups by result",
			},
			[]string{"result"},
		),
	}
}

// Handler serves the collector's registry. Collectors built with
// NewWithRegistry fall back to the default gatherer.
func (c *Collector) Handler() http.Handler {
	if c == nil || c.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveImport records one finished import.
func (c *Collector) ObserveImport(mode, outcome string, rows int, seconds float64) {
	if c == nil {
		return
	}
	c.ImportsTotal.WithLabelValues(mode, outcome).Inc()
	c.ImportedRows.Add(float64(rows))
	c.ImportDuration.Observe(seconds)
}

// ImportWaiting adjusts the number of imports queued for a slot.
func (c *Collector) ImportWaiting(delta float64) {
	if c == nil {
		return
	}
	c.ImportsWaiting.Add(delta)
}

// ObserveSale records one purchase attempt.
func (c *Collector) ObserveSale(outcome string) {
	if c == nil {
		return
	}
	c.SalesTotal.WithLabelValues(outcome).Inc()
}

// ObserveRental records one rental transition attempt.
func (c *Collector) ObserveRental(action, outcome string) {
	if c == nil {
		return
	}
	c.RentalsTotal.WithLabelValues(action, outcome).Inc()
}

// LedgerWriteFailed counts a swallowed ledger failure.
func (c *Collector) LedgerWriteFailed() {
	if c == nil {
		return
	}
	c.LedgerWriteFailures.Inc()
}

// LockContended counts an item lock that could not be acquired.
func (c *Collector) LockContended() {
	if c == nil {
		return
	}
	c.LockContentionsTotal.Inc()
}

// CacheLookup counts an advisory cache hit or miss.
func (c *Collector) CacheLookup(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.CacheLookups.WithLabelValues(result).Inc()
}

// RequestStarted tracks one in-flight request. Call the returned func with
// the route pattern and status once the response is written.
func (c *Collector) RequestStarted(method string) func(route string, status int) {
	if c == nil {
		return func(string, int) {}
	}
	c.RequestsInFlight.Inc()
	start := time.Now()
	return func(route string, status int) {
		c.RequestsInFlight.Dec()
		c.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		c.RequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
