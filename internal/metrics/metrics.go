// Package metrics exposes the prometheus collectors of the API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every recorder is then a no-op.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	salesCreated    *prometheus.CounterVec
	saleRevenue     prometheus.Counter
	cashClosed      *prometheus.CounterVec
	stockEntries    *prometheus.CounterVec
	loginsThrottled prometheus.Counter
}

// New registers the collectors on a dedicated registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stoq_http_requests_total",
			Help: "HTTP requests by route pattern, method and status.",
		}, []string{"route", "method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stoq_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		salesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stoq_sales_created_total",
			Help: "Sales recorded by payment method.",
		}, []string{"payment_method"}),
		saleRevenue: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stoq_sales_revenue_total",
			Help: "Sum of sale totals.",
		}),
		cashClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stoq_cash_sessions_closed_total",
			Help: "Closed cash sessions by reconciliation outcome.",
		}, []string{"outcome"}),
		stockEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stoq_stock_entries_total",
			Help: "Manual stock ledger rows by type.",
		}, []string{"type"}),
		loginsThrottled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stoq_auth_throttled_total",
			Help: "Auth attempts rejected by the attempt limiter.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.duration, m.salesCreated, m.saleRevenue, m.cashClosed, m.stockEntries, m.loginsThrottled,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

func (m *Metrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

func (m *Metrics) SaleCreated(paymentMethod string, total float64) {
	if m == nil {
		return
	}
	m.salesCreated.WithLabelValues(paymentMethod).Inc()
	m.saleRevenue.Add(total)
}

// CashSessionClosed counts a close as "balanced" or "difference".
func (m *Metrics) CashSessionClosed(balanced bool) {
	if m == nil {
		return
	}
	outcome := "difference"
	if balanced {
		outcome = "balanced"
	}
	m.cashClosed.WithLabelValues(outcome).Inc()
}

func (m *Metrics) StockEntry(entryType string) {
	if m == nil {
		return
	}
	m.stockEntries.WithLabelValues(entryType).Inc()
}

func (m *Metrics) AuthThrottled() {
	if m == nil {
		return
	}
	m.loginsThrottled.Inc()
}
