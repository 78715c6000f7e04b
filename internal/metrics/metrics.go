package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"wallet-ledger/internal/wallet"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wallet_ledger"

// Metrics owns a private registry so tests can build independent instances.
// It implements wallet.Observer.
type Metrics struct {
	Registry *prometheus.Registry

	operations    *prometheus.CounterVec
	opDuration    *prometheus.HistogramVec
	retries       *prometheus.CounterVec
	cleared       prometheus.Counter
	feeFallbacks  *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	httpInFlight  prometheus.Gauge
	admissionDrop *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Ledger operations by outcome.",
		}, []string{"operation", "result"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operation_duration_seconds",
			Help:      "Duration of ledger units of work including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"operation"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "retries_total",
			Help:      "Units of work retried after a storage conflict.",
		}, []string{"operation"}),
		cleared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "cleared_transactions_total",
			Help:      "Pending credits settled into spendable balance.",
		}),
		feeFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fees",
			Name:      "fallbacks_total",
			Help:      "Fee lookups that used the configured default.",
		}, []string{"reason"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"method", "route"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		admissionDrop: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rejected_total",
			Help:      "Requests rejected before reaching a handler.",
		}, []string{"reason"}),
	}

	m.Registry.MustRegister(
		m.operations,
		m.opDuration,
		m.retries,
		m.cleared,
		m.feeFallbacks,
		m.httpRequests,
		m.httpDuration,
		m.httpInFlight,
		m.admissionDrop,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveOperation(op string, err error, elapsed time.Duration) {
	m.operations.WithLabelValues(op, resultLabel(err)).Inc()
	m.opDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveRetry(op string) {
	m.retries.WithLabelValues(op).Inc()
}

func (m *Metrics) ObserveCleared(n int) {
	if n > 0 {
		m.cleared.Add(float64(n))
	}
}

// FeeFallback matches fees.Resolver.OnFallback.
func (m *Metrics) FeeFallback(reason string) {
	m.feeFallbacks.WithLabelValues(reason).Inc()
}

// Rejected counts requests refused by admission control (rate_limit, in_flight).
func (m *Metrics) Rejected(reason string) {
	m.admissionDrop.WithLabelValues(reason).Inc()
}

// Middleware records request counts and latency by matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, wallet.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, wallet.ErrNotFound):
		return "not_found"
	case errors.Is(err, wallet.ErrInvalidAmount), errors.Is(err, wallet.ErrInvalidArgument), errors.Is(err, wallet.ErrInvalidTransition):
		return "rejected"
	case errors.Is(err, wallet.ErrEscrowConflict):
		return "conflict"
	default:
		return "error"
	}
}

var _ wallet.Observer = (*Metrics)(nil)
