package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestCounter counts all HTTP requests with labels
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	// RequestDurationHistogram records request duration in seconds
	RequestDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)

	// InvoicesGenerated counts invoices created by the automatic billing sweep
	InvoicesGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "billing_invoices_generated_total",
			Help: "Total number of automatically generated invoices",
		},
	)

	// PaymentsProcessed counts payment dispatch outcomes by resulting status
	PaymentsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_payments_processed_total",
			Help: "Total number of processed payments by resulting status",
		},
		[]string{"status"},
	)

	// PaymentRetries counts re-dispatches of stale failed payments
	PaymentRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "billing_payment_retries_total",
			Help: "Total number of failed payment retry attempts",
		},
	)

	// SweepRuns counts executions of each periodic sweep
	SweepRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_sweep_runs_total",
			Help: "Total number of sweep executions by sweep name",
		},
		[]string{"sweep"},
	)

	// SweepItemFailures counts per-item failures isolated inside sweeps
	SweepItemFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_sweep_item_failures_total",
			Help: "Total number of per-item failures during sweeps",
		},
		[]string{"sweep"},
	)
)

// HTTPMetrics holds configuration and state for HTTP metrics collection
type HTTPMetrics struct {
	ServiceName string
	initialized bool
}

// NewHTTPMetrics creates a new HTTP metrics collector for a specific service
func NewHTTPMetrics(serviceName string) *HTTPMetrics {
	m := &HTTPMetrics{
		ServiceName: serviceName,
	}
	m.register()
	return m
}

// register registers the prometheus metrics if they haven't been registered already
func (m *HTTPMetrics) register() {
	if !m.initialized {
		prometheus.MustRegister(RequestCounter)
		prometheus.MustRegister(RequestDurationHistogram)
		prometheus.MustRegister(InvoicesGenerated)
		prometheus.MustRegister(PaymentsProcessed)
		prometheus.MustRegister(PaymentRetries)
		prometheus.MustRegister(SweepRuns)
		prometheus.MustRegister(SweepItemFailures)
		m.initialized = true
	}
}

// Middleware creates an Echo middleware function that records HTTP request metrics
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			// Record metrics after the request is processed
			status := c.Response().Status
			method := c.Request().Method
			path := c.Path()
			statusStr := strconv.Itoa(status)

			RequestCounter.WithLabelValues(m.ServiceName, method, path, statusStr).Inc()

			duration := time.Since(start).Seconds()
			RequestDurationHistogram.WithLabelValues(m.ServiceName, method, path, statusStr).Observe(duration)

			return err
		}
	}
}

// GetPrometheusHandler returns an HTTP handler for exposing Prometheus metrics
func GetPrometheusHandler() http.Handler {
	return promhttp.Handler()
}
