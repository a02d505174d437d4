package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Total HTTP requests partitioned by method, route, and status code
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wablast_http_requests_total",
			Help: "Total number of HTTP requests processed by the dispatch API",
		},
		[]string{"method", "route", "status"},
	)

	// Request duration in seconds partitioned by method, route, and status code
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wablast_http_request_duration_seconds",
			Help:    "Dispatch API request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// In-flight HTTP requests
	httpInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wablast_http_inflight_requests",
			Help: "Number of HTTP requests currently being served",
		},
	)

	// Outcome of individual message sends, partitioned by result (sent, failed, denied)
	messagesDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wablast_messages_dispatched_total",
			Help: "Total number of messages processed by the dispatch loop",
		},
		[]string{"result"},
	)

	// Webhook delivery attempts, partitioned by outcome
	webhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wablast_webhook_deliveries_total",
			Help: "Total number of webhook delivery attempts",
		},
		[]string{"outcome"},
	)
)

// RecordMessageDispatched increments the per-result send counter.
// Result is one of "sent", "failed", or "denied".
func RecordMessageDispatched(result string) {
	messagesDispatched.WithLabelValues(result).Inc()
}

// RecordWebhookDelivery increments the webhook delivery counter.
func RecordWebhookDelivery(success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	webhookDeliveries.WithLabelValues(outcome).Inc()
}

// Metrics returns a Fiber v3 middleware that records Prometheus metrics for
// every request. Labels use the matched route template when available to keep
// cardinality low.
func Metrics() fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		err := c.Next()

		status := c.Response().StatusCode()
		route := c.Path()
		if r := c.Route(); r != nil && r.Path != "" {
			route = r.Path
		}

		labels := prometheus.Labels{
			"method": c.Method(),
			"route":  route,
			"status": strconv.Itoa(status),
		}
		httpRequestsTotal.With(labels).Inc()
		httpRequestDuration.With(labels).Observe(time.Since(start).Seconds())

		return err
	}
}
