package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "eras_review",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eras_review",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "eras_review",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	webhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eras_review",
			Subsystem: "payments",
			Name:      "webhook_events_total",
			Help:      "Payment webhook events by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	blogGenerations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eras_review",
			Subsystem: "blog",
			Name:      "generations_total",
			Help:      "AI blog generation attempts by outcome.",
		},
		[]string{"outcome"},
	)

	seoPings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eras_review",
			Subsystem: "seo",
			Name:      "pings_total",
			Help:      "Search engine pings by engine and outcome.",
		},
		[]string{"engine", "outcome"},
	)

	emailSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eras_review",
			Subsystem: "email",
			Name:      "sends_total",
			Help:      "Transactional emails by template and outcome.",
		},
		[]string{"template", "outcome"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		webhookEvents,
		blogGenerations,
		seoPings,
		emailSends,
	)
}

// Handler exposes the registry for scraping.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func IncInFlight() { httpInFlight.Inc() }
func DecInFlight() { httpInFlight.Dec() }

// RecordHTTPRequest records one finished request. path should be the route
// template, not the raw URL, to keep label cardinality bounded.
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequests.WithLabelValues(method, path, status).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func RecordWebhookEvent(eventType, outcome string) {
	webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func RecordBlogGeneration(outcome string) {
	blogGenerations.WithLabelValues(outcome).Inc()
}

func RecordSEOPing(engine, outcome string) {
	seoPings.WithLabelValues(engine, outcome).Inc()
}

func RecordEmail(template, outcome string) {
	emailSends.WithLabelValues(template, outcome).Inc()
}
