package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Verdict outcome labels recorded on classification metrics.
const (
	OutcomeAllowed      = "allowed"
	OutcomeBlocked      = "blocked"
	OutcomeBypassed     = "bypassed"
	OutcomeFailOpen     = "failopen"
	OutcomeUnregistered = "unregistered"
)

// Metrics holds all Prometheus metrics for the agent.
type Metrics struct {
	// HTTP surface metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Page pipeline metrics
	PagesProcessed *prometheus.CounterVec
	PagesBypassed  prometheus.Counter

	// Classification metrics
	ClassificationRequests prometheus.Counter
	ClassificationOutcomes *prometheus.CounterVec
	ClassificationDuration prometheus.Histogram

	// Registration metrics
	RegistrationAttempts *prometheus.CounterVec

	// Fingerprint metrics
	FingerprintsGenerated prometheus.Counter
	FingerprintFallbacks  prometheus.Counter
}

// New creates a metrics collector registered against the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webclass_http_requests_total",
				Help: "HTTP requests served by the agent surface",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webclass_http_request_duration_seconds",
				Help:    "HTTP request latency on the agent surface",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		PagesProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webclass_pages_processed_total",
				Help: "Total number of page loads processed by the collector",
			},
			[]string{"disposition"},
		),
		PagesBypassed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "webclass_pages_bypassed_total",
				Help: "Page loads skipped by the search-engine bypass rule",
			},
		),
		ClassificationRequests: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "webclass_classification_requests_total",
				Help: "Classification requests issued to the remote service",
			},
		),
		ClassificationOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webclass_classification_outcomes_total",
				Help: "Classification verdict outcomes by disposition",
			},
			[]string{"outcome"},
		),
		ClassificationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "webclass_classification_duration_seconds",
				Help:    "Remote classification round-trip duration",
				Buckets: prometheus.DefBuckets,
			},
		),
		RegistrationAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webclass_registration_attempts_total",
				Help: "Registration and login attempts by variant and result",
			},
			[]string{"variant", "result"},
		),
		FingerprintsGenerated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "webclass_fingerprints_generated_total",
				Help: "Device fingerprints generated",
			},
		),
		FingerprintFallbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "webclass_fingerprint_fallbacks_total",
				Help: "Fingerprint generations that fell back to a random token",
			},
		),
	}
}

// NewDefault creates a metrics collector on the default registry.
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}
