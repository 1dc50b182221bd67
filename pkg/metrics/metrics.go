package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Webhook metrics
	WebhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "addon_webhook_events_total",
			Help: "Total number of webhook events by event type and outcome",
		},
		[]string{"event", "outcome"},
	)

	WebhookDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "addon_webhook_duration_seconds",
			Help:    "Webhook handler duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event"},
	)

	// Dedup metrics
	DedupHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "addon_dedup_hits_total",
			Help: "Total number of duplicate webhook deliveries suppressed",
		},
	)

	DedupMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "addon_dedup_misses_total",
			Help: "Total number of first-seen webhook deliveries",
		},
	)

	DedupErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "addon_dedup_errors_total",
			Help: "Total number of dedup store failures (processing continued)",
		},
	)

	DedupBackend = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "addon_dedup_backend",
			Help: "Active dedup backend (1 for the selected backend)",
		},
		[]string{"backend"},
	)

	// Signature metrics
	SignatureVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "addon_signature_verifications_total",
			Help: "Total number of signature verifications by scheme and outcome",
		},
		[]string{"scheme", "outcome"},
	)

	NonCanonicalSignatureHeaders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "addon_signature_noncanonical_headers_total",
			Help: "Total number of deliveries signed via a legacy header spelling",
		},
		[]string{"header"},
	)

	// Rules metrics
	RuleEvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "addon_rule_evaluations_total",
			Help: "Total number of rule evaluations by outcome (matched, skipped, error)",
		},
		[]string{"outcome"},
	)

	ActionExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "addon_action_executions_total",
			Help: "Total number of rule action executions by action type and outcome",
		},
		[]string{"action", "outcome"},
	)

	// Clockify API client metrics
	APICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "addon_clockify_api_calls_total",
			Help: "Total number of Clockify API calls by method and status",
		},
		[]string{"method", "status"},
	)

	APICallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "addon_clockify_api_call_duration_seconds",
			Help:    "Clockify API call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	APIRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "addon_clockify_api_retries_total",
			Help: "Total number of retried Clockify API calls",
		},
	)

	// HTTP server metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "addon_http_requests_total",
			Help: "Total number of HTTP requests by method and status",
		},
		[]string{"method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "addon_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(WebhookEventsTotal)
	prometheus.MustRegister(WebhookDuration)
	prometheus.MustRegister(DedupHitsTotal)
	prometheus.MustRegister(DedupMissesTotal)
	prometheus.MustRegister(DedupErrorsTotal)
	prometheus.MustRegister(DedupBackend)
	prometheus.MustRegister(SignatureVerificationsTotal)
	prometheus.MustRegister(NonCanonicalSignatureHeaders)
	prometheus.MustRegister(RuleEvaluationsTotal)
	prometheus.MustRegister(ActionExecutionsTotal)
	prometheus.MustRegister(APICallsTotal)
	prometheus.MustRegister(APICallDuration)
	prometheus.MustRegister(APIRetriesTotal)
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
