// Package metrics exposes Prometheus collectors for webhook processing,
// deduplication, signature verification, rule evaluation and Clockify API
// calls, plus the /metrics HTTP handler.
package metrics
