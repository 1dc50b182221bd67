// Package middleware provides the HTTP cross-cutting layers an addon server
// is wrapped in: request IDs, structured request logging, security headers,
// signature verification for webhook paths and per-client rate limiting.
package middleware
