package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clockify/addon-sdk-go/pkg/log"
	"github.com/clockify/addon-sdk-go/pkg/metrics"
	"github.com/clockify/addon-sdk-go/pkg/security"
)

// RequestIDHeader carries the correlation ID; an inbound value is kept,
// otherwise one is generated.
const RequestIDHeader = "X-Request-Id"

// RequestID tags every request and response with a correlation ID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Logging emits one structured line per request and feeds the HTTP server
// metrics. Header values are never logged; signatures and tokens travel in
// headers.
func Logging(next http.Handler) http.Handler {
	logger := log.WithComponent("http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method).Observe(elapsed.Seconds())

		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", elapsed).
			Str("request_id", r.Header.Get(RequestIDHeader)).
			Msg("request")
	})
}

// SecurityHeaders sets conservative response headers. The addon serves a
// settings iframe, so framing is limited to the Clockify origin.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "frame-ancestors https://app.clockify.me")
		next.ServeHTTP(w, r)
	})
}

// Signature verifies webhook delivery signatures for requests whose path
// starts with one of the given prefixes. Other paths (manifest, settings,
// health) pass through. The body is re-buffered so downstream handlers can
// read it again.
func Signature(validator *security.Validator, pathPrefixes ...string) func(http.Handler) http.Handler {
	logger := log.WithComponent("security")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !protectedPath(r.URL.Path, pathPrefixes) {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, "failed to read request body", http.StatusBadRequest)
				return
			}
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			outcome, err := validator.Verify(r.Context(), r, body)
			scheme := "unknown"
			if outcome != nil {
				if outcome.Scheme != "" {
					scheme = outcome.Scheme
				}
				if !outcome.Resolution.Canonical && outcome.Resolution.Header != "" {
					metrics.NonCanonicalSignatureHeaders.WithLabelValues(outcome.Resolution.Header).Inc()
				}
			}
			if err != nil {
				metrics.SignatureVerificationsTotal.WithLabelValues(scheme, "rejected").Inc()
				logger.Warn().
					Err(err).
					Str("path", r.URL.Path).
					Msg("rejected delivery")
				if errors.Is(err, security.ErrNoSignature) {
					http.Error(w, "missing signature", http.StatusUnauthorized)
				} else {
					http.Error(w, "invalid signature", http.StatusUnauthorized)
				}
				return
			}
			metrics.SignatureVerificationsTotal.WithLabelValues(scheme, "accepted").Inc()
			next.ServeHTTP(w, r)
		})
	}
}

// Mount serves h for one exact path ahead of the wrapped handler, so plain
// http.Handlers (Prometheus, health probes) can sit in front of an addon
// server.
func Mount(path string, h http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == path {
				h.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func protectedPath(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
