package addon

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/clockify/addon-sdk-go/pkg/payload"
)

// Request wraps the inbound HTTP request with a cached body. Signature
// verification, dedup, and handlers all need the body; it is read once and
// the JSON form parsed lazily.
type Request struct {
	HTTP *http.Request

	rawBody   []byte
	parsed    bool
	body      payload.Payload
	parseErr  error
	workspace string
	requestID string
}

// NewRequest reads and caches the request body. maxBytes bounds the read to
// protect against oversized payloads; pass 0 for the default of 1 MiB.
func NewRequest(r *http.Request, maxBytes int64) (*Request, error) {
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	var raw []byte
	if r.Body != nil {
		limited := io.LimitReader(r.Body, maxBytes+1)
		b, err := io.ReadAll(limited)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		if int64(len(b)) > maxBytes {
			return nil, ErrBodyTooLarge
		}
		raw = b
	}
	return &Request{HTTP: r, rawBody: raw}, nil
}

// ErrBodyTooLarge is returned by NewRequest when the body exceeds the limit.
var ErrBodyTooLarge = fmt.Errorf("request body exceeds limit")

// RawBody returns the cached request body.
func (r *Request) RawBody() []byte {
	return r.rawBody
}

// Payload parses the body as JSON once and caches the result. A blank body
// yields a nil payload without error.
func (r *Request) Payload() (payload.Payload, error) {
	if !r.parsed {
		r.body, r.parseErr = payload.Parse(r.rawBody)
		r.parsed = true
	}
	return r.body, r.parseErr
}

// Header returns the first value for the named header.
func (r *Request) Header(name string) string {
	return r.HTTP.Header.Get(name)
}

// WorkspaceID returns the workspace attached by earlier processing, if any.
func (r *Request) WorkspaceID() string { return r.workspace }

// SetWorkspaceID attaches the workspace for downstream logging.
func (r *Request) SetWorkspaceID(id string) { r.workspace = id }

// RequestID returns the propagated request ID.
func (r *Request) RequestID() string { return r.requestID }

// SetRequestID attaches the request ID.
func (r *Request) SetRequestID(id string) { r.requestID = id }

// Handler processes a routed request and produces a response. Returning nil
// is treated as an internal error.
type Handler func(*Request) *Response

// Response is the immutable result of a handler.
type Response struct {
	Status      int
	Body        []byte
	ContentType string
}

// OK builds a 200 plain-text response.
func OK(body string) *Response {
	return &Response{Status: http.StatusOK, Body: []byte(body), ContentType: "text/plain"}
}

// JSON builds a response by encoding v. Encoding failures degrade to a 500.
func JSON(status int, v any) *Response {
	raw, err := json.Marshal(v)
	if err != nil {
		return &Response{
			Status:      http.StatusInternalServerError,
			Body:        []byte(`{"error":"response encoding failed"}`),
			ContentType: "application/json",
		}
	}
	return &Response{Status: status, Body: raw, ContentType: "application/json"}
}

// Errorf builds a JSON error response with a formatted message.
func Errorf(status int, format string, args ...any) *Response {
	return JSON(status, map[string]string{"error": fmt.Sprintf(format, args...)})
}

func (r *Response) write(w http.ResponseWriter) {
	ct := r.ContentType
	if ct == "" {
		ct = "text/plain"
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(r.Status)
	_, _ = w.Write(r.Body)
}
