package addon

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clockify/addon-sdk-go/pkg/manifest"
)

func newTestServer(t *testing.T, configure func(*Addon)) *Server {
	t.Helper()
	m := manifest.New("test-addon", "Test Addon").WithBaseURL("https://addon.example.com")
	a := New(m)
	a.RegisterEndpoint("/manifest.json", ManifestHandler(a))
	if configure != nil {
		configure(a)
	}
	return NewServer(a, ServerConfig{})
}

func doRequest(srv *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestManifestEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := doRequest(srv, http.MethodGet, "/manifest.json", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"key":"test-addon"`)
	assert.Contains(t, rec.Body.String(), `"baseUrl":"https://addon.example.com"`)
}

func TestManifestBaseURLOverride(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := doRequest(srv, http.MethodGet, "/manifest.json", "", map[string]string{
		"X-Forwarded-Proto": "https",
		"X-Forwarded-Host":  "tunnel.example.net",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"baseUrl":"https://tunnel.example.net"`)

	// The registered manifest must not be mutated by the override.
	again := doRequest(srv, http.MethodGet, "/manifest.json", "", nil)
	assert.Contains(t, again.Body.String(), `"baseUrl":"https://addon.example.com"`)
}

func TestWebhookDispatchByHeader(t *testing.T) {
	var gotEvent string
	srv := newTestServer(t, func(a *Addon) {
		a.RegisterWebhook("TIMER_STOPPED", func(req *Request) *Response {
			gotEvent = "TIMER_STOPPED"
			return OK("handled")
		})
	})

	rec := doRequest(srv, http.MethodPost, "/webhook", `{"workspaceId":"ws-1"}`, map[string]string{
		EventTypeHeader: "TIMER_STOPPED",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "handled", rec.Body.String())
	assert.Equal(t, "TIMER_STOPPED", gotEvent)
}

func TestWebhookDispatchByPayloadEvent(t *testing.T) {
	srv := newTestServer(t, func(a *Addon) {
		a.RegisterWebhook("NEW_TIME_ENTRY", func(req *Request) *Response {
			p, err := req.Payload()
			require.NoError(t, err)
			return OK(p.String("workspaceId"))
		})
	})

	rec := doRequest(srv, http.MethodPost, "/webhook", `{"event":"NEW_TIME_ENTRY","workspaceId":"ws-7"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ws-7", rec.Body.String())
}

func TestWebhookUnknownEventAcknowledged(t *testing.T) {
	srv := newTestServer(t, func(a *Addon) {
		a.RegisterWebhook("TIMER_STOPPED", func(req *Request) *Response { return OK("ok") })
	})

	rec := doRequest(srv, http.MethodPost, "/webhook", `{"event":"NEW_PROJECT"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code, "unknown events are acknowledged, not retried")
	assert.Contains(t, rec.Body.String(), "not handled")
}

func TestWebhookMissingEvent(t *testing.T) {
	srv := newTestServer(t, func(a *Addon) {
		a.RegisterWebhook("TIMER_STOPPED", func(req *Request) *Response { return OK("ok") })
	})

	rec := doRequest(srv, http.MethodPost, "/webhook", `{"workspaceId":"ws-1"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/webhook", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookInvalidJSON(t *testing.T) {
	srv := newTestServer(t, func(a *Addon) {
		a.RegisterWebhook("TIMER_STOPPED", func(req *Request) *Response { return OK("ok") })
	})

	rec := doRequest(srv, http.MethodPost, "/webhook", "{broken", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLifecycleDispatchByPath(t *testing.T) {
	var installed bool
	srv := newTestServer(t, func(a *Addon) {
		a.RegisterLifecycle(manifest.LifecycleInstalled, func(req *Request) *Response {
			installed = true
			return JSON(http.StatusOK, map[string]string{"status": "installed"})
		})
	})

	rec := doRequest(srv, http.MethodPost, "/lifecycle/installed", `{"workspaceId":"ws-1","authToken":"tok"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, installed)
}

func TestLifecycleDispatchByType(t *testing.T) {
	srv := newTestServer(t, func(a *Addon) {
		a.RegisterLifecycle(manifest.LifecycleDeleted, func(req *Request) *Response {
			return JSON(http.StatusOK, map[string]string{"status": "uninstalled"})
		})
	})

	rec := doRequest(srv, http.MethodPost, "/lifecycle", `{"type":"DELETED","workspaceId":"ws-1"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "uninstalled")
}

func TestLifecycleUnknownTypeAcknowledged(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := doRequest(srv, http.MethodPost, "/lifecycle", `{"lifecycle":"SETTINGS_UPDATED"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ignored")
}

func TestLifecycleRequiresBody(t *testing.T) {
	srv := newTestServer(t, func(a *Addon) {
		a.RegisterLifecycle(manifest.LifecycleInstalled, func(req *Request) *Response { return OK("ok") })
	})

	rec := doRequest(srv, http.MethodPost, "/lifecycle/installed", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownPath(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := doRequest(srv, http.MethodPost, "/nope", `{}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerPanicRecovered(t *testing.T) {
	srv := newTestServer(t, func(a *Addon) {
		a.RegisterEndpoint("/boom", func(req *Request) *Response {
			panic("kaboom")
		})
	})

	rec := doRequest(srv, http.MethodGet, "/boom", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestBodyTooLarge(t *testing.T) {
	m := manifest.New("test-addon", "Test Addon").WithBaseURL("https://addon.example.com")
	a := New(m)
	a.RegisterWebhook("TIMER_STOPPED", func(req *Request) *Response { return OK("ok") })
	srv := NewServer(a, ServerConfig{MaxBodyBytes: 16})

	rec := doRequest(srv, http.MethodPost, "/webhook", strings.Repeat("x", 64), nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRegisterWebhookAtMovesManifestEntry(t *testing.T) {
	m := manifest.New("test-addon", "Test Addon").WithBaseURL("https://addon.example.com")
	a := New(m)
	h := func(req *Request) *Response { return OK("ok") }

	a.RegisterWebhook("NEW_TAG", h)
	a.RegisterWebhookAt("NEW_TAG", "/hooks/tags", h)

	require.Len(t, m.Webhooks, 1)
	assert.Equal(t, "/hooks/tags", m.Webhooks[0].Path)

	// Old path no longer routes the event.
	srv := NewServer(a, ServerConfig{})
	rec := doRequest(srv, http.MethodPost, "/webhook", `{"event":"NEW_TAG"}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/hooks/tags", `{"event":"NEW_TAG"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestManifestSnapshotIsolatedFromRegistry(t *testing.T) {
	m := manifest.New("test-addon", "Test Addon").WithBaseURL("https://addon.example.com")
	a := New(m)

	snap := a.ManifestSnapshot()
	snap.BaseURL = "https://mutated.example.com"
	snap.Webhooks = append(snap.Webhooks, manifest.WebhookEndpoint{Event: "X", Path: "/x"})

	assert.Equal(t, "https://addon.example.com", a.Manifest().BaseURL)
	assert.Empty(t, a.Manifest().Webhooks)
}

func TestManifestServingDuringWebhookRegistration(t *testing.T) {
	srv := newTestServer(t, nil)

	// runtime registration (rules naming new events) must not race the
	// manifest marshal; run both sides under the race detector
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			srv.addon.RegisterWebhook(fmt.Sprintf("EVENT_%d", i), func(*Request) *Response {
				return OK("ok")
			})
		}
	}()
	for i := 0; i < 50; i++ {
		rec := doRequest(srv, http.MethodGet, "/manifest.json", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	<-done

	snap := srv.addon.ManifestSnapshot()
	assert.Len(t, snap.Webhooks, 50)
}

func TestRegisterPrefix(t *testing.T) {
	srv := newTestServer(t, func(a *Addon) {
		a.RegisterPrefix("/api/rules", func(req *Request) *Response {
			return OK(req.HTTP.URL.Path)
		})
		a.RegisterEndpoint("/api/rules/special", func(req *Request) *Response {
			return OK("exact")
		})
	})

	rec := doRequest(srv, http.MethodGet, "/api/rules/abc-123", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/api/rules/abc-123", rec.Body.String())

	rec = doRequest(srv, http.MethodGet, "/api/rules/special", "", nil)
	assert.Equal(t, "exact", rec.Body.String(), "exact endpoint wins over prefix")

	rec = doRequest(srv, http.MethodGet, "/api/other", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSanitizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "/"},
		{"/", "/"},
		{"webhook", "/webhook"},
		{"//webhook//", "/webhook"},
		{"/a/../b", "/a/b"},
		{"/a/./b", "/a/b"},
		{`\etc\passwd`, "/etc/passwd"},
		{"/lifecycle/installed", "/lifecycle/installed"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizePath(tt.in), "input %q", tt.in)
	}
}

func TestDetectBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		host    string
		want    string
	}{
		{
			name:    "no forwarding",
			host:    "localhost:8080",
			want:    "http://localhost:8080",
			headers: nil,
		},
		{
			name: "x-forwarded pair",
			host: "localhost:8080",
			headers: map[string]string{
				"X-Forwarded-Proto": "https",
				"X-Forwarded-Host":  "addon.example.com",
			},
			want: "https://addon.example.com",
		},
		{
			name: "forwarded header wins",
			host: "localhost:8080",
			headers: map[string]string{
				"Forwarded":         `proto=https;host="edge.example.com"`,
				"X-Forwarded-Proto": "http",
			},
			want: "https://edge.example.com",
		},
		{
			name: "first of comma separated list",
			host: "localhost:8080",
			headers: map[string]string{
				"X-Forwarded-Proto": "https, http",
				"X-Forwarded-Host":  "a.example.com, b.internal",
			},
			want: "https://a.example.com",
		},
		{
			name: "explicit forwarded port",
			host: "localhost:8080",
			headers: map[string]string{
				"X-Forwarded-Proto": "https",
				"X-Forwarded-Host":  "addon.example.com",
				"X-Forwarded-Port":  "8443",
			},
			want: "https://addon.example.com:8443",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Host = tt.host
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, DetectBaseURL(req))
		})
	}
}
