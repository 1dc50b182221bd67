package addon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/clockify/addon-sdk-go/pkg/log"
)

// Header carrying the webhook event type. Falls back to the payload "event"
// field when absent.
const EventTypeHeader = "clockify-webhook-event-type"

// ServerConfig tunes the embedded HTTP server.
type ServerConfig struct {
	Addr            string
	MaxBodyBytes    int64
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

func (c *ServerConfig) defaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Middleware wraps the server's root handler.
type Middleware func(http.Handler) http.Handler

// Server routes marketplace traffic to the handlers registered on an Addon.
type Server struct {
	addon *Addon
	cfg   ServerConfig
	httpd *http.Server
}

// NewServer builds a server around an addon, applying middleware outermost
// first.
func NewServer(a *Addon, cfg ServerConfig, mw ...Middleware) *Server {
	cfg.defaults()
	s := &Server{addon: a, cfg: cfg}

	var root http.Handler = http.HandlerFunc(s.route)
	for i := len(mw) - 1; i >= 0; i-- {
		root = mw[i](root)
	}
	s.httpd = &http.Server{
		Addr:         cfg.Addr,
		Handler:      root,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler exposes the configured root handler, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.httpd.Handler
}

// Start serves until the context is cancelled, then drains connections within
// the shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	logger := log.WithComponent("server")
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", s.cfg.Addr).Msg("addon server listening")
		if err := s.httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("addon server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	logger.Info().Msg("addon server shutting down")
	return s.httpd.Shutdown(shutdownCtx)
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	path := SanitizePath(r.URL.Path)
	logger := log.WithComponent("router")

	req, err := NewRequest(r, s.cfg.MaxBodyBytes)
	if err != nil {
		if errors.Is(err, ErrBodyTooLarge) {
			Errorf(http.StatusRequestEntityTooLarge, "request body exceeds %d bytes", s.cfg.MaxBodyBytes).write(w)
			return
		}
		Errorf(http.StatusBadRequest, "unreadable request body").write(w)
		return
	}

	resp := s.dispatch(req, path)
	if resp == nil {
		logger.Error().Str("path", path).Msg("handler returned nil response")
		resp = Errorf(http.StatusInternalServerError, "internal server error")
	}
	resp.write(w)
}

func (s *Server) dispatch(req *Request, path string) *Response {
	// Custom endpoints win regardless of method; handlers enforce their own.
	if h, ok := s.addon.endpoint(path); ok {
		return s.invoke(h, req, path)
	}

	if req.HTTP.Method == http.MethodPost {
		if handlers, ok := s.addon.webhookHandlers(path); ok {
			return s.dispatchWebhook(req, path, handlers)
		}
		if h, ok := s.addon.lifecycleHandlerByPath(path); ok {
			if resp := requireJSONBody(req); resp != nil {
				return resp
			}
			return s.invoke(h, req, path)
		}
		if path == "/lifecycle" {
			return s.dispatchLifecycle(req)
		}
	}

	return Errorf(http.StatusNotFound, "endpoint not found: %s", path)
}

func (s *Server) dispatchWebhook(req *Request, path string, handlers map[string]Handler) *Response {
	event := strings.TrimSpace(req.Header(EventTypeHeader))
	if event == "" {
		p, err := req.Payload()
		if err != nil {
			return Errorf(http.StatusBadRequest, "invalid JSON payload: %v", err)
		}
		if p == nil {
			return Errorf(http.StatusBadRequest, "missing request body")
		}
		event = strings.TrimSpace(p.String("event"))
	}
	if event == "" {
		return Errorf(http.StatusBadRequest, "missing webhook event type")
	}

	h, ok := handlers[event]
	if !ok {
		logger := log.WithComponent("router")
		logger.Warn().
			Str("event", event).
			Str("path", path).
			Msg("no handler registered for webhook event")
		return OK("Webhook event received but not handled: " + event)
	}
	return s.invoke(h, req, path)
}

func (s *Server) dispatchLifecycle(req *Request) *Response {
	if resp := requireJSONBody(req); resp != nil {
		return resp
	}
	p, _ := req.Payload()

	lifecycleType := strings.TrimSpace(p.String("lifecycle"))
	if lifecycleType == "" {
		lifecycleType = strings.TrimSpace(p.String("type"))
	}
	if lifecycleType == "" {
		return Errorf(http.StatusBadRequest, "missing lifecycle identifier in request")
	}

	h, ok := s.addon.lifecycleHandler(lifecycleType)
	if !ok {
		logger := log.WithComponent("router")
		logger.Warn().
			Str("lifecycle", lifecycleType).
			Msg("no handler registered for lifecycle")
		return JSON(http.StatusOK, map[string]string{
			"status":  "ignored",
			"message": "Lifecycle event received but not handled: " + lifecycleType,
		})
	}
	return s.invoke(h, req, "/lifecycle")
}

func requireJSONBody(req *Request) *Response {
	p, err := req.Payload()
	if err != nil {
		return Errorf(http.StatusBadRequest, "invalid JSON payload: %v", err)
	}
	if p == nil {
		return Errorf(http.StatusBadRequest, "lifecycle payload is required")
	}
	return nil
}

func (s *Server) invoke(h Handler, req *Request, path string) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			logger := log.WithComponent("router")
			logger.Error().
				Str("path", path).
				Any("panic", r).
				Msg("handler panicked")
			resp = Errorf(http.StatusInternalServerError, "internal server error")
		}
	}()
	return h(req)
}

// ManifestHandler serves the addon manifest, overriding baseUrl per request
// when forwarded headers reveal a different public origin. Each request
// serializes a snapshot taken under the registry lock, so runtime webhook
// registration never races the marshal and the shared manifest is never
// mutated.
func ManifestHandler(a *Addon) Handler {
	return func(req *Request) *Response {
		m := a.ManifestSnapshot()
		if detected := DetectBaseURL(req.HTTP); detected != "" && detected != m.BaseURL {
			m.BaseURL = detected
		}
		return JSON(http.StatusOK, m)
	}
}
