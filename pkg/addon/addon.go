package addon

import (
	"strings"
	"sync"

	"github.com/clockify/addon-sdk-go/pkg/manifest"
)

// DefaultWebhookPath receives webhook events that are registered without an
// explicit path.
const DefaultWebhookPath = "/webhook"

// Addon keeps track of all handlers and manifest metadata for one Clockify
// add-on. Registering a lifecycle or webhook handler also registers the
// corresponding endpoint in the manifest, so the served manifest always
// reflects what the addon can actually handle.
//
// Registration normally happens once at startup, but the rules addon
// registers webhook handlers at runtime when a rule names a new trigger
// event, so the registry is guarded by a lock.
type Addon struct {
	mu sync.RWMutex

	manifest *manifest.Manifest

	endpoints           map[string]Handler            // custom endpoints by path
	prefixes            map[string]Handler            // custom endpoints by path prefix
	lifecycleByType     map[string]Handler            // lifecycle handlers by event type
	lifecycleByPath     map[string]Handler            // lifecycle handlers by registered path
	lifecyclePathByType map[string]string             // reverse index for re-registration
	webhooksByPath      map[string]map[string]Handler // path -> event -> handler
	webhookPathByEvent  map[string]string             // reverse index for re-registration
}

// New creates an addon around a manifest.
func New(m *manifest.Manifest) *Addon {
	return &Addon{
		manifest:            m,
		endpoints:           make(map[string]Handler),
		prefixes:            make(map[string]Handler),
		lifecycleByType:     make(map[string]Handler),
		lifecycleByPath:     make(map[string]Handler),
		lifecyclePathByType: make(map[string]string),
		webhooksByPath:      make(map[string]map[string]Handler),
		webhookPathByEvent:  make(map[string]string),
	}
}

// Manifest returns the registered manifest. Callers must not mutate it per
// request; use ManifestSnapshot for request-scoped reads and overrides.
func (a *Addon) Manifest() *manifest.Manifest {
	return a.manifest
}

// ManifestSnapshot returns a copy of the manifest taken under the registry
// lock. Webhook registration mutates the manifest's endpoint slices at
// runtime, so serving code must read through a snapshot.
func (a *Addon) ManifestSnapshot() *manifest.Manifest {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.manifest.Clone()
}

// RegisterEndpoint registers a custom endpoint such as /manifest.json,
// /settings, or /health.
func (a *Addon) RegisterEndpoint(path string, h Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.endpoints[SanitizePath(path)] = h
}

// RegisterPrefix registers a handler serving every path under the given
// prefix, for small APIs like rule CRUD where the resource ID is a path
// segment. Exact endpoint matches win over prefixes.
func (a *Addon) RegisterPrefix(prefix string, h Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.prefixes[SanitizePath(prefix)] = h
}

// RegisterLifecycle registers a handler for a lifecycle type at the default
// path /lifecycle/<type>.
func (a *Addon) RegisterLifecycle(lifecycleType string, h Handler) {
	a.RegisterLifecycleAt(lifecycleType, "", h)
}

// RegisterLifecycleAt registers a lifecycle handler at an explicit path and
// updates the manifest endpoint for the type.
func (a *Addon) RegisterLifecycleAt(lifecycleType, path string, h Handler) {
	normalized := lifecyclePath(lifecycleType, path)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.lifecycleByType[lifecycleType] = h
	if prev, ok := a.lifecyclePathByType[lifecycleType]; ok && prev != normalized {
		delete(a.lifecycleByPath, prev)
	}
	a.lifecyclePathByType[lifecycleType] = normalized
	a.lifecycleByPath[normalized] = h

	a.manifest.SetLifecyclePath(lifecycleType, normalized)
}

// RegisterWebhook registers a webhook handler for an event at the default
// webhook path.
func (a *Addon) RegisterWebhook(event string, h Handler) {
	a.RegisterWebhookAt(event, DefaultWebhookPath, h)
}

// RegisterWebhookAt registers a webhook handler at an explicit path and
// updates the manifest endpoint for the event. Re-registering an event moves
// it to the new path.
func (a *Addon) RegisterWebhookAt(event, path string, h Handler) {
	normalized := webhookPath(path)

	a.mu.Lock()
	defer a.mu.Unlock()

	handlers, ok := a.webhooksByPath[normalized]
	if !ok {
		handlers = make(map[string]Handler)
		a.webhooksByPath[normalized] = handlers
	}
	handlers[event] = h

	if prev, ok := a.webhookPathByEvent[event]; ok && prev != normalized {
		if prevHandlers, ok := a.webhooksByPath[prev]; ok {
			delete(prevHandlers, event)
			if len(prevHandlers) == 0 {
				delete(a.webhooksByPath, prev)
			}
		}
	}
	a.webhookPathByEvent[event] = normalized

	a.manifest.SetWebhookPath(event, normalized)
}

// HasWebhook reports whether a handler is registered for the event.
func (a *Addon) HasWebhook(event string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.webhookPathByEvent[event]
	return ok
}

func (a *Addon) endpoint(path string) (Handler, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if h, ok := a.endpoints[path]; ok {
		return h, true
	}
	var best string
	var bestHandler Handler
	for prefix, h := range a.prefixes {
		if strings.HasPrefix(path, prefix) && len(prefix) > len(best) {
			best = prefix
			bestHandler = h
		}
	}
	if bestHandler != nil {
		return bestHandler, true
	}
	return nil, false
}

func (a *Addon) lifecycleHandlerByPath(path string) (Handler, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	h, ok := a.lifecycleByPath[path]
	return h, ok
}

func (a *Addon) lifecycleHandler(lifecycleType string) (Handler, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	h, ok := a.lifecycleByType[lifecycleType]
	return h, ok
}

func (a *Addon) webhookHandlers(path string) (map[string]Handler, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	handlers, ok := a.webhooksByPath[path]
	if !ok {
		return nil, false
	}
	// copy: callers iterate outside the lock
	out := make(map[string]Handler, len(handlers))
	for k, v := range handlers {
		out[k] = v
	}
	return out, true
}
