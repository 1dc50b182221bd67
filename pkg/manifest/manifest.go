package manifest

import (
	"fmt"
	"strings"
)

// SchemaVersion is the marketplace manifest revision this SDK targets.
const SchemaVersion = "1.3"

// Lifecycle event types reported by the marketplace.
const (
	LifecycleInstalled = "INSTALLED"
	LifecycleDeleted   = "DELETED"
)

// LifecycleEndpoint binds a lifecycle event type to the addon path that
// receives it.
type LifecycleEndpoint struct {
	Type string `json:"type" yaml:"type"`
	Path string `json:"path" yaml:"path"`
}

// WebhookEndpoint binds a webhook event to the addon path that receives it.
type WebhookEndpoint struct {
	Event string `json:"event" yaml:"event"`
	Path  string `json:"path" yaml:"path"`
}

// Component describes a UI component embedded into the Clockify web app,
// for example a settings page served by the addon.
type Component struct {
	Type           string `json:"type" yaml:"type"`
	Label          string `json:"label,omitempty" yaml:"label,omitempty"`
	Path           string `json:"path" yaml:"path"`
	AccessLevel    string `json:"accessLevel,omitempty" yaml:"accessLevel,omitempty"`
	IframeHeightPx int    `json:"height,omitempty" yaml:"height,omitempty"`
}

// Manifest is the JSON document served to the Clockify marketplace. Field
// names follow the published manifest schema.
type Manifest struct {
	SchemaVersion           string              `json:"schemaVersion"`
	Key                     string              `json:"key"`
	Name                    string              `json:"name"`
	Description             string              `json:"description,omitempty"`
	BaseURL                 string              `json:"baseUrl"`
	MinimalSubscriptionPlan string              `json:"minimalSubscriptionPlan,omitempty"`
	Scopes                  []string            `json:"scopes,omitempty"`
	Lifecycle               []LifecycleEndpoint `json:"lifecycle"`
	Webhooks                []WebhookEndpoint   `json:"webhooks"`
	Components              []Component         `json:"components,omitempty"`
	Settings                any                 `json:"settings,omitempty"`
}

// New returns a manifest with default lifecycle endpoints registered under
// /lifecycle/<type>, matching what the marketplace expects out of the box.
func New(key, name string) *Manifest {
	return &Manifest{
		SchemaVersion: SchemaVersion,
		Key:           key,
		Name:          name,
		Lifecycle: []LifecycleEndpoint{
			{Type: LifecycleInstalled, Path: "/lifecycle/installed"},
			{Type: LifecycleDeleted, Path: "/lifecycle/deleted"},
		},
		Webhooks: []WebhookEndpoint{},
	}
}

// WithDescription sets the marketplace description.
func (m *Manifest) WithDescription(description string) *Manifest {
	m.Description = description
	return m
}

// WithBaseURL sets the public base URL the marketplace calls back on.
func (m *Manifest) WithBaseURL(baseURL string) *Manifest {
	m.BaseURL = strings.TrimRight(baseURL, "/")
	return m
}

// WithScopes sets the API scopes the addon requests at install time.
func (m *Manifest) WithScopes(scopes ...string) *Manifest {
	m.Scopes = scopes
	return m
}

// WithMinimalPlan restricts installation to the named subscription plan or above.
func (m *Manifest) WithMinimalPlan(plan string) *Manifest {
	m.MinimalSubscriptionPlan = plan
	return m
}

// WithComponent appends a UI component entry.
func (m *Manifest) WithComponent(c Component) *Manifest {
	m.Components = append(m.Components, c)
	return m
}

// SetLifecyclePath registers or updates the path for a lifecycle event type.
func (m *Manifest) SetLifecyclePath(lifecycleType, path string) {
	for i := range m.Lifecycle {
		if m.Lifecycle[i].Type == lifecycleType {
			m.Lifecycle[i].Path = path
			return
		}
	}
	m.Lifecycle = append(m.Lifecycle, LifecycleEndpoint{Type: lifecycleType, Path: path})
}

// SetWebhookPath registers or updates the path for a webhook event.
func (m *Manifest) SetWebhookPath(event, path string) {
	for i := range m.Webhooks {
		if m.Webhooks[i].Event == event {
			m.Webhooks[i].Path = path
			return
		}
	}
	m.Webhooks = append(m.Webhooks, WebhookEndpoint{Event: event, Path: path})
}

// Clone returns a deep copy. Handlers mutate per-request copies (for example
// to override baseUrl behind a proxy) while the registered manifest stays
// untouched.
func (m *Manifest) Clone() *Manifest {
	out := *m
	out.Scopes = append([]string(nil), m.Scopes...)
	out.Lifecycle = append([]LifecycleEndpoint(nil), m.Lifecycle...)
	out.Webhooks = append([]WebhookEndpoint(nil), m.Webhooks...)
	out.Components = append([]Component(nil), m.Components...)
	return &out
}

// Validate checks the structural requirements the marketplace enforces before
// accepting a manifest.
func (m *Manifest) Validate() error {
	if m.Key == "" {
		return fmt.Errorf("manifest key is required")
	}
	if strings.ContainsAny(m.Key, " /\\") {
		return fmt.Errorf("manifest key %q must not contain spaces or path separators", m.Key)
	}
	if m.Name == "" {
		return fmt.Errorf("manifest name is required")
	}
	if m.BaseURL == "" {
		return fmt.Errorf("manifest baseUrl is required")
	}
	if !strings.HasPrefix(m.BaseURL, "http://") && !strings.HasPrefix(m.BaseURL, "https://") {
		return fmt.Errorf("manifest baseUrl %q must be an absolute http(s) URL", m.BaseURL)
	}
	for _, l := range m.Lifecycle {
		if l.Type == "" || !strings.HasPrefix(l.Path, "/") {
			return fmt.Errorf("lifecycle endpoint %q needs a type and an absolute path", l.Type)
		}
	}
	for _, w := range m.Webhooks {
		if w.Event == "" || !strings.HasPrefix(w.Path, "/") {
			return fmt.Errorf("webhook endpoint %q needs an event and an absolute path", w.Event)
		}
	}
	return nil
}
