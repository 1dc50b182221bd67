package clockify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/clockify/addon-sdk-go/pkg/log"
	"github.com/clockify/addon-sdk-go/pkg/metrics"
)

// AddonTokenHeader carries the workspace auth token on every API call.
const AddonTokenHeader = "X-Addon-Token"

const (
	defaultBaseURL = "https://api.clockify.me/api/v1"
	defaultTimeout = 30 * time.Second

	maxRetries     = 3
	initialBackoff = 500 * time.Millisecond
	maxRetryAfter  = 30 * time.Second

	defaultPageSize = 50
)

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("clockify: API returned %d: %s", e.StatusCode, e.Body)
}

// Client calls the Clockify REST API on behalf of one workspace, using the
// auth token captured at install time. Calls that fail with 429 or a 5xx
// are retried with exponential backoff, honoring Retry-After.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  zerolog.Logger
}

// Option customizes a client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithBaseURL overrides the API base URL (for regional instances and tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// NewClient builds a client for the workspace token.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  log.WithComponent("clockify"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call performs an API request against a path relative to the base URL,
// decoding a JSON response into out (skipped when out is nil). It is the
// escape hatch for endpoints without a typed helper.
func (c *Client) Call(ctx context.Context, method, path string, body, out any) error {
	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
	}

	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	start := time.Now()
	resp, raw, err := c.doWithRetry(ctx, method, u, encoded)
	metrics.APICallDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}
	metrics.APICallsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) doWithRetry(ctx context.Context, method, u string, body []byte) (*http.Response, []byte, error) {
	backoff := initialBackoff
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			metrics.APIRetriesTotal.Inc()
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, reader)
		if err != nil {
			return nil, nil, fmt.Errorf("building request: %w", err)
		}
		req.Header.Set(AddonTokenHeader, c.token)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			c.logger.Warn().Err(err).Str("method", method).Int("attempt", attempt).Msg("API call failed")
			continue
		}
		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			if attempt < maxRetries {
				if d := retryAfter(resp); d > 0 {
					backoff = d
				}
				c.logger.Warn().
					Int("status", resp.StatusCode).
					Int("attempt", attempt).
					Msg("API call retryable failure")
				lastErr = &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
				continue
			}
		}
		return resp, raw, nil
	}
	return nil, nil, fmt.Errorf("clockify: giving up after %d attempts: %w", maxRetries+1, lastErr)
}

// retryAfter parses a Retry-After header, capped so a hostile value cannot
// stall the worker.
func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}

// getPaged fetches all pages of a list endpoint, appending page/page-size
// query parameters until a short page is returned.
func getPaged[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	if query == nil {
		query = url.Values{}
	}
	var all []T
	for page := 1; ; page++ {
		query.Set("page", strconv.Itoa(page))
		query.Set("page-size", strconv.Itoa(defaultPageSize))
		var batch []T
		if err := c.Call(ctx, http.MethodGet, path+"?"+query.Encode(), nil, &batch); err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < defaultPageSize {
			return all, nil
		}
	}
}

// GetTags lists all tags in the workspace.
func (c *Client) GetTags(ctx context.Context, workspaceID string) ([]Tag, error) {
	return getPaged[Tag](ctx, c, fmt.Sprintf("workspaces/%s/tags", workspaceID), nil)
}

// FindTagByName returns the tag with the given name, matched
// case-insensitively, or nil when absent.
func (c *Client) FindTagByName(ctx context.Context, workspaceID, name string) (*Tag, error) {
	tags, err := c.GetTags(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	want := NormalizeTagName(name)
	for i := range tags {
		if NormalizeTagName(tags[i].Name) == want {
			return &tags[i], nil
		}
	}
	return nil, nil
}

// CreateTag creates a tag with the given name.
func (c *Client) CreateTag(ctx context.Context, workspaceID, name string) (*Tag, error) {
	var tag Tag
	body := map[string]string{"name": name}
	if err := c.Call(ctx, http.MethodPost, fmt.Sprintf("workspaces/%s/tags", workspaceID), body, &tag); err != nil {
		return nil, err
	}
	return &tag, nil
}

// EnsureTag returns the workspace tag with the given name, creating it when
// it does not exist yet.
func (c *Client) EnsureTag(ctx context.Context, workspaceID, name string) (*Tag, error) {
	tag, err := c.FindTagByName(ctx, workspaceID, name)
	if err != nil {
		return nil, err
	}
	if tag != nil {
		return tag, nil
	}
	return c.CreateTag(ctx, workspaceID, name)
}

// GetProjects lists all projects in the workspace.
func (c *Client) GetProjects(ctx context.Context, workspaceID string) ([]Project, error) {
	return getPaged[Project](ctx, c, fmt.Sprintf("workspaces/%s/projects", workspaceID), nil)
}

// FindProjectByName returns the project with the given name, or nil.
func (c *Client) FindProjectByName(ctx context.Context, workspaceID, name string) (*Project, error) {
	projects, err := c.GetProjects(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	for i := range projects {
		if strings.EqualFold(projects[i].Name, name) {
			return &projects[i], nil
		}
	}
	return nil, nil
}

// GetClients lists all clients in the workspace.
func (c *Client) GetClients(ctx context.Context, workspaceID string) ([]WorkspaceClient, error) {
	return getPaged[WorkspaceClient](ctx, c, fmt.Sprintf("workspaces/%s/clients", workspaceID), nil)
}

// GetUsers lists all members of the workspace.
func (c *Client) GetUsers(ctx context.Context, workspaceID string) ([]User, error) {
	return getPaged[User](ctx, c, fmt.Sprintf("workspaces/%s/users", workspaceID), nil)
}

// GetTasks lists all tasks of a project.
func (c *Client) GetTasks(ctx context.Context, workspaceID, projectID string) ([]Task, error) {
	return getPaged[Task](ctx, c, fmt.Sprintf("workspaces/%s/projects/%s/tasks", workspaceID, projectID), nil)
}

// FindTaskByName returns the project task with the given name, or nil.
func (c *Client) FindTaskByName(ctx context.Context, workspaceID, projectID, name string) (*Task, error) {
	tasks, err := c.GetTasks(ctx, workspaceID, projectID)
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		if strings.EqualFold(tasks[i].Name, name) {
			return &tasks[i], nil
		}
	}
	return nil, nil
}

// GetTimeEntry fetches one time entry.
func (c *Client) GetTimeEntry(ctx context.Context, workspaceID, entryID string) (*TimeEntry, error) {
	var entry TimeEntry
	path := fmt.Sprintf("workspaces/%s/time-entries/%s", workspaceID, entryID)
	if err := c.Call(ctx, http.MethodGet, path, nil, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// UpdateTimeEntry replaces a time entry.
func (c *Client) UpdateTimeEntry(ctx context.Context, workspaceID, entryID string, req *UpdateTimeEntryRequest) (*TimeEntry, error) {
	var entry TimeEntry
	path := fmt.Sprintf("workspaces/%s/time-entries/%s", workspaceID, entryID)
	if err := c.Call(ctx, http.MethodPut, path, req, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// NormalizeTagName lowercases and collapses internal whitespace so tag
// lookups tolerate formatting differences.
func NormalizeTagName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
