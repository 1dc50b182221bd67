package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clockify/addon-sdk-go/pkg/addon"
	"github.com/clockify/addon-sdk-go/pkg/clockify"
	"github.com/clockify/addon-sdk-go/pkg/config"
)

type fakeClockify struct {
	entry   clockify.TimeEntry
	tags    []clockify.Tag
	updates []clockify.UpdateTimeEntryRequest
}

func (f *fakeClockify) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/workspaces/ws-1/time-entries/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(f.entry)
		case http.MethodPut:
			var req clockify.UpdateTimeEntryRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			f.updates = append(f.updates, req)
			json.NewEncoder(w).Encode(f.entry)
		}
	})
	mux.HandleFunc("/workspaces/ws-1/tags", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(f.tags)
		case http.MethodPost:
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			tag := clockify.Tag{ID: fmt.Sprintf("tag-%d", len(f.tags)+1), Name: body["name"]}
			f.tags = append(f.tags, tag)
			json.NewEncoder(w).Encode(tag)
		}
	})
	srv := httptest.NewServer(http.StripPrefix("/api/v1", mux))
	t.Cleanup(srv.Close)
	return srv
}

func newTestApp(t *testing.T) (*httptest.Server, *fakeClockify) {
	t.Helper()
	cfg := config.Default()
	cfg.BaseURL = "https://autotag.example.com"

	application, err := newApp(cfg, newSuggester(defaultKeywords, false), true)
	require.NoError(t, err)
	t.Cleanup(application.close)

	srv := httptest.NewServer(application.server.Handler())
	t.Cleanup(srv.Close)
	return srv, &fakeClockify{
		entry: clockify.TimeEntry{ID: "te-1", Description: "weekly planning meeting"},
	}
}

func install(t *testing.T, srv *httptest.Server, apiBaseURL string) {
	t.Helper()
	body := fmt.Sprintf(`{"workspaceId":"ws-1","authToken":"inst-token","apiBaseUrl":%q}`, apiBaseURL)
	resp, err := http.Post(srv.URL+"/lifecycle/installed", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func postWebhook(t *testing.T, srv *httptest.Server, body string) map[string]any {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/webhook", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set(addon.EventTypeHeader, "NEW_TIME_ENTRY")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestWebhookTagsUntaggedEntry(t *testing.T) {
	srv, fake := newTestApp(t)
	api := fake.server(t)
	install(t, srv, api.URL)

	out := postWebhook(t, srv, `{"workspaceId":"ws-1","id":"te-1","description":"weekly planning meeting","tags":[]}`)
	assert.Equal(t, "processed", out["status"])
	assert.Equal(t, []any{"Meeting"}, out["tags"])

	require.Len(t, fake.updates, 1)
	assert.Equal(t, []string{"tag-1"}, fake.updates[0].TagIDs)
}

func TestWebhookSkipsTaggedEntry(t *testing.T) {
	srv, fake := newTestApp(t)
	api := fake.server(t)
	install(t, srv, api.URL)

	out := postWebhook(t, srv, `{"workspaceId":"ws-1","id":"te-1","description":"weekly planning meeting","tags":[{"id":"tag-9","name":"done"}]}`)
	assert.Equal(t, "skipped", out["status"])
	assert.Empty(t, fake.updates)
}

func TestWebhookSkipsWhenEntryGainedTags(t *testing.T) {
	srv, fake := newTestApp(t)
	fake.entry.TagIDs = []string{"tag-9"}
	api := fake.server(t)
	install(t, srv, api.URL)

	// payload says untagged but the API copy already has tags
	out := postWebhook(t, srv, `{"workspaceId":"ws-1","id":"te-1","description":"weekly planning meeting"}`)
	assert.Equal(t, "skipped", out["status"])
	assert.Empty(t, fake.updates)
}

func TestWebhookIgnoresUnmatchedDescription(t *testing.T) {
	srv, fake := newTestApp(t)
	api := fake.server(t)
	install(t, srv, api.URL)

	out := postWebhook(t, srv, `{"workspaceId":"ws-1","id":"te-2","description":"writing code"}`)
	assert.Equal(t, "acknowledged", out["status"])
	assert.Empty(t, fake.updates)
}

func TestWebhookDeduplicates(t *testing.T) {
	srv, fake := newTestApp(t)
	api := fake.server(t)
	install(t, srv, api.URL)

	body := `{"workspaceId":"ws-1","id":"te-1","description":"weekly planning meeting"}`
	first := postWebhook(t, srv, body)
	second := postWebhook(t, srv, body)
	assert.Equal(t, "processed", first["status"])
	assert.Equal(t, "duplicate", second["status"])
	assert.Len(t, fake.updates, 1)
}

func TestUninstallRemovesToken(t *testing.T) {
	srv, _ := newTestApp(t)
	install(t, srv, "https://api.clockify.me")

	resp, err := http.Post(srv.URL+"/lifecycle/deleted", "application/json",
		strings.NewReader(`{"workspaceId":"ws-1"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := postWebhook(t, srv, `{"workspaceId":"ws-1","id":"te-1","description":"weekly planning meeting"}`)
	assert.Equal(t, "skipped", out["status"])
}
