package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

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

func newTestApp(t *testing.T, threshold time.Duration) (*httptest.Server, *fakeClockify) {
	t.Helper()
	cfg := config.Default()
	cfg.BaseURL = "https://overtime.example.com"

	application, err := newApp(cfg, threshold, "Overtime", true)
	require.NoError(t, err)
	t.Cleanup(application.close)

	srv := httptest.NewServer(application.server.Handler())
	t.Cleanup(srv.Close)
	return srv, &fakeClockify{
		entry: clockify.TimeEntry{ID: "te-1", Description: "long day"},
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

func stopTimer(t *testing.T, srv *httptest.Server, entryID, start, end string) map[string]any {
	t.Helper()
	body := fmt.Sprintf(`{
		"workspaceId": "ws-1",
		"id": %q,
		"userId": "u-1",
		"timeInterval": {"start": %q, "end": %q}
	}`, entryID, start, end)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/webhook", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set(addon.EventTypeHeader, "TIMER_STOPPED")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestEntryUnderThresholdIsNotTagged(t *testing.T) {
	srv, fake := newTestApp(t, 8*time.Hour)
	api := fake.server(t)
	install(t, srv, api.URL)

	out := stopTimer(t, srv, "te-1", "2026-08-26T09:00:00Z", "2026-08-26T12:00:00Z")
	assert.Equal(t, "processed", out["status"])
	assert.Nil(t, out["tagged"])
	assert.Empty(t, fake.updates)
}

func TestEntryCrossingThresholdIsTagged(t *testing.T) {
	srv, fake := newTestApp(t, 8*time.Hour)
	api := fake.server(t)
	install(t, srv, api.URL)

	// 6h in the morning, then 3h in the evening pushes the day to 9h
	first := stopTimer(t, srv, "te-1", "2026-08-26T08:00:00Z", "2026-08-26T14:00:00Z")
	assert.Nil(t, first["tagged"])

	second := stopTimer(t, srv, "te-2", "2026-08-26T18:00:00Z", "2026-08-26T21:00:00Z")
	assert.Equal(t, true, second["tagged"])
	assert.Equal(t, "9h0m0s", second["dailyTotal"])

	require.Len(t, fake.updates, 1)
	assert.Contains(t, fake.updates[0].TagIDs, "tag-1")
}

func TestSeparateDaysDoNotAccumulate(t *testing.T) {
	srv, fake := newTestApp(t, 8*time.Hour)
	api := fake.server(t)
	install(t, srv, api.URL)

	stopTimer(t, srv, "te-1", "2026-08-25T08:00:00Z", "2026-08-25T14:00:00Z")
	out := stopTimer(t, srv, "te-2", "2026-08-26T08:00:00Z", "2026-08-26T14:00:00Z")
	assert.Equal(t, "6h0m0s", out["dailyTotal"])
	assert.Empty(t, fake.updates)
}

func TestDuplicateDeliveryCountsOnce(t *testing.T) {
	srv, fake := newTestApp(t, 8*time.Hour)
	api := fake.server(t)
	install(t, srv, api.URL)

	first := stopTimer(t, srv, "te-1", "2026-08-26T08:00:00Z", "2026-08-26T17:00:00Z")
	assert.Equal(t, true, first["tagged"])

	second := stopTimer(t, srv, "te-1", "2026-08-26T08:00:00Z", "2026-08-26T17:00:00Z")
	assert.Equal(t, "duplicate", second["status"])
	assert.Len(t, fake.updates, 1)
}

func TestIncompletePayloadIsSkipped(t *testing.T) {
	srv, _ := newTestApp(t, 8*time.Hour)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/webhook",
		strings.NewReader(`{"workspaceId":"ws-1","id":"te-1"}`))
	require.NoError(t, err)
	req.Header.Set(addon.EventTypeHeader, "TIMER_STOPPED")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "skipped", out["status"])
}

func TestAlreadyTaggedEntryIsNotUpdatedAgain(t *testing.T) {
	srv, fake := newTestApp(t, time.Hour)
	fake.tags = []clockify.Tag{{ID: "tag-ot", Name: "Overtime"}}
	fake.entry.TagIDs = []string{"tag-ot"}
	api := fake.server(t)
	install(t, srv, api.URL)

	out := stopTimer(t, srv, "te-1", "2026-08-26T08:00:00Z", "2026-08-26T12:00:00Z")
	assert.Equal(t, true, out["tagged"])
	assert.Empty(t, fake.updates)
}
