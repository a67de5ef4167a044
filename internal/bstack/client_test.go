package bstack

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuitang/favorites-e2e/internal/errs"
	"github.com/kuitang/favorites-e2e/internal/obs"
	"github.com/kuitang/favorites-e2e/internal/platform"
)

const catalogueJSON = `[
  {"os":"Windows","os_version":"10","browser":"chrome","browser_version":"120.0","device":null,"real_mobile":null},
  {"os":"OS X","os_version":"Ventura","browser":"firefox","browser_version":"121.0","device":null,"real_mobile":null},
  {"os":"android","os_version":"12.0","browser":"android","browser_version":null,"device":"Samsung Galaxy S22","real_mobile":true}
]`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	auth := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			user, key, ok := r.BasicAuth()
			if !ok || user != "alice" || key != "good-key" {
				http.Error(w, `{"message":"Unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}
	mux.HandleFunc("GET /automate/plan.json", auth(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"automate_plan":"Team","parallel_sessions_running":1,"parallel_sessions_max_allowed":5,"queued_sessions":0,"queued_sessions_max_allowed":5}`))
	}))
	mux.HandleFunc("GET /automate/browsers.json", auth(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(catalogueJSON))
	}))
	mux.HandleFunc("GET /broken/automate/plan.json", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestPlan(t *testing.T) {
	t.Parallel()
	ts := newServer(t)
	plan, err := New(ts.URL, "alice", "good-key").Plan(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Team", plan.Name)
	require.Equal(t, 4, plan.Available())
}

func TestPlan_BadCredentials(t *testing.T) {
	t.Parallel()
	ts := newServer(t)
	_, err := New(ts.URL, "alice", "bad-key").Plan(context.Background())
	require.Equal(t, errs.InvalidConfig, errs.CodeOf(err))
	require.NotContains(t, err.Error(), "bad-key")
}

func TestGet_ServerErrorIsUnavailable(t *testing.T) {
	t.Parallel()
	ts := newServer(t)
	_, err := New(ts.URL+"/broken", "alice", "good-key").Plan(context.Background())
	require.Equal(t, errs.Unavailable, errs.CodeOf(err))
	require.Contains(t, err.Error(), "502")
}

func TestUnsupported(t *testing.T) {
	t.Parallel()
	ts := newServer(t)
	descs := append(platform.Defaults(), platform.Descriptor{
		Name: "Pixel_7", DeviceName: "Google Pixel 7", OSVersion: "13.0", BrowserName: "chrome",
	})

	missing, err := New(ts.URL, "alice", "good-key").Unsupported(context.Background(), descs)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	require.Equal(t, "Pixel_7", missing[0].Name)
}

func TestSupports_DesktopBrowserAliases(t *testing.T) {
	t.Parallel()
	version := "120.0"
	catalogue := []Browser{{OS: "Windows", OSVersion: "11", Browser: "chrome", BrowserVersion: &version}}
	require.True(t, Supports(catalogue, platform.Descriptor{Name: "w", OS: "windows", OSVersion: "11", BrowserName: "playwright-chromium"}))
	require.False(t, Supports(catalogue, platform.Descriptor{Name: "w", OS: "Windows", OSVersion: "10", BrowserName: "chrome"}))
}

func TestClient_LogsRedactedRequests(t *testing.T) {
	ts := newServer(t)
	var buf bytes.Buffer
	restore := obs.SetOutputForTests(&buf)
	defer restore()

	_, err := New(ts.URL, "alice", "good-key").Plan(context.Background())
	require.NoError(t, err)
	require.Contains(t, buf.String(), `"msg":"http_client"`)
	require.Contains(t, buf.String(), "/automate/plan.json")
	require.NotContains(t, buf.String(), "good-key")
}
