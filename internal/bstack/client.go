// Package bstack is a small client for the BrowserStack Automate REST API,
// used to check credentials and platform support before any session starts.
package bstack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kuitang/favorites-e2e/internal/errs"
	"github.com/kuitang/favorites-e2e/internal/logutil"
	"github.com/kuitang/favorites-e2e/internal/obs"
	"github.com/kuitang/favorites-e2e/internal/platform"
)

// Plan is the account's Automate plan and parallel capacity.
type Plan struct {
	Name                  string `json:"automate_plan"`
	ParallelRunning       int    `json:"parallel_sessions_running"`
	ParallelMaxAllowed    int    `json:"parallel_sessions_max_allowed"`
	TeamParallelMax       int    `json:"team_parallel_sessions_max_allowed"`
	QueuedSessions        int    `json:"queued_sessions"`
	QueuedSessionsAllowed int    `json:"queued_sessions_max_allowed"`
}

// Available is how many more sessions can start right now.
func (p Plan) Available() int {
	if n := p.ParallelMaxAllowed - p.ParallelRunning; n > 0 {
		return n
	}
	return 0
}

// Browser is one entry of the browser and device catalogue.
type Browser struct {
	OS             string  `json:"os"`
	OSVersion      string  `json:"os_version"`
	Browser        string  `json:"browser"`
	BrowserVersion *string `json:"browser_version"`
	Device         *string `json:"device"`
	RealMobile     *bool   `json:"real_mobile"`
}

// Client calls the Automate API with basic auth.
type Client struct {
	baseURL   string
	username  string
	accessKey string
	http      *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its transport is still wrapped for logging.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a client for baseURL (https://api.browserstack.com).
func New(baseURL, username, accessKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		username:  username,
		accessKey: accessKey,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	wrapped := *c.http
	wrapped.Transport = obs.NewLoggingTransport("bstack", c.http.Transport)
	c.http = &wrapped
	return c
}

// Plan fetches the account plan. A 401 means the credentials are wrong.
func (c *Client) Plan(ctx context.Context) (Plan, error) {
	var plan Plan
	if err := c.get(ctx, "/automate/plan.json", &plan); err != nil {
		return Plan{}, err
	}
	return plan, nil
}

// Browsers fetches the browser and device catalogue.
func (c *Client) Browsers(ctx context.Context) ([]Browser, error) {
	var browsers []Browser
	if err := c.get(ctx, "/automate/browsers.json", &browsers); err != nil {
		return nil, err
	}
	return browsers, nil
}

// Supports reports whether desc matches an entry in catalogue.
func Supports(catalogue []Browser, desc platform.Descriptor) bool {
	for _, b := range catalogue {
		if desc.IsMobile() {
			if b.Device != nil && strings.EqualFold(*b.Device, desc.DeviceName) && versionMatch(b.OSVersion, desc.OSVersion) {
				return true
			}
			continue
		}
		if b.Device != nil {
			continue
		}
		if strings.EqualFold(b.OS, desc.OS) &&
			strings.EqualFold(b.OSVersion, desc.OSVersion) &&
			strings.EqualFold(b.Browser, catalogueBrowser(desc.BrowserName)) {
			return true
		}
	}
	return false
}

// Unsupported returns the descriptors that the catalogue cannot serve.
func (c *Client) Unsupported(ctx context.Context, descs []platform.Descriptor) ([]platform.Descriptor, error) {
	catalogue, err := c.Browsers(ctx)
	if err != nil {
		return nil, err
	}
	var out []platform.Descriptor
	for _, d := range descs {
		if !Supports(catalogue, d) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errs.Wrap(errs.Internal, "build request", err)
	}
	req.SetBasicAuth(c.username, c.accessKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errs.New(errs.Unavailable, "browserstack api: "+logutil.Censor(err.Error(), c.accessKey))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return errs.Wrap(errs.Unavailable, "read browserstack response", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return errs.New(errs.InvalidConfig, "browserstack rejected the credentials for user "+c.username)
	case resp.StatusCode >= 400:
		return errs.New(errs.Unavailable, fmt.Sprintf("browserstack api %s: %d %s", path, resp.StatusCode,
			logutil.TruncateForLog(string(body), 200)))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errs.Wrap(errs.Unavailable, "decode "+path, err)
	}
	return nil
}

func catalogueBrowser(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "chromium", "playwright-chromium":
		return "chrome"
	case "webkit", "playwright-webkit":
		return "safari"
	case "playwright-firefox":
		return "firefox"
	}
	return name
}

// versionMatch treats "12" and "12.0" as equal.
func versionMatch(a, b string) bool {
	trim := func(v string) string { return strings.TrimSuffix(strings.TrimSpace(v), ".0") }
	return strings.EqualFold(trim(a), trim(b))
}
