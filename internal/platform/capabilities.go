package platform

import (
	"encoding/json"
	"net/url"
	"sort"
	"strings"
)

// CapabilityOptions carries the run-wide settings merged into every descriptor's caps.
type CapabilityOptions struct {
	Build       string
	Project     string
	SessionName string
	Username    string
	AccessKey   string
	Debug       bool
	NetworkLogs bool
	ConsoleLogs string
}

// Capabilities renders the BrowserStack Playwright capabilities for the descriptor.
func (d Descriptor) Capabilities(o CapabilityOptions) map[string]any {
	caps := map[string]any{
		"name":                     o.SessionName,
		"build":                    o.Build,
		"project":                  o.Project,
		"browserstack.username":    o.Username,
		"browserstack.accessKey":   o.AccessKey,
		"browserstack.debug":       boolString(o.Debug),
		"browserstack.networkLogs": boolString(o.NetworkLogs),
		"client.playwrightVersion": PlaywrightVersion,
	}
	if o.ConsoleLogs != "" {
		caps["browserstack.console"] = o.ConsoleLogs
	}
	if caps["name"] == "" {
		caps["name"] = d.Name
	}

	if d.IsMobile() {
		caps["deviceName"] = d.DeviceName
		caps["osVersion"] = d.OSVersion
		caps["browserName"] = remoteBrowser(d.BrowserName)
		caps["realMobile"] = "true"
		return caps
	}

	caps["browser"] = remoteBrowser(d.BrowserName)
	caps["browser_version"] = orLatest(d.BrowserVersion)
	caps["os"] = d.OS
	caps["os_version"] = d.OSVersion
	if d.Resolution != "" {
		caps["resolution"] = d.Resolution
	}
	return caps
}

// ConnectURL appends the JSON-encoded caps to the Playwright websocket endpoint.
func ConnectURL(endpoint string, caps map[string]any) (string, error) {
	payload, err := json.Marshal(caps)
	if err != nil {
		return "", err
	}
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	return endpoint + sep + "caps=" + url.QueryEscape(string(payload)), nil
}

func remoteBrowser(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "firefox", "playwright-firefox":
		return "playwright-firefox"
	case "safari", "webkit", "playwright-webkit":
		return "playwright-webkit"
	case "chromium", "playwright-chromium":
		return "playwright-chromium"
	case "edge":
		return "edge"
	default:
		return "chrome"
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
