// Package platform describes the browser/OS/device combinations the scenario
// runs on and renders them as BrowserStack Playwright capabilities.
package platform

import (
	"fmt"
	"strconv"
	"strings"
)

// PlaywrightVersion is the client version reported to the remote service.
// It tracks the driver bundled with the playwright-go release in go.mod.
const PlaywrightVersion = "1.52.0"

// Engine is a Playwright browser engine.
type Engine string

const (
	Chromium Engine = "chromium"
	Firefox  Engine = "firefox"
	WebKit   Engine = "webkit"
)

// Descriptor is one target browser/OS/device combination.
type Descriptor struct {
	Name           string `yaml:"name" json:"name"`
	OS             string `yaml:"os,omitempty" json:"os,omitempty"`
	OSVersion      string `yaml:"osVersion,omitempty" json:"osVersion,omitempty"`
	BrowserName    string `yaml:"browserName" json:"browserName"`
	BrowserVersion string `yaml:"browserVersion,omitempty" json:"browserVersion,omitempty"`
	DeviceName     string `yaml:"deviceName,omitempty" json:"deviceName,omitempty"`
	Resolution     string `yaml:"resolution,omitempty" json:"resolution,omitempty"`
}

// Defaults returns the built-in three-platform matrix.
func Defaults() []Descriptor {
	return []Descriptor{
		{
			Name:           "Windows_10_Chrome",
			OS:             "Windows",
			OSVersion:      "10",
			BrowserName:    "chrome",
			BrowserVersion: "latest",
			Resolution:     "1920x1080",
		},
		{
			Name:           "macOS_Ventura_Firefox",
			OS:             "OS X",
			OSVersion:      "Ventura",
			BrowserName:    "firefox",
			BrowserVersion: "latest",
			Resolution:     "1920x1080",
		},
		{
			Name:        "Samsung_Galaxy_S22_Chrome",
			OSVersion:   "12.0",
			BrowserName: "chrome",
			DeviceName:  "Samsung Galaxy S22",
		},
	}
}

// IsMobile reports whether the descriptor targets a real or emulated device.
func (d Descriptor) IsMobile() bool {
	return strings.TrimSpace(d.DeviceName) != ""
}

// Engine maps the browser name to a Playwright engine.
func (d Descriptor) Engine() (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(d.BrowserName)) {
	case "chrome", "chromium", "edge", "playwright-chromium":
		return Chromium, nil
	case "firefox", "playwright-firefox":
		return Firefox, nil
	case "safari", "webkit", "playwright-webkit":
		return WebKit, nil
	default:
		return "", fmt.Errorf("platform %s: unsupported browser %q", d.Name, d.BrowserName)
	}
}

// Validate checks that the descriptor has the fields the remote service needs.
func (d Descriptor) Validate() error {
	var problems []string
	if strings.TrimSpace(d.Name) == "" {
		problems = append(problems, "name is required")
	}
	if _, err := d.Engine(); err != nil {
		problems = append(problems, fmt.Sprintf("browserName %q is not supported", d.BrowserName))
	}
	if d.IsMobile() {
		if d.OSVersion == "" {
			problems = append(problems, "osVersion is required for devices")
		}
	} else if d.OS == "" || d.OSVersion == "" {
		problems = append(problems, "os and osVersion are required for desktop browsers")
	}
	if len(problems) == 0 {
		return nil
	}
	name := d.Name
	if name == "" {
		name = "<unnamed>"
	}
	return fmt.Errorf("platform %s: %s", name, strings.Join(problems, "; "))
}

// ViewportSize parses Resolution ("1920x1080").
func (d Descriptor) ViewportSize() (width, height int, ok bool) {
	w, h, found := strings.Cut(strings.ToLower(strings.TrimSpace(d.Resolution)), "x")
	if !found {
		return 0, 0, false
	}
	width, errW := strconv.Atoi(w)
	height, errH := strconv.Atoi(h)
	if errW != nil || errH != nil || width <= 0 || height <= 0 {
		return 0, 0, false
	}
	return width, height, true
}

// String returns a human-readable label.
func (d Descriptor) String() string {
	if d.IsMobile() {
		return fmt.Sprintf("%s (%s %s, %s)", d.Name, d.DeviceName, d.OSVersion, d.BrowserName)
	}
	return fmt.Sprintf("%s (%s %s, %s %s)", d.Name, d.OS, d.OSVersion, d.BrowserName, orLatest(d.BrowserVersion))
}

// Select returns the descriptors whose names are listed, in matrix order.
// An empty selection returns the full matrix.
func Select(all []Descriptor, names []string) ([]Descriptor, error) {
	if len(names) == 0 {
		return all, nil
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n != "" {
			wanted[n] = false
		}
	}
	var out []Descriptor
	for _, d := range all {
		if _, ok := wanted[d.Name]; ok {
			wanted[d.Name] = true
			out = append(out, d)
		}
	}
	var unknown []string
	for n, found := range wanted {
		if !found {
			unknown = append(unknown, n)
		}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown platform(s): %s", strings.Join(sortedCopy(unknown), ", "))
	}
	return out, nil
}

func orLatest(v string) string {
	if strings.TrimSpace(v) == "" {
		return "latest"
	}
	return v
}
