package platform

import (
	"encoding/json"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDefaults_AreValid(t *testing.T) {
	t.Parallel()

	defaults := Defaults()
	require.Len(t, defaults, 3)
	seen := map[string]bool{}
	for _, d := range defaults {
		require.NoError(t, d.Validate())
		require.False(t, seen[d.Name], "duplicate name %s", d.Name)
		seen[d.Name] = true
	}
	require.True(t, defaults[2].IsMobile())
}

func TestEngine_Mapping(t *testing.T) {
	t.Parallel()
	cases := map[string]Engine{
		"chrome":             Chromium,
		"Chrome":             Chromium,
		"edge":               Chromium,
		"firefox":            Firefox,
		"playwright-firefox": Firefox,
		"safari":             WebKit,
	}
	for browser, want := range cases {
		got, err := Descriptor{Name: "x", BrowserName: browser}.Engine()
		require.NoError(t, err)
		require.Equal(t, want, got, browser)
	}
	_, err := Descriptor{Name: "x", BrowserName: "netscape"}.Engine()
	require.Error(t, err)
}

func TestValidate_ReportsMissingFields(t *testing.T) {
	t.Parallel()
	err := Descriptor{BrowserName: "chrome"}.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "name is required")
	require.Contains(t, err.Error(), "os and osVersion")

	err = Descriptor{Name: "phone", BrowserName: "chrome", DeviceName: "Pixel 7"}.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "osVersion is required for devices")
}

func TestCapabilities_Desktop(t *testing.T) {
	t.Parallel()
	d := Defaults()[1]
	caps := d.Capabilities(CapabilityOptions{
		Build:     "build-1",
		Project:   "proj",
		Username:  "alice",
		AccessKey: "key",
		Debug:     true,
	})
	require.Equal(t, "playwright-firefox", caps["browser"])
	require.Equal(t, "latest", caps["browser_version"])
	require.Equal(t, "OS X", caps["os"])
	require.Equal(t, "Ventura", caps["os_version"])
	require.Equal(t, "true", caps["browserstack.debug"])
	require.Equal(t, "false", caps["browserstack.networkLogs"])
	require.Equal(t, d.Name, caps["name"])
	require.NotContains(t, caps, "deviceName")
}

func TestCapabilities_Mobile(t *testing.T) {
	t.Parallel()
	caps := Defaults()[2].Capabilities(CapabilityOptions{SessionName: "fav"})
	require.Equal(t, "Samsung Galaxy S22", caps["deviceName"])
	require.Equal(t, "12.0", caps["osVersion"])
	require.Equal(t, "true", caps["realMobile"])
	require.Equal(t, "fav", caps["name"])
	require.NotContains(t, caps, "os")
}

func TestConnectURL_EncodesCaps(t *testing.T) {
	t.Parallel()
	caps := map[string]any{"browser": "chrome", "name": "a b&c"}
	raw, err := ConnectURL("wss://cdp.browserstack.com/playwright", caps)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(u.Query().Get("caps")), &decoded))
	require.Equal(t, "a b&c", decoded["name"])

	raw, err = ConnectURL("wss://host/pw?x=1", caps)
	require.NoError(t, err)
	require.True(t, strings.Contains(raw, "?x=1&caps="))
}

func testSelect_PreservesMatrixOrder(t *rapid.T) {
	all := Defaults()
	picked := rapid.SliceOfNDistinct(rapid.SampledFrom(all), 1, len(all), func(d Descriptor) string { return d.Name }).Draw(t, "picked")
	names := make([]string, len(picked))
	for i, d := range picked {
		names[i] = d.Name
	}

	got, err := Select(all, names)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != len(picked) {
		t.Fatalf("got %d descriptors, want %d", len(got), len(picked))
	}
	last := -1
	for _, d := range got {
		idx := -1
		for i, a := range all {
			if a.Name == d.Name {
				idx = i
			}
		}
		if idx <= last {
			t.Fatalf("selection out of matrix order: %v", got)
		}
		last = idx
	}
}

func TestSelect_PreservesMatrixOrder(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testSelect_PreservesMatrixOrder)
}

func TestSelect_UnknownName(t *testing.T) {
	t.Parallel()
	_, err := Select(Defaults(), []string{"Windows_10_Chrome", "BeOS_Netpositive"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "BeOS_Netpositive")

	all, err := Select(Defaults(), nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestViewportSize(t *testing.T) {
	t.Parallel()
	w, h, ok := Descriptor{Resolution: "1920x1080"}.ViewportSize()
	require.True(t, ok)
	require.Equal(t, 1920, w)
	require.Equal(t, 1080, h)

	for _, bad := range []string{"", "1920", "x1080", "0x0", "widexhigh"} {
		_, _, ok := Descriptor{Resolution: bad}.ViewportSize()
		require.False(t, ok, bad)
	}
}
