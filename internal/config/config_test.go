package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func envFrom(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func TestLoad_LocalDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(LoadOptions{Getenv: envFrom(nil)})
	require.NoError(t, err)

	require.Equal(t, ModeLocal, cfg.Mode)
	require.Equal(t, "https://www.bstackdemo.com", cfg.BaseURL)
	require.Equal(t, "demouser", cfg.TestUsername)
	require.Equal(t, "Samsung", cfg.TargetBrand)
	require.Equal(t, "Galaxy S20+", cfg.TargetProductName)
	require.Equal(t, "11", cfg.TargetProductID)
	require.Equal(t, 3, cfg.Workers)
	require.Equal(t, 20*time.Second, cfg.ElementTimeout)
	require.True(t, cfg.Headless)
	require.Len(t, cfg.Platforms, 3)
	require.False(t, cfg.ArtifactsEnabled())
	require.False(t, cfg.NotifyEnabled())
}

func TestLoad_RemoteRequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := Load(LoadOptions{Getenv: envFrom(map[string]string{"EXECUTION_MODE": "remote"})})
	require.Error(t, err)

	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	msg := err.Error()
	require.Contains(t, msg, "BROWSERSTACK_USERNAME")
	require.Contains(t, msg, "BROWSERSTACK_ACCESS_KEY")
}

func TestLoad_BrowserStackAliasAndOverrides(t *testing.T) {
	t.Parallel()

	headless := false
	cfg, err := Load(LoadOptions{
		Getenv: envFrom(map[string]string{
			"EXECUTION_MODE":          "browserstack",
			"BROWSERSTACK_USERNAME":   "alice",
			"BROWSERSTACK_ACCESS_KEY": "key",
			"WORKERS":                 "5",
		}),
		Overrides: Overrides{
			Workers:   2,
			Platforms: []string{"Samsung_Galaxy_S22_Chrome"},
			ReportDir: "out",
			Headless:  &headless,
		},
	})
	require.NoError(t, err)
	require.True(t, cfg.Remote())
	require.Equal(t, 2, cfg.Workers)
	require.Equal(t, "out", cfg.ReportDir)
	require.False(t, cfg.Headless)
	require.Len(t, cfg.Platforms, 1)
	require.Equal(t, "Samsung_Galaxy_S22_Chrome", cfg.Platforms[0].Name)
	require.Contains(t, cfg.Secrets(), "key")
}

func TestLoad_OverrideModeBeatsEnv(t *testing.T) {
	t.Parallel()

	cfg, err := Load(LoadOptions{
		Getenv:    envFrom(map[string]string{"EXECUTION_MODE": "remote"}),
		Overrides: Overrides{Mode: "local"},
	})
	require.NoError(t, err)
	require.Equal(t, ModeLocal, cfg.Mode)
}

func TestLoad_AggregatesParseErrors(t *testing.T) {
	t.Parallel()

	_, err := Load(LoadOptions{Getenv: envFrom(map[string]string{
		"EXECUTION_MODE":  "cloud",
		"WORKERS":         "three",
		"ELEMENT_TIMEOUT": "20",
		"HEADLESS":        "maybe",
		"PLATFORMS":       "Nope",
	})})
	require.Error(t, err)
	msg := err.Error()
	for _, token := range []string{"EXECUTION_MODE", "WORKERS", "ELEMENT_TIMEOUT", "HEADLESS", "Nope"} {
		require.Contains(t, msg, token)
	}
}

func TestLoad_PlatformFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "platforms.yml")
	content := `buildName: nightly
projectName: Favorites
debug: false
platforms:
  - name: Linux_Chromium
    os: Linux
    osVersion: "22.04"
    browserName: chromium
  - name: Pixel_7
    deviceName: Google Pixel 7
    osVersion: "13.0"
    browserName: chrome
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(LoadOptions{Getenv: envFrom(nil), PlatformsFile: path})
	require.NoError(t, err)
	require.Equal(t, "nightly", cfg.PlatformSettings.BuildName)
	require.False(t, cfg.PlatformSettings.Debug)
	require.True(t, cfg.PlatformSettings.NetworkLogs, "unset toggles keep defaults")
	require.Len(t, cfg.Platforms, 2)
	require.True(t, cfg.Platforms[1].IsMobile())
}

func TestParsePlatformFile_RejectsUnknownKeysAndDuplicates(t *testing.T) {
	t.Parallel()

	_, err := ParsePlatformFile([]byte("platforms:\n  - name: a\n    browser: chrome\n"))
	require.Error(t, err)

	_, err = ParsePlatformFile([]byte(`platforms:
  - {name: a, os: Windows, osVersion: "10", browserName: chrome}
  - {name: a, os: Windows, osVersion: "11", browserName: chrome}
`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate")

	file, err := ParsePlatformFile(nil)
	require.NoError(t, err)
	require.Len(t, file.Platforms, 3)
}

func TestLoad_MissingExplicitPlatformFile(t *testing.T) {
	t.Parallel()
	_, err := Load(LoadOptions{Getenv: envFrom(nil), PlatformsFile: filepath.Join(t.TempDir(), "missing.yml")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "platform file")
}

func TestLoad_EnvFileDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("TARGET_BRAND=Apple\nTARGET_PRODUCT_NAME=iPhone 12\n"), 0o644))

	t.Setenv("TARGET_BRAND", "Google")
	t.Setenv("TARGET_PRODUCT_NAME", "")
	require.NoError(t, os.Unsetenv("TARGET_PRODUCT_NAME"))
	t.Setenv("PLATFORMS_FILE", "")

	cfg, err := Load(LoadOptions{EnvFile: envFile})
	require.NoError(t, err)
	require.Equal(t, "Google", cfg.TargetBrand)
	require.Equal(t, "iPhone 12", cfg.TargetProductName)
}

func TestLoad_ArtifactsPublicURLDerived(t *testing.T) {
	t.Parallel()
	cfg, err := Load(LoadOptions{Getenv: envFrom(map[string]string{
		"ARTIFACTS_BUCKET":    "reports",
		"AWS_ENDPOINT_URL_S3": "https://fly.storage.tigris.dev/",
	})})
	require.NoError(t, err)
	require.True(t, cfg.ArtifactsEnabled())
	require.Equal(t, "https://fly.storage.tigris.dev/reports", cfg.ArtifactsPublicURL)
}

func testValidate_RejectsNonPositiveLimits(t *rapid.T) {
	cfg, err := Load(LoadOptions{Getenv: envFrom(nil)})
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	cfg.Workers = rapid.IntRange(-10, 0).Draw(t, "workers")
	cfg.ElementTimeout = time.Duration(rapid.Int64Range(-int64(time.Minute), 0).Draw(t, "timeout"))

	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, token := range []string{"WORKERS", "ELEMENT_TIMEOUT"} {
		if !strings.Contains(err.Error(), token) {
			t.Fatalf("expected error mentioning %q, got: %v", token, err)
		}
	}
}

func TestValidate_RejectsNonPositiveLimits(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testValidate_RejectsNonPositiveLimits)
}

func testParseMode_AcceptsKnownSpellings(t *rapid.T) {
	raw := rapid.SampledFrom([]string{"local", "LOCAL", " remote ", "Remote", "browserstack", "BrowserStack"}).Draw(t, "mode")
	mode, err := ParseMode(raw)
	if err != nil {
		t.Fatalf("ParseMode(%q): %v", raw, err)
	}
	want := ModeRemote
	if strings.EqualFold(strings.TrimSpace(raw), "local") {
		want = ModeLocal
	}
	if mode != want {
		t.Fatalf("ParseMode(%q) = %q, want %q", raw, mode, want)
	}
}

func TestParseMode_AcceptsKnownSpellings(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testParseMode_AcceptsKnownSpellings)
}
