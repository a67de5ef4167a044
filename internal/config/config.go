// Package config builds the single, immutable execution configuration for a run.
// It loads values from CLI overrides, the process environment, an optional .env
// file and a declarative platform file, validates required fields, and provides
// defaults matching the bstackdemo.com shop.
//
// The returned *Config is constructed once at process start and passed to every
// component; nothing else reads the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kuitang/favorites-e2e/internal/platform"
)

// Mode selects where browser sessions are provisioned.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

const (
	defaultBaseURL            = "https://www.bstackdemo.com"
	defaultBrowserStackWS     = "wss://cdp.browserstack.com/playwright"
	defaultBrowserStackAPI    = "https://api.browserstack.com"
	defaultPlatformsFile      = "platforms.yml"
	defaultElementTimeout     = 20 * time.Second
	defaultWorkers            = 3
	defaultReportDir          = "reports"
	defaultArtifactsRegion    = "auto"
	defaultNotifyFrom         = "e2e@bstackdemo.local"
	defaultArtifactsKeyPrefix = "e2e-runs"
)

// Config holds the execution configuration.
type Config struct {
	Mode Mode

	// BrowserStack
	BrowserStackUsername  string
	BrowserStackAccessKey string
	BrowserStackEndpoint  string // Playwright websocket endpoint
	BrowserStackAPIURL    string

	// Shop under test
	BaseURL      string
	TestUsername string
	TestPassword string

	// Scenario data
	TargetBrand       string
	TargetProductName string
	TargetProductID   string

	// Execution
	Platforms            []platform.Descriptor
	PlatformSettings     PlatformSettings
	Workers              int
	ElementTimeout       time.Duration
	SessionStartInterval time.Duration // minimum gap between remote session creations
	Headless             bool

	// Reporting
	ReportDir string

	// Artifact publication (optional; enabled when ArtifactsBucket is set)
	ArtifactsBucket    string
	ArtifactsPrefix    string
	ArtifactsPublicURL string
	AWSEndpointS3      string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	// Summary notification (optional; enabled when both are set)
	ResendAPIKey string
	NotifyEmail  string
	NotifyFrom   string

	// Logging
	LogLevel string
	LogFile  string
}

// Overrides are CLI flag values; zero values leave the environment in charge.
type Overrides struct {
	Mode      string
	Platforms []string
	Workers   int
	ReportDir string
	Headless  *bool
}

// LoadOptions control where Load reads from.
type LoadOptions struct {
	// EnvFile is loaded with godotenv when present. Real environment variables win.
	EnvFile string
	// PlatformsFile overrides PLATFORMS_FILE.
	PlatformsFile string
	Overrides     Overrides
	// Getenv replaces os.Getenv, for tests.
	Getenv func(string) string
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Load builds and validates the configuration.
func Load(opts LoadOptions) (*Config, error) {
	getenv := opts.Getenv
	if getenv == nil {
		if opts.EnvFile != "" {
			if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("load %s: %w", opts.EnvFile, err)
			}
		}
		getenv = os.Getenv
	}
	env := envReader{get: getenv}

	cfg := &Config{}
	var problems []string

	cfg.Mode = ModeLocal
	if raw := firstNonEmpty(opts.Overrides.Mode, env.get("EXECUTION_MODE")); raw != "" {
		mode, err := ParseMode(raw)
		if err != nil {
			problems = append(problems, err.Error())
		} else {
			cfg.Mode = mode
		}
	}

	cfg.BrowserStackUsername = env.trimmed("BROWSERSTACK_USERNAME")
	cfg.BrowserStackAccessKey = env.trimmed("BROWSERSTACK_ACCESS_KEY")
	cfg.BrowserStackEndpoint = env.orDefault("BROWSERSTACK_ENDPOINT", defaultBrowserStackWS)
	cfg.BrowserStackAPIURL = strings.TrimRight(env.orDefault("BROWSERSTACK_API_URL", defaultBrowserStackAPI), "/")

	cfg.BaseURL = strings.TrimRight(env.orDefault("BASE_URL", defaultBaseURL), "/")
	cfg.TestUsername = env.orDefault("TEST_USERNAME", "demouser")
	cfg.TestPassword = env.orDefault("TEST_PASSWORD", "testingisfun99")

	cfg.TargetBrand = env.orDefault("TARGET_BRAND", "Samsung")
	cfg.TargetProductName = env.orDefault("TARGET_PRODUCT_NAME", "Galaxy S20+")
	cfg.TargetProductID = env.orDefault("TARGET_PRODUCT_ID", "11")

	cfg.Workers = env.intOrDefault("WORKERS", defaultWorkers, &problems)
	if opts.Overrides.Workers > 0 {
		cfg.Workers = opts.Overrides.Workers
	}
	cfg.ElementTimeout = env.durationOrDefault("ELEMENT_TIMEOUT", defaultElementTimeout, &problems)
	cfg.SessionStartInterval = env.durationOrDefault("SESSION_START_INTERVAL", 0, &problems)
	cfg.Headless = env.boolOrDefault("HEADLESS", true, &problems)
	if opts.Overrides.Headless != nil {
		cfg.Headless = *opts.Overrides.Headless
	}

	cfg.ReportDir = firstNonEmpty(opts.Overrides.ReportDir, env.orDefault("REPORT_DIR", defaultReportDir))

	cfg.ArtifactsBucket = env.trimmed("ARTIFACTS_BUCKET")
	cfg.ArtifactsPrefix = strings.Trim(env.orDefault("ARTIFACTS_PREFIX", defaultArtifactsKeyPrefix), "/")
	cfg.AWSEndpointS3 = env.trimmed("AWS_ENDPOINT_URL_S3")
	cfg.AWSRegion = env.orDefault("AWS_REGION", defaultArtifactsRegion)
	cfg.AWSAccessKeyID = env.trimmed("AWS_ACCESS_KEY_ID")
	cfg.AWSSecretAccessKey = env.trimmed("AWS_SECRET_ACCESS_KEY")
	cfg.ArtifactsPublicURL = env.trimmed("ARTIFACTS_PUBLIC_URL")
	if cfg.ArtifactsPublicURL == "" && cfg.AWSEndpointS3 != "" && cfg.ArtifactsBucket != "" {
		cfg.ArtifactsPublicURL = strings.TrimRight(cfg.AWSEndpointS3, "/") + "/" + cfg.ArtifactsBucket
	}

	cfg.ResendAPIKey = env.trimmed("RESEND_API_KEY")
	cfg.NotifyEmail = env.trimmed("NOTIFY_EMAIL")
	cfg.NotifyFrom = env.orDefault("NOTIFY_FROM", defaultNotifyFrom)

	cfg.LogLevel = env.orDefault("LOG_LEVEL", "info")
	cfg.LogFile = env.trimmed("LOG_FILE")

	platformsFile := firstNonEmpty(opts.PlatformsFile, env.trimmed("PLATFORMS_FILE"))
	file, err := resolvePlatformFile(platformsFile)
	if err != nil {
		problems = append(problems, err.Error())
	}
	cfg.PlatformSettings = file.Settings
	selection := opts.Overrides.Platforms
	if len(selection) == 0 {
		selection = splitList(env.get("PLATFORMS"))
	}
	selected, err := platform.Select(file.Platforms, selection)
	if err != nil {
		problems = append(problems, err.Error())
	}
	cfg.Platforms = selected

	if len(problems) > 0 {
		return nil, &ValidationError{Errors: problems}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present and valid.
// Remote mode requires BrowserStack credentials; this runs before any session exists.
func (c *Config) Validate() error {
	var errs []string

	if c.Mode == ModeRemote {
		if c.BrowserStackUsername == "" {
			errs = append(errs, "BROWSERSTACK_USERNAME is required for remote execution (set env var or use --mode local)")
		}
		if c.BrowserStackAccessKey == "" {
			errs = append(errs, "BROWSERSTACK_ACCESS_KEY is required for remote execution (set env var or use --mode local)")
		}
		if c.BrowserStackEndpoint == "" {
			errs = append(errs, "BROWSERSTACK_ENDPOINT must not be empty")
		}
	}

	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("BASE_URL must be an absolute URL, got %q", c.BaseURL))
	}
	if c.TestUsername == "" || c.TestPassword == "" {
		errs = append(errs, "TEST_USERNAME and TEST_PASSWORD must not be empty")
	}
	if c.TargetBrand == "" {
		errs = append(errs, "TARGET_BRAND must not be empty")
	}
	if c.TargetProductName == "" || c.TargetProductID == "" {
		errs = append(errs, "TARGET_PRODUCT_NAME and TARGET_PRODUCT_ID must not be empty")
	}
	if c.Workers < 1 {
		errs = append(errs, "WORKERS must be at least 1")
	}
	if c.ElementTimeout <= 0 {
		errs = append(errs, "ELEMENT_TIMEOUT must be positive")
	}
	if c.SessionStartInterval < 0 {
		errs = append(errs, "SESSION_START_INTERVAL must not be negative")
	}
	if c.ReportDir == "" {
		errs = append(errs, "REPORT_DIR must not be empty")
	}
	if len(c.Platforms) == 0 {
		errs = append(errs, "at least one platform must be configured")
	}
	for _, p := range c.Platforms {
		if err := p.Validate(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if c.ArtifactsBucket != "" && c.AWSEndpointS3 == "" && c.AWSRegion == defaultArtifactsRegion {
		errs = append(errs, "AWS_REGION or AWS_ENDPOINT_URL_S3 is required when ARTIFACTS_BUCKET is set")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// ParseMode parses an execution mode. "browserstack" is accepted as remote.
func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "local":
		return ModeLocal, nil
	case "remote", "browserstack":
		return ModeRemote, nil
	default:
		return "", fmt.Errorf("EXECUTION_MODE must be local or remote, got %q", raw)
	}
}

// Remote reports whether sessions are provisioned on BrowserStack.
func (c *Config) Remote() bool {
	return c.Mode == ModeRemote
}

// ArtifactsEnabled reports whether reports are uploaded to object storage.
func (c *Config) ArtifactsEnabled() bool {
	return c.ArtifactsBucket != ""
}

// NotifyEnabled reports whether a summary e-mail is sent.
func (c *Config) NotifyEnabled() bool {
	return c.ResendAPIKey != "" && c.NotifyEmail != ""
}

// Secrets returns every configured secret value, for censoring logs and reports.
func (c *Config) Secrets() []string {
	return []string{
		c.BrowserStackAccessKey,
		c.TestPassword,
		c.AWSSecretAccessKey,
		c.ResendAPIKey,
	}
}

// PrintSummary writes a human-readable summary of the configuration to stderr.
func (c *Config) PrintSummary() {
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "favorites-e2e starting...")
	if c.Remote() {
		fmt.Fprintf(os.Stderr, "  Mode:      remote (BrowserStack, user: %s)\n", c.BrowserStackUsername)
	} else {
		fmt.Fprintf(os.Stderr, "  Mode:      local (headless: %t)\n", c.Headless)
	}
	fmt.Fprintf(os.Stderr, "  Shop:      %s\n", c.BaseURL)
	fmt.Fprintf(os.Stderr, "  Target:    %s / %s (id %s)\n", c.TargetBrand, c.TargetProductName, c.TargetProductID)
	fmt.Fprintf(os.Stderr, "  Platforms: %d (workers: %d)\n", len(c.Platforms), c.Workers)
	fmt.Fprintf(os.Stderr, "  Reports:   %s\n", c.ReportDir)
	if c.ArtifactsEnabled() {
		fmt.Fprintf(os.Stderr, "  Artifacts: s3://%s/%s\n", c.ArtifactsBucket, c.ArtifactsPrefix)
	}
	fmt.Fprintln(os.Stderr, "")
}

type envReader struct {
	get func(string) string
}

func (e envReader) trimmed(key string) string {
	return strings.TrimSpace(e.get(key))
}

func (e envReader) orDefault(key, defaultValue string) string {
	value := e.trimmed(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func (e envReader) intOrDefault(key string, defaultValue int, problems *[]string) int {
	value := e.trimmed(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		*problems = append(*problems, fmt.Sprintf("%s must be an integer, got %q", key, value))
		return defaultValue
	}
	return parsed
}

func (e envReader) durationOrDefault(key string, defaultValue time.Duration, problems *[]string) time.Duration {
	value := e.trimmed(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		*problems = append(*problems, fmt.Sprintf("%s must be a duration (e.g. 20s), got %q", key, value))
		return defaultValue
	}
	return parsed
}

func (e envReader) boolOrDefault(key string, defaultValue bool, problems *[]string) bool {
	value := e.trimmed(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		*problems = append(*problems, fmt.Sprintf("%s must be a boolean, got %q", key, value))
		return defaultValue
	}
	return parsed
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
