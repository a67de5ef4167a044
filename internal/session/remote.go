package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"golang.org/x/time/rate"

	"github.com/kuitang/favorites-e2e/internal/errs"
	"github.com/kuitang/favorites-e2e/internal/logutil"
	"github.com/kuitang/favorites-e2e/internal/obs"
	"github.com/kuitang/favorites-e2e/internal/platform"
)

// ConnectFunc opens a browser on a Playwright websocket endpoint.
type ConnectFunc func(engine platform.Engine, wsURL string) (playwright.Browser, error)

// RemoteOptions configure a RemoteProvider.
type RemoteOptions struct {
	Endpoint       string
	Capabilities   platform.CapabilityOptions
	ElementTimeout time.Duration
	// StartInterval is the minimum gap between session creations. Zero disables pacing.
	StartInterval time.Duration
	// Connect overrides the Playwright connection, for tests.
	Connect ConnectFunc
	// Run starts Playwright; defaults to installing the driver (without
	// browsers, which live on the grid) and then playwright.Run.
	Run func() (*playwright.Playwright, error)
}

// RemoteProvider opens one BrowserStack grid session per descriptor. Each
// session owns its remote browser; closing the session ends it on the grid.
type RemoteProvider struct {
	opts    RemoteOptions
	limiter *rate.Limiter

	mu sync.Mutex
	pw *playwright.Playwright
}

// NewRemoteProvider returns a provider for the BrowserStack grid.
func NewRemoteProvider(opts RemoteOptions) *RemoteProvider {
	if opts.Run == nil {
		opts.Run = func() (*playwright.Playwright, error) {
			return startDriver(playwright.Install, playwright.Run)
		}
	}
	limit := rate.Inf
	if opts.StartInterval > 0 {
		limit = rate.Every(opts.StartInterval)
	}
	p := &RemoteProvider{opts: opts, limiter: rate.NewLimiter(limit, 1)}
	if p.opts.Connect == nil {
		p.opts.Connect = p.connect
	}
	return p
}

// Open waits for a start slot, then connects a grid browser for desc.
func (p *RemoteProvider) Open(ctx context.Context, desc platform.Descriptor) (Session, error) {
	engine, err := desc.Engine()
	if err != nil {
		return nil, errs.Wrap(errs.InvalidConfig, "open session", err)
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, errs.Wrap(errs.Canceled, "wait for session slot", err)
	}

	capOpts := p.opts.Capabilities
	if capOpts.SessionName != "" {
		capOpts.SessionName = fmt.Sprintf("%s [%s]", capOpts.SessionName, desc.Name)
	}
	wsURL, err := platform.ConnectURL(p.opts.Endpoint, desc.Capabilities(capOpts))
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "encode capabilities", err)
	}
	secrets := []string{p.opts.Capabilities.AccessKey}

	log := obs.From(ctx)
	log.Info("session_connecting", "mode", "remote", "engine", engine, "url", logutil.RedactURL(wsURL))
	start := time.Now()
	browser, err := p.opts.Connect(engine, wsURL)
	if err != nil {
		msg := logutil.Censor(err.Error(), secrets...)
		log.Error("session_provisioning_failed", "duration_ms", time.Since(start).Milliseconds(), "error", msg)
		return nil, errs.New(errs.ProvisioningFailed, fmt.Sprintf("provision %s on BrowserStack: %s", desc.Name, msg))
	}

	bctx, err := browser.NewContext()
	if err != nil {
		_ = browser.Close()
		return nil, errs.New(errs.ProvisioningFailed, fmt.Sprintf("provision %s context: %s", desc.Name, logutil.Censor(err.Error(), secrets...)))
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = browser.Close()
		return nil, errs.New(errs.ProvisioningFailed, fmt.Sprintf("provision %s page: %s", desc.Name, logutil.Censor(err.Error(), secrets...)))
	}

	sess := newBrowserSession(desc, bctx, page, browser, true, float64(p.opts.ElementTimeout.Milliseconds()))
	log.Info("session_opened", "mode", "remote", "engine", engine, "session_id", sess.ID(),
		"duration_ms", time.Since(start).Milliseconds())
	return sess, nil
}

// startDriver makes sure the Playwright driver is present, then starts it.
// CI runners for the grid never install browsers, so the driver is fetched here.
func startDriver(
	install func(...*playwright.RunOptions) error,
	run func(...*playwright.RunOptions) (*playwright.Playwright, error),
) (*playwright.Playwright, error) {
	opts := &playwright.RunOptions{SkipInstallBrowsers: true}
	if err := install(opts); err != nil {
		return nil, fmt.Errorf("install playwright driver: %w", err)
	}
	return run(opts)
}

// Close stops the local Playwright driver. Sessions close their own browsers.
func (p *RemoteProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pw == nil {
		return nil
	}
	err := p.pw.Stop()
	p.pw = nil
	if err != nil {
		return fmt.Errorf("stop playwright: %w", err)
	}
	return nil
}

// connect uses the engine's BrowserType. Mobile Chrome on the grid is driven
// through the Chromium protocol as well.
func (p *RemoteProvider) connect(engine platform.Engine, wsURL string) (playwright.Browser, error) {
	p.mu.Lock()
	if p.pw == nil {
		pw, err := p.opts.Run()
		if err != nil {
			p.mu.Unlock()
			return nil, fmt.Errorf("start playwright: %w", err)
		}
		p.pw = pw
	}
	pw := p.pw
	p.mu.Unlock()

	var bt playwright.BrowserType
	switch engine {
	case platform.Firefox:
		bt = pw.Firefox
	case platform.WebKit:
		bt = pw.WebKit
	default:
		bt = pw.Chromium
	}
	return bt.Connect(wsURL, playwright.BrowserTypeConnectOptions{
		Timeout: playwright.Float(float64(p.opts.ElementTimeout.Milliseconds()) * 3),
	})
}
