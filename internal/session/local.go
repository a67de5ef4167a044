package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/favorites-e2e/internal/errs"
	"github.com/kuitang/favorites-e2e/internal/obs"
	"github.com/kuitang/favorites-e2e/internal/platform"
)

// DefaultMobileDevice is emulated when a mobile descriptor names a device
// Playwright has no profile for.
const DefaultMobileDevice = "Galaxy S9+"

// LocalOptions configure a LocalProvider.
type LocalOptions struct {
	Headless       bool
	ElementTimeout time.Duration
	// Run starts Playwright; defaults to playwright.Run.
	Run func() (*playwright.Playwright, error)
}

// LocalProvider launches browsers on this machine. Playwright is started once,
// on first use, and each engine is launched at most once and shared; every
// session gets its own browser context.
type LocalProvider struct {
	opts LocalOptions

	mu       sync.Mutex
	pw       *playwright.Playwright
	browsers map[platform.Engine]playwright.Browser
}

// NewLocalProvider returns a provider for local execution.
func NewLocalProvider(opts LocalOptions) *LocalProvider {
	if opts.Run == nil {
		opts.Run = func() (*playwright.Playwright, error) { return playwright.Run() }
	}
	return &LocalProvider{opts: opts, browsers: map[platform.Engine]playwright.Browser{}}
}

// Open launches (or reuses) the descriptor's engine and opens a fresh page.
func (p *LocalProvider) Open(ctx context.Context, desc platform.Descriptor) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.Canceled, "open session", err)
	}
	engine, err := desc.Engine()
	if err != nil {
		return nil, errs.Wrap(errs.InvalidConfig, "open session", err)
	}
	browser, err := p.browser(ctx, engine)
	if err != nil {
		return nil, err
	}

	contextOpts := playwright.BrowserNewContextOptions{}
	if device := p.device(desc); device != nil {
		contextOpts.UserAgent = playwright.String(device.UserAgent)
		contextOpts.Viewport = device.Viewport
		contextOpts.Screen = device.Screen
		contextOpts.DeviceScaleFactor = playwright.Float(device.DeviceScaleFactor)
		contextOpts.IsMobile = playwright.Bool(device.IsMobile && engine != platform.Firefox)
		contextOpts.HasTouch = playwright.Bool(device.HasTouch)
	} else if w, h, ok := desc.ViewportSize(); ok {
		contextOpts.Viewport = &playwright.Size{Width: w, Height: h}
	}

	bctx, err := browser.NewContext(contextOpts)
	if err != nil {
		return nil, errs.Wrap(errs.ProvisioningFailed, fmt.Sprintf("new %s context", engine), err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, errs.Wrap(errs.ProvisioningFailed, fmt.Sprintf("new %s page", engine), err)
	}

	sess := newBrowserSession(desc, bctx, page, nil, false, float64(p.opts.ElementTimeout.Milliseconds()))
	obs.From(ctx).Info("session_opened", "mode", "local", "engine", engine, "session_id", sess.ID())
	return sess, nil
}

// Close shuts down every launched browser and stops Playwright.
func (p *LocalProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for engine, b := range p.browsers {
		if err := b.Close(); err != nil {
			obs.Pkg("session").Warn("browser_close_failed", "engine", engine, "error", err)
		}
		delete(p.browsers, engine)
	}
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

func (p *LocalProvider) browser(ctx context.Context, engine platform.Engine) (playwright.Browser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if b, ok := p.browsers[engine]; ok && b.IsConnected() {
		return b, nil
	}
	if p.pw == nil {
		pw, err := p.opts.Run()
		if err != nil {
			return nil, errs.Wrap(errs.ProvisioningFailed, "start playwright", err)
		}
		p.pw = pw
	}

	var bt playwright.BrowserType
	switch engine {
	case platform.Firefox:
		bt = p.pw.Firefox
	case platform.WebKit:
		bt = p.pw.WebKit
	default:
		bt = p.pw.Chromium
	}
	b, err := bt.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(p.opts.Headless),
	})
	if err != nil {
		return nil, errs.Wrap(errs.ProvisioningFailed, fmt.Sprintf("launch %s", engine), err)
	}
	obs.From(ctx).Debug("browser_launched", "engine", engine, "version", b.Version())
	p.browsers[engine] = b
	return b, nil
}

// device returns the emulation profile for a mobile descriptor, or nil.
func (p *LocalProvider) device(desc platform.Descriptor) *playwright.DeviceDescriptor {
	if !desc.IsMobile() {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if d, ok := p.pw.Devices[desc.DeviceName]; ok {
		return d
	}
	return p.pw.Devices[DefaultMobileDevice]
}
