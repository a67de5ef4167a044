// Package session provisions browser sessions for one platform each, either on
// a local Playwright install or on the BrowserStack Playwright grid.
//
// A Session is owned by exactly one runner task. Close is idempotent and must
// run on every path; nothing in this package retries.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/favorites-e2e/internal/errs"
	"github.com/kuitang/favorites-e2e/internal/obs"
	"github.com/kuitang/favorites-e2e/internal/pages"
	"github.com/kuitang/favorites-e2e/internal/platform"
)

// Status is the verdict reported to the remote dashboard.
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
)

// Session is one live browser page bound to a platform.
type Session interface {
	pages.Driver
	ID() string
	Platform() platform.Descriptor
	// MarkStatus reports the verdict to the remote dashboard. No-op locally.
	MarkStatus(ctx context.Context, status Status, reason string) error
	// Screenshot saves a full-page PNG to path.
	Screenshot(path string) error
	Close() error
}

// browserSession adapts a Playwright page to Session.
type browserSession struct {
	id      string
	desc    platform.Descriptor
	page    playwright.Page
	bctx    playwright.BrowserContext
	browser playwright.Browser // owned only for remote sessions
	remote  bool
	timeout float64 // milliseconds

	closeOnce sync.Once
	closeErr  error
}

func newBrowserSession(desc platform.Descriptor, bctx playwright.BrowserContext, page playwright.Page, browser playwright.Browser, remote bool, timeoutMS float64) *browserSession {
	page.SetDefaultTimeout(timeoutMS)
	page.SetDefaultNavigationTimeout(timeoutMS)
	return &browserSession{
		id:      uuid.NewString(),
		desc:    desc,
		page:    page,
		bctx:    bctx,
		browser: browser,
		remote:  remote,
		timeout: timeoutMS,
	}
}

func (s *browserSession) ID() string                    { return s.id }
func (s *browserSession) Platform() platform.Descriptor { return s.desc }

func (s *browserSession) Navigate(url string) error {
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(s.timeout),
	})
	return s.mapErr("navigate to "+url, err)
}

func (s *browserSession) Click(selector string) error {
	err := s.page.Locator(selector).First().Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(s.timeout),
	})
	return s.mapErr("click "+selector, err)
}

func (s *browserSession) Type(selector, text string) error {
	err := s.page.Locator(selector).First().PressSequentially(text, playwright.LocatorPressSequentiallyOptions{
		Timeout: playwright.Float(s.timeout),
	})
	return s.mapErr("type into "+selector, err)
}

func (s *browserSession) Press(selector, key string) error {
	err := s.page.Locator(selector).First().Press(key, playwright.LocatorPressOptions{
		Timeout: playwright.Float(s.timeout),
	})
	return s.mapErr("press "+key+" in "+selector, err)
}

func (s *browserSession) WaitVisible(selector string) error {
	err := s.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(s.timeout),
	})
	return s.mapErr("wait for "+selector, err)
}

func (s *browserSession) WaitURL(pattern string) error {
	err := s.page.WaitForURL(pattern, playwright.PageWaitForURLOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(s.timeout),
	})
	return s.mapErr("wait for url "+pattern, err)
}

func (s *browserSession) Texts(selector string) ([]string, error) {
	texts, err := s.page.Locator(selector).AllInnerTexts()
	if err != nil {
		return nil, s.mapErr("read "+selector, err)
	}
	return texts, nil
}

// MarkStatus uses the BrowserStack executor hook, which the grid intercepts
// from page.evaluate calls.
func (s *browserSession) MarkStatus(ctx context.Context, status Status, reason string) error {
	if !s.remote {
		return nil
	}
	payload, err := executorCommand("setSessionStatus", map[string]string{
		"status": string(status),
		"reason": truncateReason(reason),
	})
	if err != nil {
		return err
	}
	if _, err := s.page.Evaluate("_ => {}", payload); err != nil {
		obs.From(ctx).Warn("session_status_failed", "status", status, "error", err)
		return errs.Wrap(errs.Unavailable, "mark session status", err)
	}
	return nil
}

// Annotate adds a step marker to the remote session timeline.
func (s *browserSession) Annotate(ctx context.Context, text string) {
	if !s.remote {
		return
	}
	payload, err := executorCommand("annotate", map[string]string{"data": text, "level": "info"})
	if err != nil {
		return
	}
	if _, err := s.page.Evaluate("_ => {}", payload); err != nil {
		obs.From(ctx).Debug("session_annotate_failed", "error", err)
	}
}

func (s *browserSession) Screenshot(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create screenshot dir: %w", err)
	}
	_, err := s.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("screenshot %s: %w", s.desc.Name, err)
	}
	return nil
}

func (s *browserSession) Close() error {
	s.closeOnce.Do(func() {
		var closeErrs []error
		if err := s.bctx.Close(); err != nil {
			closeErrs = append(closeErrs, fmt.Errorf("close context: %w", err))
		}
		if s.browser != nil {
			if err := s.browser.Close(); err != nil {
				closeErrs = append(closeErrs, fmt.Errorf("close browser: %w", err))
			}
		}
		s.closeErr = errors.Join(closeErrs...)
	})
	return s.closeErr
}

// mapErr codes Playwright failures. Timeouts mean the element or page never
// became ready and count as test failures.
func (s *browserSession) mapErr(action string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return errs.Wrap(errs.ElementNotFound, action, err)
	}
	if errors.Is(err, playwright.ErrTargetClosed) {
		return errs.Wrap(errs.Unavailable, action+": browser closed", err)
	}
	return errs.Wrap(errs.Internal, action, err)
}
