// Package sessiontest provides in-memory sessions backed by pagestest.Shop.
package sessiontest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/kuitang/favorites-e2e/internal/errs"
	"github.com/kuitang/favorites-e2e/internal/pages/pagestest"
	"github.com/kuitang/favorites-e2e/internal/platform"
	"github.com/kuitang/favorites-e2e/internal/session"
)

// Session is a fake session driving a simulated shop.
type Session struct {
	*pagestest.Shop

	id   string
	desc platform.Descriptor

	mu          sync.Mutex
	status      session.Status
	reason      string
	screenshots []string
	annotations []string
	closes      int
}

// NewSession wraps shop as a session for desc.
func NewSession(id string, desc platform.Descriptor, shop *pagestest.Shop) *Session {
	return &Session{Shop: shop, id: id, desc: desc}
}

func (s *Session) ID() string                    { return s.id }
func (s *Session) Platform() platform.Descriptor { return s.desc }

func (s *Session) MarkStatus(_ context.Context, status session.Status, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status, s.reason = status, reason
	return nil
}

// Annotate records a timeline marker.
func (s *Session) Annotate(_ context.Context, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.annotations = append(s.annotations, text)
}

// Annotations lists the markers in the order they were added.
func (s *Session) Annotations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.annotations...)
}

// Screenshot writes a placeholder PNG header so reports can link it.
func (s *Session) Screenshot(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte("\x89PNG\r\n\x1a\n"), 0o644); err != nil {
		return err
	}
	s.mu.Lock()
	s.screenshots = append(s.screenshots, path)
	s.mu.Unlock()
	return nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

// Status returns the last reported verdict and reason.
func (s *Session) Status() (session.Status, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.reason
}

// Closes reports how many times Close was called.
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// Screenshots lists the paths written.
func (s *Session) Screenshots() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.screenshots...)
}

// Provider hands out fake sessions, one fresh shop per Open.
type Provider struct {
	// Configure adjusts each new shop before use, keyed by platform name.
	Configure func(desc platform.Descriptor, shop *pagestest.Shop)
	// Fail makes Open return a provisioning error for the named platforms.
	Fail map[string]bool

	mu       sync.Mutex
	sessions map[string]*Session
	opens    atomic.Int64
	active   atomic.Int64
	peak     atomic.Int64
	closed   bool
}

func (p *Provider) Open(ctx context.Context, desc platform.Descriptor) (session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.Canceled, "open session", err)
	}
	n := p.opens.Add(1)
	if p.Fail[desc.Name] {
		return nil, errs.New(errs.ProvisioningFailed, fmt.Sprintf("provision %s: no capacity", desc.Name))
	}
	shop := pagestest.NewShop()
	if p.Configure != nil {
		p.Configure(desc, shop)
	}
	sess := &trackedSession{Session: NewSession(fmt.Sprintf("fake-%d", n), desc, shop), p: p}

	cur := p.active.Add(1)
	for {
		peak := p.peak.Load()
		if cur <= peak || p.peak.CompareAndSwap(peak, cur) {
			break
		}
	}

	p.mu.Lock()
	if p.sessions == nil {
		p.sessions = map[string]*Session{}
	}
	p.sessions[desc.Name] = sess.Session
	p.mu.Unlock()
	return sess, nil
}

func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Session returns the last session opened for a platform.
func (p *Provider) Session(name string) *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessions[name]
}

// Opens counts Open calls.
func (p *Provider) Opens() int { return int(p.opens.Load()) }

// Active counts sessions opened and not yet closed.
func (p *Provider) Active() int { return int(p.active.Load()) }

// PeakActive is the highest number of simultaneously open sessions.
func (p *Provider) PeakActive() int { return int(p.peak.Load()) }

type trackedSession struct {
	*Session
	p    *Provider
	once sync.Once
}

func (t *trackedSession) Close() error {
	t.once.Do(func() { t.p.active.Add(-1) })
	return t.Session.Close()
}
