// Package notify sends the run summary to a human.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/resend/resend-go/v3"

	"github.com/kuitang/favorites-e2e/internal/errs"
	"github.com/kuitang/favorites-e2e/internal/obs"
)

// Notifier delivers one message.
type Notifier interface {
	Send(ctx context.Context, subject, html string) error
}

// ResendNotifier sends the summary by email through the Resend API.
type ResendNotifier struct {
	client *resend.Client
	from   string
	to     []string
}

// NewResendNotifier returns a notifier that mails from to each address in to.
// to may be a comma separated list.
func NewResendNotifier(apiKey, from, to string) *ResendNotifier {
	return &ResendNotifier{
		client: resend.NewClient(apiKey),
		from:   from,
		to:     splitAddresses(to),
	}
}

// Send sends html to every recipient in one message.
func (r *ResendNotifier) Send(ctx context.Context, subject, html string) error {
	if len(r.to) == 0 {
		return errs.New(errs.InvalidConfig, "notify: no recipients")
	}
	sent, err := r.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    r.from,
		To:      r.to,
		Subject: subject,
		Html:    html,
	})
	if err != nil {
		return errs.Wrap(errs.Unavailable, "resend: send summary", err)
	}
	obs.From(ctx).Info("summary_sent", "email_id", sent.Id, "recipients", len(r.to))
	return nil
}

func splitAddresses(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if addr := strings.TrimSpace(part); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// Message is a captured notification.
type Message struct {
	Subject string
	HTML    string
}

// MockNotifier captures messages instead of sending them.
type MockNotifier struct {
	mu       sync.Mutex
	Messages []Message
	// Err, when set, is returned by every Send.
	Err error
}

func (m *MockNotifier) Send(ctx context.Context, subject, html string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Messages = append(m.Messages, Message{Subject: subject, HTML: html})
	obs.From(ctx).Info("summary_captured", "subject", subject)
	return nil
}

// Last returns the most recent message, or the zero value.
func (m *MockNotifier) Last() Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Messages) == 0 {
		return Message{}
	}
	return m.Messages[len(m.Messages)-1]
}

// Count returns the number of captured messages.
func (m *MockNotifier) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Messages)
}

// Subject formats the summary subject line.
func Subject(build string, passed bool, failed, total int) string {
	status := "passed"
	if !passed {
		status = fmt.Sprintf("FAILED (%d of %d)", failed, total)
	}
	if build == "" {
		build = "favorites e2e"
	}
	return fmt.Sprintf("[%s] %s", build, status)
}
