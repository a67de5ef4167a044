package obs

import (
	"net/http"
	"time"

	"github.com/kuitang/favorites-e2e/internal/logutil"
)

// LoggingTransport emits one structured event per outbound HTTP request.
// Query strings and credentials are redacted before logging.
type LoggingTransport struct {
	Pkg  string
	Next http.RoundTripper
}

// NewLoggingTransport wraps next (http.DefaultTransport when nil).
func NewLoggingTransport(pkg string, next http.RoundTripper) *LoggingTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &LoggingTransport{Pkg: pkg, Next: next}
}

func (t *LoggingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.Next.RoundTrip(r)
	durMS := float64(time.Since(start).Microseconds()) / 1000.0

	l := From(r.Context()).With("pkg", t.Pkg)
	if err != nil {
		l.Warn(
			"http_client_error",
			"method", r.Method,
			"url", logutil.RedactURL(r.URL.String()),
			"dur_ms", durMS,
			"error", err.Error(),
		)
		return nil, err
	}
	l.Debug(
		"http_client",
		"method", r.Method,
		"url", logutil.RedactURL(r.URL.String()),
		"status", resp.StatusCode,
		"dur_ms", durMS,
		"headers", logutil.FormatHeadersForLog(r.Header),
	)
	return resp, nil
}
