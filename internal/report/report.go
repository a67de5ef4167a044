// Package report turns a run's per-platform records into JUnit XML, JSON,
// a Markdown summary and a standalone HTML page.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/kuitang/favorites-e2e/internal/errs"
	"github.com/kuitang/favorites-e2e/internal/logutil"
	"github.com/kuitang/favorites-e2e/internal/platform"
)

// Report file names inside the report directory.
const (
	JUnitFile    = "junit.xml"
	JSONFile     = "results.json"
	MarkdownFile = "summary.md"
	HTMLFile     = "report.html"
)

// Record is the result of the scenario on one platform.
type Record struct {
	Platform   platform.Descriptor `json:"platform"`
	SessionID  string              `json:"sessionId,omitempty"`
	Outcome    errs.Outcome        `json:"outcome"`
	Code       errs.Code           `json:"code,omitempty"`
	Message    string              `json:"message,omitempty"`
	Started    time.Time           `json:"started"`
	Duration   time.Duration       `json:"durationNs"`
	Screenshot string              `json:"screenshot,omitempty"` // relative to the report dir
	Logs       []string            `json:"logs,omitempty"`
}

// Run is every record of one invocation, in declared platform order.
type Run struct {
	ID       string    `json:"runId"`
	Mode     string    `json:"mode"`
	Build    string    `json:"build,omitempty"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Records  []Record  `json:"records"`
}

// Counts tallies outcomes.
func (r Run) Counts() (passed, failed, errored int) {
	for _, rec := range r.Records {
		switch rec.Outcome {
		case errs.OutcomePass:
			passed++
		case errs.OutcomeFail:
			failed++
		default:
			errored++
		}
	}
	return passed, failed, errored
}

// Passed reports whether every record passed. A run with no records did not pass.
func (r Run) Passed() bool {
	passed, _, _ := r.Counts()
	return len(r.Records) > 0 && passed == len(r.Records)
}

// Duration is the wall time of the run.
func (r Run) Duration() time.Duration {
	if r.Finished.Before(r.Started) {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// ExitCode is 0 only when every platform passed.
func (r Run) ExitCode() int {
	if r.Passed() {
		return 0
	}
	return 1
}

// Censor returns a copy of the run with every secret replaced in free text.
func (r Run) Censor(secrets ...string) Run {
	out := r
	out.Records = make([]Record, len(r.Records))
	for i, rec := range r.Records {
		rec.Message = logutil.Censor(rec.Message, secrets...)
		if rec.Logs != nil {
			logs := make([]string, len(rec.Logs))
			for j, line := range rec.Logs {
				logs[j] = logutil.Censor(line, secrets...)
			}
			rec.Logs = logs
		}
		out.Records[i] = rec
	}
	return out
}

// WriteJSON writes the run as indented JSON.
func WriteJSON(w io.Writer, run Run) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(run); err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return nil
}

// WriteAll writes every report format into dir, censoring secrets first.
// It returns the paths written.
func WriteAll(dir string, run Run, secrets ...string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	run = run.Censor(secrets...)

	writers := []struct {
		name  string
		write func(io.Writer) error
	}{
		{JUnitFile, func(w io.Writer) error { return WriteJUnit(w, run) }},
		{JSONFile, func(w io.Writer) error { return WriteJSON(w, run) }},
		{MarkdownFile, func(w io.Writer) error {
			_, err := io.WriteString(w, Markdown(run))
			return err
		}},
		{HTMLFile, func(w io.Writer) error { return WriteHTML(w, run) }},
	}

	var paths []string
	for _, wr := range writers {
		path := filepath.Join(dir, wr.name)
		if err := writeFile(path, wr.write); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
