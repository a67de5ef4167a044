// Package runner executes the scenario once per platform descriptor with a
// bounded worker pool.
//
// Tasks share nothing mutable: each provisions its own session, runs the
// scenario, tears the session down, and sends exactly one record on its own
// channel. Records are merged after every task has finished, in declared
// platform order. One platform's failure never cancels its siblings.
package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kuitang/favorites-e2e/internal/errs"
	"github.com/kuitang/favorites-e2e/internal/obs"
	"github.com/kuitang/favorites-e2e/internal/platform"
	"github.com/kuitang/favorites-e2e/internal/report"
	"github.com/kuitang/favorites-e2e/internal/session"
)

// Provider provisions one session per platform descriptor.
type Provider interface {
	Open(ctx context.Context, desc platform.Descriptor) (session.Session, error)
}

// Scenario is the workflow run inside each session.
type Scenario interface {
	Run(ctx context.Context, sess session.Session) error
}

// Options configure a Runner.
type Options struct {
	RunID     string
	Mode      string
	Build     string
	Platforms []platform.Descriptor
	Workers   int
	// ReportDir receives failure screenshots under screenshots/.
	ReportDir string
	Now       func() time.Time
}

// Runner fans the scenario out over the platform matrix.
type Runner struct {
	opts     Options
	provider Provider
	scenario Scenario
}

// New returns a runner. Workers below one are treated as one.
func New(opts Options, provider Provider, scenario Scenario) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{opts: opts, provider: provider, scenario: scenario}
}

// Run executes every platform and returns one record per platform.
func (r *Runner) Run(ctx context.Context) report.Run {
	ctx = obs.WithRun(ctx, r.opts.RunID)
	log := obs.From(ctx)
	run := report.Run{
		ID:      r.opts.RunID,
		Mode:    r.opts.Mode,
		Build:   r.opts.Build,
		Started: r.opts.Now(),
	}
	log.Info("run_started", "platforms", len(r.opts.Platforms), "workers", r.opts.Workers, "mode", r.opts.Mode)

	results := make([]chan report.Record, len(r.opts.Platforms))
	for i := range results {
		results[i] = make(chan report.Record, 1)
	}

	var g errgroup.Group
	g.SetLimit(r.opts.Workers)
	for i, desc := range r.opts.Platforms {
		out := results[i]
		g.Go(func() error {
			out <- r.runOne(ctx, desc)
			return nil
		})
	}
	_ = g.Wait()

	for _, ch := range results {
		run.Records = append(run.Records, <-ch)
	}
	run.Finished = r.opts.Now()

	passed, failed, errored := run.Counts()
	log.Info("run_finished", "passed", passed, "failed", failed, "errors", errored,
		"duration_ms", run.Duration().Milliseconds())
	return run
}

func (r *Runner) runOne(ctx context.Context, desc platform.Descriptor) (rec report.Record) {
	ctx = obs.WithPlatform(ctx, desc.Name)
	log := obs.From(ctx)
	rec = report.Record{Platform: desc, Started: r.opts.Now()}
	defer func() {
		rec.Duration = r.opts.Now().Sub(rec.Started)
		if p := recover(); p != nil {
			rec.Outcome, rec.Code = errs.OutcomeError, errs.Internal
			rec.Message = fmt.Sprintf("panic: %v", p)
			log.Error("task_panicked", "panic", p)
		}
	}()

	if err := ctx.Err(); err != nil {
		return failed(rec, errs.Wrap(errs.Canceled, "run canceled before start", err))
	}

	sess, err := r.provider.Open(ctx, desc)
	if err != nil {
		if errs.CodeOf(err) == errs.Internal {
			err = errs.Wrap(errs.ProvisioningFailed, "open session", err)
		}
		log.Error("session_provisioning_failed", "error", err)
		rec.Logs = append(rec.Logs, "provisioning failed: "+err.Error())
		return failed(rec, err)
	}
	rec.SessionID = sess.ID()
	ctx = obs.WithSession(ctx, sess.ID())
	defer func() {
		if err := sess.Close(); err != nil {
			obs.From(ctx).Warn("session_close_failed", "error", err)
			rec.Logs = append(rec.Logs, "close failed: "+err.Error())
		}
	}()

	err = r.scenario.Run(ctx, sess)
	if err == nil {
		rec.Outcome = errs.OutcomePass
		return rec
	}

	if r.opts.ReportDir != "" {
		rel := filepath.Join("screenshots", fileSafe(desc.Name)+".png")
		if shotErr := sess.Screenshot(filepath.Join(r.opts.ReportDir, rel)); shotErr != nil {
			obs.From(ctx).Warn("screenshot_failed", "error", shotErr)
			rec.Logs = append(rec.Logs, "screenshot failed: "+shotErr.Error())
		} else {
			rec.Screenshot = filepath.ToSlash(rel)
		}
	}
	return failed(rec, err)
}

func failed(rec report.Record, err error) report.Record {
	rec.Outcome = errs.OutcomeOf(err)
	rec.Code = errs.CodeOf(err)
	rec.Message = err.Error()
	return rec
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func fileSafe(name string) string {
	return unsafeChars.ReplaceAllString(name, "_")
}
