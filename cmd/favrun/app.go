package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kuitang/favorites-e2e/internal/artifacts"
	"github.com/kuitang/favorites-e2e/internal/bstack"
	"github.com/kuitang/favorites-e2e/internal/config"
	"github.com/kuitang/favorites-e2e/internal/errs"
	"github.com/kuitang/favorites-e2e/internal/logutil"
	"github.com/kuitang/favorites-e2e/internal/notify"
	"github.com/kuitang/favorites-e2e/internal/obs"
	"github.com/kuitang/favorites-e2e/internal/pipeline"
	"github.com/kuitang/favorites-e2e/internal/platform"
	"github.com/kuitang/favorites-e2e/internal/report"
	"github.com/kuitang/favorites-e2e/internal/runner"
	"github.com/kuitang/favorites-e2e/internal/s3client"
	"github.com/kuitang/favorites-e2e/internal/scenario"
	"github.com/kuitang/favorites-e2e/internal/session"
)

// provider is a runner.Provider that owns browser resources.
type provider interface {
	runner.Provider
	Close() error
}

// app holds one process's configuration and the state shared between
// pipeline builtins: the scenario stage leaves its run for summary, publish
// leaves its URLs.
type app struct {
	cfg   *config.Config
	runID string
	out   io.Writer

	newProvider func() provider
	newStore    func(ctx context.Context) (artifacts.Uploader, error)
	notifier    notify.Notifier

	lastRun   *report.Run
	published []artifacts.Published
	stages    []pipeline.StageResult
}

func newApp(cfg *config.Config, runID string, out io.Writer) *app {
	a := &app{cfg: cfg, runID: runID, out: out}
	a.newProvider = a.sessionProvider
	a.newStore = a.s3Store
	if cfg.NotifyEnabled() {
		a.notifier = notify.NewResendNotifier(cfg.ResendAPIKey, cfg.NotifyFrom, cfg.NotifyEmail)
	}
	return a
}

func (a *app) sessionProvider() provider {
	if a.cfg.Remote() {
		s := a.cfg.PlatformSettings
		return session.NewRemoteProvider(session.RemoteOptions{
			Endpoint: a.cfg.BrowserStackEndpoint,
			Capabilities: platform.CapabilityOptions{
				Build:       s.BuildName,
				Project:     s.ProjectName,
				SessionName: s.SessionName,
				Username:    a.cfg.BrowserStackUsername,
				AccessKey:   a.cfg.BrowserStackAccessKey,
				Debug:       s.Debug,
				NetworkLogs: s.NetworkLogs,
				ConsoleLogs: s.ConsoleLogs,
			},
			ElementTimeout: a.cfg.ElementTimeout,
			StartInterval:  a.cfg.SessionStartInterval,
		})
	}
	return session.NewLocalProvider(session.LocalOptions{
		Headless:       a.cfg.Headless,
		ElementTimeout: a.cfg.ElementTimeout,
	})
}

func (a *app) s3Store(ctx context.Context) (artifacts.Uploader, error) {
	return s3client.New(ctx, s3client.Config{
		Endpoint:        a.cfg.AWSEndpointS3,
		Region:          a.cfg.AWSRegion,
		AccessKeyID:     a.cfg.AWSAccessKeyID,
		SecretAccessKey: a.cfg.AWSSecretAccessKey,
		BucketName:      a.cfg.ArtifactsBucket,
		PublicURL:       a.cfg.ArtifactsPublicURL,
		UsePathStyle:    a.cfg.AWSEndpointS3 != "",
	})
}

func (a *app) target() scenario.Target {
	return scenario.Target{
		BaseURL:     a.cfg.BaseURL,
		Username:    a.cfg.TestUsername,
		Password:    a.cfg.TestPassword,
		Brand:       a.cfg.TargetBrand,
		ProductName: a.cfg.TargetProductName,
		ProductID:   a.cfg.TargetProductID,
	}
}

// runMatrix runs the scenario on every configured platform and writes the
// reports. The returned run is uncensored; files on disk are censored.
func (a *app) runMatrix(ctx context.Context) (report.Run, error) {
	if err := a.resetReports(); err != nil {
		return report.Run{}, errs.Wrap(errs.Internal, "clear previous reports", err)
	}
	p := a.newProvider()
	defer func() {
		if err := p.Close(); err != nil {
			obs.From(ctx).Warn("provider_close_failed", "error", err)
		}
	}()

	r := runner.New(runner.Options{
		RunID:     a.runID,
		Mode:      string(a.cfg.Mode),
		Build:     a.cfg.PlatformSettings.BuildName,
		Platforms: a.cfg.Platforms,
		Workers:   a.cfg.Workers,
		ReportDir: a.cfg.ReportDir,
	}, p, scenario.Favorite{Target: a.target()})

	run := r.Run(ctx)
	a.lastRun = &run

	paths, err := report.WriteAll(a.cfg.ReportDir, run, a.cfg.Secrets()...)
	if err != nil {
		return run, errs.Wrap(errs.Internal, "write reports", err)
	}
	obs.From(ctx).Info("reports_written", "files", len(paths), "dir", a.cfg.ReportDir)
	return run, nil
}

// resetReports removes what an earlier run left in the report dir so that
// publish and summary only see this run's files.
func (a *app) resetReports() error {
	var failures []error
	for _, name := range []string{report.JUnitFile, report.JSONFile, report.MarkdownFile, report.HTMLFile} {
		err := os.Remove(filepath.Join(a.cfg.ReportDir, name))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			failures = append(failures, err)
		}
	}
	if err := os.RemoveAll(filepath.Join(a.cfg.ReportDir, "screenshots")); err != nil {
		failures = append(failures, err)
	}
	return errors.Join(failures...)
}

// runPipeline executes def with this app's builtins, starting from an empty
// report dir.
func (a *app) runPipeline(ctx context.Context, def pipeline.Definition, cmdRunner pipeline.CommandRunner) (pipeline.Result, error) {
	if err := a.resetReports(); err != nil {
		return pipeline.Result{}, errs.Wrap(errs.Internal, "clear previous reports", err)
	}
	a.lastRun, a.published, a.stages = nil, nil, nil
	ex := &pipeline.Executor{
		Runner:   cmdRunner,
		Builtins: a.builtins(),
		Out:      a.out,
		OnStage:  a.recordStage,
	}
	return ex.Run(ctx, def), nil
}

func (a *app) recordStage(sr pipeline.StageResult) {
	a.stages = append(a.stages, sr)
}

func (a *app) builtins() map[string]pipeline.Builtin {
	return map[string]pipeline.Builtin{
		"preflight": a.preflight,
		"scenario":  a.scenario,
		"publish":   a.publish,
		"summary":   a.summary,
	}
}

// preflight checks everything that would make the whole matrix fail before
// any session starts.
func (a *app) preflight(ctx context.Context) error {
	if err := os.MkdirAll(a.cfg.ReportDir, 0o755); err != nil {
		return errs.Wrap(errs.GateFailed, "report dir is not writable", err)
	}
	for _, d := range a.cfg.Platforms {
		if _, err := d.Engine(); err != nil {
			return errs.Wrap(errs.GateFailed, "platform "+d.Name, err)
		}
	}
	if !a.cfg.Remote() {
		return nil
	}
	return a.checkBrowserStack(ctx)
}

func (a *app) checkBrowserStack(ctx context.Context) error {
	log := obs.From(ctx)
	client := bstack.New(a.cfg.BrowserStackAPIURL, a.cfg.BrowserStackUsername, a.cfg.BrowserStackAccessKey)

	plan, err := client.Plan(ctx)
	if err != nil {
		return err
	}
	log.Info("browserstack_plan", "plan", plan.Name, "available", plan.Available(), "max", plan.ParallelMaxAllowed)
	if plan.Available() < a.cfg.Workers {
		log.Warn("browserstack_capacity_low", "available", plan.Available(), "workers", a.cfg.Workers)
	}

	for _, d := range a.cfg.Platforms {
		if d.IsMobile() {
			log.Warn("remote_mobile_unverified", "platform", d.Name,
				"reason", "real Android devices are reached through the Chromium protocol, not the grid's Android endpoint")
		}
	}

	missing, err := client.Unsupported(ctx, a.cfg.Platforms)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		names := make([]string, len(missing))
		for i, d := range missing {
			names[i] = d.String()
		}
		return errs.New(errs.GateFailed, "browserstack does not offer: "+strings.Join(names, "; "))
	}
	return nil
}

func (a *app) scenario(ctx context.Context) error {
	run, err := a.runMatrix(ctx)
	if err != nil {
		return err
	}
	if run.Passed() {
		return nil
	}
	passed, failed, errored := run.Counts()
	msg := fmt.Sprintf("%d of %d platforms did not pass (%d failed, %d errored)",
		failed+errored, passed+failed+errored, failed, errored)
	if errored > 0 && failed == 0 {
		return errs.New(errs.ProvisioningFailed, msg)
	}
	return errs.New(errs.AssertionFailed, msg)
}

// publish uploads whatever the report dir holds. A pipeline that stopped
// before the e2e stage publishes only its halt summary.
func (a *app) publish(ctx context.Context) error {
	log := obs.From(ctx)
	if err := a.writeHaltReport(); err != nil {
		return errs.Wrap(errs.Internal, "write halt summary", err)
	}
	if !a.cfg.ArtifactsEnabled() {
		log.Info("artifacts_skipped", "reason", "ARTIFACTS_BUCKET not set")
		return nil
	}
	items, err := artifacts.Collector{Dir: a.cfg.ReportDir}.Collect()
	if err != nil {
		return errs.Wrap(errs.Internal, "collect artifacts", err)
	}
	if len(items) == 0 {
		log.Info("artifacts_skipped", "reason", "report dir is empty")
		return nil
	}
	store, err := a.newStore(ctx)
	if err != nil {
		return errs.Wrap(errs.Unavailable, "artifact store", err)
	}
	published, err := artifacts.Publisher{Store: store, Prefix: a.cfg.ArtifactsPrefix}.Publish(ctx, a.runID, items)
	a.published = published
	if err != nil {
		return errs.Wrap(errs.Unavailable, fmt.Sprintf("published %d of %d artifacts", len(published), len(items)), err)
	}
	return nil
}

// summary prints the Markdown summary and, when configured, sends it.
func (a *app) summary(ctx context.Context) error {
	if a.lastRun == nil {
		if err := a.writeHaltReport(); err != nil {
			obs.From(ctx).Warn("halt_summary_not_written", "error", err)
		}
		md := a.haltMarkdown() + publishedMarkdown(a.published)
		fmt.Fprintln(a.out, md)
		return a.send(ctx, a.haltSubject(), string(report.RenderHTML(md)))
	}
	run := a.lastRun.Censor(a.cfg.Secrets()...)
	md := report.Markdown(run) + publishedMarkdown(a.published)
	fmt.Fprintln(a.out, md)

	passed, failed, errored := run.Counts()
	subject := notify.Subject(run.Build, run.Passed(), failed+errored, passed+failed+errored)
	return a.send(ctx, subject, string(report.RenderHTML(md)))
}

// failedStage returns the first recorded failure.
func (a *app) failedStage() (pipeline.StageResult, bool) {
	for _, s := range a.stages {
		if s.Status == pipeline.StatusFailed {
			return s, true
		}
	}
	return pipeline.StageResult{}, false
}

func (a *app) haltSubject() string {
	build := a.cfg.PlatformSettings.BuildName
	if build == "" {
		build = "favorites e2e"
	}
	if s, ok := a.failedStage(); ok {
		return fmt.Sprintf("[%s] FAILED at stage %s", build, s.Name)
	}
	return fmt.Sprintf("[%s] FAILED before e2e", build)
}

// haltMarkdown describes a pipeline that produced no scenario results.
func (a *app) haltMarkdown() string {
	var b strings.Builder
	b.WriteString("# Favorites E2E: FAILED\n\n")
	b.WriteString("No scenario results: the pipeline stopped before the e2e stage.\n\n")
	fmt.Fprintf(&b, "- Run: `%s`\n", a.runID)
	fmt.Fprintf(&b, "- Mode: %s\n", a.cfg.Mode)
	if s, ok := a.failedStage(); ok {
		fmt.Fprintf(&b, "- Stopped at stage `%s`: %s\n", s.Name, oneLine(s.Error))
	}
	if len(a.stages) > 0 {
		b.WriteString("\n| Stage | Status | Duration |\n|---|---|---|\n")
		for _, s := range a.stages {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", s.Name, s.Status, s.Duration.Round(time.Millisecond))
		}
	}
	return logutil.Censor(b.String(), a.cfg.Secrets()...)
}

// writeHaltReport puts the halt summary where the scenario report would be.
// It does nothing once the scenario stage has run.
func (a *app) writeHaltReport() error {
	if a.lastRun != nil {
		return nil
	}
	if err := os.MkdirAll(a.cfg.ReportDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(a.cfg.ReportDir, report.MarkdownFile), []byte(a.haltMarkdown()), 0o644)
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "\\|")
}

func (a *app) send(ctx context.Context, subject, html string) error {
	if a.notifier == nil {
		return nil
	}
	if err := a.notifier.Send(ctx, subject, html); err != nil {
		var coded *errs.Error
		if errors.As(err, &coded) {
			return err
		}
		return errs.Wrap(errs.Unavailable, "send summary", err)
	}
	return nil
}

func publishedMarkdown(items []artifacts.Published) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n## Artifacts\n\n")
	for _, p := range items {
		fmt.Fprintf(&b, "- [%s](%s)\n", p.Rel, p.URL)
	}
	return b.String()
}
