// Command favrun runs the favourites scenario across the browser matrix,
// locally or on BrowserStack, and drives the CI pipeline around it.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kuitang/favorites-e2e/internal/config"
	"github.com/kuitang/favorites-e2e/internal/errs"
	"github.com/kuitang/favorites-e2e/internal/obs"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	var cfgErr *config.ValidationError
	if errors.As(err, &cfgErr) {
		return errs.ExitCode(errs.InvalidConfig)
	}
	return errs.ExitCode(errs.CodeOf(err))
}

type globalOptions struct {
	envFile       string
	platformsFile string
	mode          string
	platforms     []string
	workers       int
	reportDir     string
	headless      bool
	out           io.Writer
}

func (g *globalOptions) loadOptions(cmd *cobra.Command) config.LoadOptions {
	opts := config.LoadOptions{
		EnvFile:       g.envFile,
		PlatformsFile: g.platformsFile,
		Overrides: config.Overrides{
			Mode:      g.mode,
			Platforms: g.platforms,
			Workers:   g.workers,
			ReportDir: g.reportDir,
		},
	}
	if cmd.Flags().Changed("headless") {
		headless := g.headless
		opts.Overrides.Headless = &headless
	}
	return opts
}

// setup loads the configuration and the logger, and returns an app for a new run.
func (g *globalOptions) setup(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(g.loadOptions(cmd))
	if err != nil {
		return nil, err
	}
	if err := obs.Init(obs.Options{Level: cfg.LogLevel, LogFile: cfg.LogFile}); err != nil {
		return nil, errs.Wrap(errs.InvalidConfig, "open log file", err)
	}
	return newApp(cfg, uuid.NewString(), g.out), nil
}

func newRootCmd(out io.Writer) *cobra.Command {
	g := &globalOptions{out: out}
	cmd := &cobra.Command{
		Use:           "favrun",
		Short:         "Cross-browser favourites scenario for bstackdemo",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)

	flags := cmd.PersistentFlags()
	flags.StringVar(&g.envFile, "env-file", ".env", "dotenv file loaded before the environment")
	flags.StringVar(&g.platformsFile, "platforms-file", "", "platform matrix file (default platforms.yml, else built-in)")
	flags.StringVar(&g.mode, "mode", "", "execution mode: local or remote")
	flags.StringArrayVar(&g.platforms, "platform", nil, "run only the named platform (repeatable)")
	flags.IntVar(&g.workers, "workers", 0, "maximum concurrent sessions")
	flags.StringVar(&g.reportDir, "report-dir", "", "directory for reports and screenshots")
	flags.BoolVar(&g.headless, "headless", true, "run local browsers headless")

	cmd.AddCommand(
		newRunCmd(g),
		newPipelineCmd(g),
		newValidateCmd(g),
		newPlatformsCmd(g),
		newVersionCmd(),
	)
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(os.Stdout).ExecuteContext(ctx)
	stop()
	obs.Close()

	code := exitCode(err)
	if err != nil {
		var ee *exitError
		if !errors.As(err, &ee) || ee.err != nil {
			fmt.Fprintf(os.Stderr, "favrun: %v\n", err)
		}
	}
	os.Exit(code)
}
