package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kuitang/favorites-e2e/internal/config"
	"github.com/kuitang/favorites-e2e/internal/errs"
	"github.com/kuitang/favorites-e2e/internal/pipeline"
	"github.com/kuitang/favorites-e2e/internal/report"
)

func newRunCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the favourites scenario on every selected platform",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.setup(cmd)
			if err != nil {
				return err
			}
			a.cfg.PrintSummary()

			run, err := a.runMatrix(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(g.out, report.Markdown(run.Censor(a.cfg.Secrets()...)))
			if code := run.ExitCode(); code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}
}

func newPipelineCmd(g *globalOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Run the staged CI pipeline: setup, gates, e2e, publish, summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			def := pipeline.Default()
			if file != "" {
				loaded, err := pipeline.Load(file)
				if err != nil {
					return errs.Wrap(errs.InvalidConfig, "pipeline definition", err)
				}
				def = loaded
			}

			a, err := g.setup(cmd)
			if err != nil {
				return err
			}
			res, err := a.runPipeline(cmd.Context(), def, nil)
			if err != nil {
				return err
			}
			if !res.Passed() {
				return &exitError{code: res.ExitCode, err: fmt.Errorf("pipeline %s failed at stage %s", res.Name, res.FailedStage)}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "pipeline definition (default: built-in)")
	return cmd
}

func newValidateCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check configuration, credentials and platform support without starting sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.setup(cmd)
			if err != nil {
				return err
			}
			if err := a.preflight(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(g.out, "configuration ok: %s mode, %d platform(s)\n", a.cfg.Mode, len(a.cfg.Platforms))
			return nil
		},
	}
}

func newPlatformsCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "platforms",
		Short: "Print the resolved platform matrix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(g.loadOptions(cmd))
			if err != nil {
				return err
			}
			for _, d := range cfg.Platforms {
				engine, _ := d.Engine()
				fmt.Fprintf(g.out, "%-32s %-9s %s\n", d.Name, engine, strings.TrimPrefix(d.String(), d.Name+" "))
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the favrun version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "favrun", version)
		},
	}
}
