package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/kuitang/favorites-e2e/internal/errs"
	"github.com/kuitang/favorites-e2e/internal/obs"
)

// Status is a stage outcome.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Builtin is an in-process stage implementation.
type Builtin func(ctx context.Context) error

// CommandRunner runs one argv and returns its combined output.
type CommandRunner interface {
	Run(ctx context.Context, dir string, env []string, argv []string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir string, env []string, argv []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	return cmd.CombinedOutput()
}

// StageResult is the outcome of one stage.
type StageResult struct {
	Name     string        `json:"name"`
	Kind     Kind          `json:"kind"`
	Status   Status        `json:"status"`
	Duration time.Duration `json:"durationNs"`
	Output   string        `json:"output,omitempty"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
}

// Result is the outcome of a pipeline run.
type Result struct {
	Name   string        `json:"name"`
	Stages []StageResult `json:"stages"`
	// FailedStage names the first failed stage, if any.
	FailedStage string `json:"failedStage,omitempty"`
	ExitCode    int    `json:"exitCode"`
}

// Passed reports whether no stage failed.
func (r Result) Passed() bool { return r.FailedStage == "" }

// Stage returns the result for name.
func (r Result) Stage(name string) (StageResult, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageResult{}, false
}

// Executor runs definitions.
type Executor struct {
	Runner   CommandRunner
	Builtins map[string]Builtin
	// Out receives a line per stage and failing command output. Nil discards.
	Out io.Writer
	// OnStage, when set, sees each stage result as soon as it is final, so
	// always stages can describe the stages before them.
	OnStage func(StageResult)
}

// BuiltinNames lists the registered builtins.
func (e *Executor) BuiltinNames() []string {
	names := make([]string, 0, len(e.Builtins))
	for n := range e.Builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Run validates def, then executes its stages in order.
func (e *Executor) Run(ctx context.Context, def Definition) Result {
	res := Result{Name: def.Name}
	if e.Builtins == nil {
		e.Builtins = map[string]Builtin{}
	}
	if err := def.Validate(e.Builtins); err != nil {
		res.FailedStage = "validate"
		res.ExitCode = errs.ExitCode(errs.InvalidConfig)
		e.printf("pipeline %s is invalid: %v\n", def.Name, err)
		return res
	}

	runner := e.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	log := obs.From(ctx)
	halted := false

	for _, stage := range def.Stages {
		sr := StageResult{Name: stage.Name, Kind: stage.Kind}
		if halted && !stage.Always {
			sr.Status = StatusSkipped
			res.Stages = append(res.Stages, sr)
			e.notify(sr)
			e.printf("-- %-14s skipped\n", stage.Name)
			log.Info("stage_skipped", "stage", stage.Name, "failed_stage", res.FailedStage)
			continue
		}

		stageCtx := obs.WithStage(ctx, stage.Name)
		start := time.Now()
		output, err := e.runStage(stageCtx, runner, stage)
		sr.Duration = time.Since(start)
		sr.Output = output

		if err != nil {
			err = classify(ctx, stage, err)
			sr.Status, sr.Err, sr.Error = StatusFailed, err, err.Error()
			if res.FailedStage == "" {
				res.FailedStage = stage.Name
				res.ExitCode = errs.ExitCode(errs.CodeOf(err))
			}
			halted = true
			e.printf("-- %-14s FAILED (%s): %v\n", stage.Name, sr.Duration.Round(time.Millisecond), err)
			if output != "" {
				e.printf("%s\n", strings.TrimRight(output, "\n"))
			}
			obs.From(stageCtx).Error("stage_failed", "kind", stage.Kind, "code", errs.CodeOf(err),
				"error", err, "duration_ms", sr.Duration.Milliseconds())
		} else {
			sr.Status = StatusPassed
			e.printf("-- %-14s ok (%s)\n", stage.Name, sr.Duration.Round(time.Millisecond))
			obs.From(stageCtx).Info("stage_passed", "kind", stage.Kind, "duration_ms", sr.Duration.Milliseconds())
		}
		res.Stages = append(res.Stages, sr)
		e.notify(sr)
	}
	return res
}

func (e *Executor) notify(sr StageResult) {
	if e.OnStage != nil {
		e.OnStage(sr)
	}
}

func (e *Executor) runStage(ctx context.Context, runner CommandRunner, stage Stage) (string, error) {
	if stage.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, stage.Timeout)
		defer cancel()
	}
	if stage.Builtin != "" {
		return "", e.Builtins[stage.Builtin](ctx)
	}

	env := make([]string, 0, len(stage.Env))
	for k, v := range stage.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)

	var out bytes.Buffer
	for _, argv := range stage.Commands {
		output, err := runner.Run(ctx, stage.Dir, env, argv)
		out.Write(output)
		if err != nil {
			return out.String(), fmt.Errorf("%s: %w", strings.Join(argv, " "), err)
		}
		if stage.FailOnOutput && len(bytes.TrimSpace(output)) > 0 {
			return out.String(), fmt.Errorf("%s: unexpected output", strings.Join(argv, " "))
		}
	}
	return out.String(), nil
}

// classify codes uncoded failures by stage kind: setup and gate failures halt
// the pipeline as gate_failed; coded errors keep their code.
func classify(ctx context.Context, stage Stage, err error) error {
	var coded *errs.Error
	if errors.As(err, &coded) {
		return err
	}
	if ctx.Err() != nil {
		return errs.Wrap(errs.Canceled, "stage "+stage.Name, err)
	}
	switch stage.Kind {
	case KindSetup, KindGate:
		return errs.Wrap(errs.GateFailed, "stage "+stage.Name, err)
	default:
		return errs.Wrap(errs.Internal, "stage "+stage.Name, err)
	}
}

func (e *Executor) printf(format string, args ...any) {
	if e.Out == nil {
		return
	}
	fmt.Fprintf(e.Out, format, args...)
}
