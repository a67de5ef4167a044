package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/favorites-e2e/internal/errs"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   [][]string
	outputs map[string]string
	fail    map[string]bool
}

func (f *fakeRunner) Run(_ context.Context, _ string, _ []string, argv []string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, argv)
	key := strings.Join(argv, " ")
	if f.fail[key] {
		return []byte(key + ": exit status 1\n"), errors.New("exit status 1")
	}
	return []byte(f.outputs[key]), nil
}

type recorder struct {
	mu  sync.Mutex
	ran []string
}

func (r *recorder) builtin(name string, err error) Builtin {
	return func(context.Context) error {
		r.mu.Lock()
		r.ran = append(r.ran, name)
		r.mu.Unlock()
		return err
	}
}

func builtins(r *recorder, scenarioErr error) map[string]Builtin {
	return map[string]Builtin{
		"preflight": r.builtin("preflight", nil),
		"scenario":  r.builtin("scenario", scenarioErr),
		"publish":   r.builtin("publish", nil),
		"summary":   r.builtin("summary", nil),
	}
}

func statuses(res Result) map[string]Status {
	out := map[string]Status{}
	for _, s := range res.Stages {
		out[s.Name] = s.Status
	}
	return out
}

func TestExecutor_AllPass(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	runner := &fakeRunner{}
	var out bytes.Buffer
	ex := &Executor{Runner: runner, Builtins: builtins(rec, nil), Out: &out}

	res := ex.Run(context.Background(), Default())
	require.True(t, res.Passed())
	require.Zero(t, res.ExitCode)
	require.Len(t, res.Stages, len(Default().Stages))
	require.Equal(t, []string{"preflight", "scenario", "publish", "summary"}, rec.ran)
	require.Equal(t, [][]string{
		{"go", "mod", "download"},
		{"gofmt", "-l", "."},
		{"go", "vet", "./..."},
		{"go", "build", "./..."},
	}, runner.calls)
	require.Contains(t, out.String(), "e2e")
}

func TestExecutor_FormatGateHaltsBeforeTests(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	runner := &fakeRunner{outputs: map[string]string{"gofmt -l .": "internal/pages/login.go\n"}}
	ex := &Executor{Runner: runner, Builtins: builtins(rec, nil)}

	res := ex.Run(context.Background(), Default())
	require.False(t, res.Passed())
	require.Equal(t, "format", res.FailedStage)
	require.Equal(t, 3, res.ExitCode)

	st := statuses(res)
	require.Equal(t, StatusFailed, st["format"])
	require.Equal(t, StatusSkipped, st["lint"])
	require.Equal(t, StatusSkipped, st["e2e"])
	require.Equal(t, StatusPassed, st["publish"])
	require.Equal(t, StatusPassed, st["summary"])
	require.Equal(t, []string{"publish", "summary"}, rec.ran, "tests never run after a gate failure")

	format, _ := res.Stage("format")
	require.Contains(t, format.Output, "login.go")
	require.Equal(t, errs.GateFailed, errs.CodeOf(format.Err))
}

func TestExecutor_TestFailureStillPublishes(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	ex := &Executor{Runner: &fakeRunner{}, Builtins: builtins(rec, errs.New(errs.AssertionFailed, "1 of 3 platforms failed"))}

	res := ex.Run(context.Background(), Default())
	require.Equal(t, "e2e", res.FailedStage)
	require.Equal(t, 1, res.ExitCode)
	require.Equal(t, []string{"preflight", "scenario", "publish", "summary"}, rec.ran)
}

func TestExecutor_OnStageSeesEarlierStagesFirst(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{outputs: map[string]string{"gofmt -l .": "main.go\n"}}
	var seen []StageResult
	var atSummary []string
	bs := builtins(&recorder{}, nil)
	bs["summary"] = func(context.Context) error {
		for _, s := range seen {
			atSummary = append(atSummary, s.Name+"="+string(s.Status))
		}
		return nil
	}
	ex := &Executor{Runner: runner, Builtins: bs, OnStage: func(sr StageResult) { seen = append(seen, sr) }}

	res := ex.Run(context.Background(), Default())
	require.Equal(t, res.Stages, seen)
	require.Equal(t, []string{
		"dependencies=passed", "format=failed", "lint=skipped", "typecheck=skipped",
		"preflight=skipped", "e2e=skipped", "publish=passed",
	}, atSummary)
}

func TestExecutor_InvalidDefinitionRunsNothing(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	runner := &fakeRunner{}
	def := Definition{Name: "bad", Stages: []Stage{
		{Name: "e2e", Kind: KindTest, Builtin: "scenario"},
		{Name: "lint", Kind: KindGate, Commands: [][]string{{"go", "vet", "./..."}}},
	}}

	res := (&Executor{Runner: runner, Builtins: builtins(rec, nil)}).Run(context.Background(), def)
	require.Equal(t, 2, res.ExitCode)
	require.Empty(t, runner.calls)
	require.Empty(t, rec.ran)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	known := builtins(&recorder{}, nil)
	require.NoError(t, Default().Validate(known))

	def := Definition{Stages: []Stage{
		{Name: "a", Kind: KindSetup},
		{Name: "a", Kind: "deploy", Commands: [][]string{{}}},
		{Name: "t", Kind: KindTest, Builtin: "nope"},
		{Name: "late", Kind: KindGate, Builtin: "preflight"},
	}}
	err := def.Validate(known)
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"exactly one of commands or builtin",
		"duplicate name",
		`unknown kind "deploy"`,
		"command 1 is empty",
		`unknown builtin "nope"`,
		"gate stage must run before test stage t",
	} {
		require.Contains(t, msg, want)
	}

	require.Error(t, Definition{}.Validate(nil))
}

func TestLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "pipeline.yml")
	require.NoError(t, os.WriteFile(path, []byte(`name: ci
stages:
  - name: format
    kind: gate
    commands: [[gofmt, -l, .]]
    failOnOutput: true
  - name: e2e
    kind: test
    builtin: scenario
    timeout: 10m
  - name: publish
    kind: publish
    builtin: publish
    always: true
`), 0o644))

	def, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "ci", def.Name)
	require.Len(t, def.Stages, 3)
	require.True(t, def.Stages[0].FailOnOutput)
	require.Equal(t, "10m0s", def.Stages[1].Timeout.String())
	require.True(t, def.Stages[2].Always)

	_, err = Parse([]byte("name: x\nstages:\n  - name: a\n    kind: gate\n    run: make\n"))
	require.Error(t, err, "unknown keys are rejected")
	_, err = Parse(nil)
	require.Error(t, err)
}

// Stages after the first failure run only when marked always.
func testExecutor_HaltSemantics(t *rapid.T) {
	def := Default()
	failing := rapid.SampledFrom(def.Stages).Draw(t, "failing")

	rec := &recorder{}
	runner := &fakeRunner{fail: map[string]bool{}}
	bs := builtins(rec, nil)
	if failing.Builtin != "" {
		bs[failing.Builtin] = rec.builtin(failing.Builtin, errors.New("boom"))
	} else {
		runner.fail[strings.Join(failing.Commands[0], " ")] = true
	}

	res := (&Executor{Runner: runner, Builtins: bs}).Run(context.Background(), def)
	if res.FailedStage != failing.Name {
		t.Fatalf("failed stage = %q, want %q", res.FailedStage, failing.Name)
	}
	if res.ExitCode == 0 {
		t.Fatal("failing pipeline exited 0")
	}

	after := false
	for i, sr := range res.Stages {
		stage := def.Stages[i]
		switch {
		case stage.Name == failing.Name:
			after = true
			if sr.Status != StatusFailed {
				t.Fatalf("stage %s status %s, want failed", sr.Name, sr.Status)
			}
		case !after:
			if sr.Status != StatusPassed {
				t.Fatalf("stage %s before failure: %s", sr.Name, sr.Status)
			}
		case stage.Always:
			if sr.Status != StatusPassed {
				t.Fatalf("always stage %s: %s", sr.Name, sr.Status)
			}
		default:
			if sr.Status != StatusSkipped {
				t.Fatalf("stage %s after failure: %s, want skipped", sr.Name, sr.Status)
			}
		}
	}
}

func TestExecutor_HaltSemantics(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testExecutor_HaltSemantics)
}
