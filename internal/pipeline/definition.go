// Package pipeline runs the staged CI flow: dependency setup, quality gates,
// the cross-platform scenario, artifact publication and the summary.
//
// Stages run strictly in declared order. A failed stage halts every later
// stage except those marked always, which is how artifact publication and the
// summary survive a failing test stage.
package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Kind classifies a stage.
type Kind string

const (
	KindSetup   Kind = "setup"
	KindGate    Kind = "gate"
	KindTest    Kind = "test"
	KindPublish Kind = "publish"
	KindReport  Kind = "report"
)

func (k Kind) valid() bool {
	switch k {
	case KindSetup, KindGate, KindTest, KindPublish, KindReport:
		return true
	}
	return false
}

// Stage is one step of the pipeline. Exactly one of Commands or Builtin is set.
type Stage struct {
	Name     string     `yaml:"name"`
	Kind     Kind       `yaml:"kind"`
	Commands [][]string `yaml:"commands,omitempty"`
	Builtin  string     `yaml:"builtin,omitempty"`
	// FailOnOutput fails the stage when its commands print anything (gofmt -l).
	FailOnOutput bool              `yaml:"failOnOutput,omitempty"`
	Always       bool              `yaml:"always,omitempty"`
	Dir          string            `yaml:"dir,omitempty"`
	Env          map[string]string `yaml:"env,omitempty"`
	Timeout      time.Duration     `yaml:"timeout,omitempty"`
}

// Definition is a named, ordered list of stages.
type Definition struct {
	Name   string  `yaml:"name"`
	Stages []Stage `yaml:"stages"`
}

// Default is the built-in pipeline used when no file is given.
func Default() Definition {
	return Definition{
		Name: "favorites-e2e",
		Stages: []Stage{
			{Name: "dependencies", Kind: KindSetup, Commands: [][]string{{"go", "mod", "download"}}},
			{Name: "format", Kind: KindGate, Commands: [][]string{{"gofmt", "-l", "."}}, FailOnOutput: true},
			{Name: "lint", Kind: KindGate, Commands: [][]string{{"go", "vet", "./..."}}},
			{Name: "typecheck", Kind: KindGate, Commands: [][]string{{"go", "build", "./..."}}},
			{Name: "preflight", Kind: KindGate, Builtin: "preflight"},
			{Name: "e2e", Kind: KindTest, Builtin: "scenario"},
			{Name: "publish", Kind: KindPublish, Builtin: "publish", Always: true},
			{Name: "summary", Kind: KindReport, Builtin: "summary", Always: true},
		},
	}
}

// Parse decodes a YAML definition. Unknown keys are rejected.
func Parse(data []byte) (Definition, error) {
	var def Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return Definition{}, errors.New("parse pipeline: empty definition")
		}
		return Definition{}, fmt.Errorf("parse pipeline: %w", err)
	}
	return def, nil
}

// Load reads and parses the definition at path.
func Load(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("read pipeline: %w", err)
	}
	def, err := Parse(data)
	if err != nil {
		return Definition{}, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// ValidationError lists every problem in a definition.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("pipeline validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Validate checks structure and ordering: stage names are unique, each stage
// has a known kind and exactly one of commands or builtin, builtins exist in
// known (when non-nil), and no setup or gate stage follows a test stage.
func (d Definition) Validate(known map[string]Builtin) error {
	var problems []string
	if len(d.Stages) == 0 {
		problems = append(problems, "at least one stage is required")
	}

	seen := map[string]bool{}
	testSeen := ""
	for i, s := range d.Stages {
		label := s.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
			problems = append(problems, fmt.Sprintf("stage %s: name is required", label))
		} else if seen[s.Name] {
			problems = append(problems, fmt.Sprintf("stage %s: duplicate name", label))
		}
		seen[s.Name] = true

		if !s.Kind.valid() {
			problems = append(problems, fmt.Sprintf("stage %s: unknown kind %q", label, s.Kind))
		}
		hasCommands := len(s.Commands) > 0
		if hasCommands == (s.Builtin != "") {
			problems = append(problems, fmt.Sprintf("stage %s: exactly one of commands or builtin is required", label))
		}
		for j, argv := range s.Commands {
			if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
				problems = append(problems, fmt.Sprintf("stage %s: command %d is empty", label, j+1))
			}
		}
		if s.Builtin != "" && known != nil {
			if _, ok := known[s.Builtin]; !ok {
				problems = append(problems, fmt.Sprintf("stage %s: unknown builtin %q", label, s.Builtin))
			}
		}
		if s.Timeout < 0 {
			problems = append(problems, fmt.Sprintf("stage %s: timeout must not be negative", label))
		}

		switch s.Kind {
		case KindTest:
			if testSeen == "" {
				testSeen = label
			}
		case KindSetup, KindGate:
			if testSeen != "" {
				problems = append(problems, fmt.Sprintf("stage %s: %s stage must run before test stage %s", label, s.Kind, testSeen))
			}
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Errors: problems}
	}
	return nil
}
