package report

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/favorites-e2e/internal/errs"
	"github.com/kuitang/favorites-e2e/internal/platform"
)

const secret = "hunter2-access-key"

func sampleRun() Run {
	defs := platform.Defaults()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return Run{
		ID:       "run-1",
		Mode:     "remote",
		Build:    "favorites-e2e-build",
		Started:  start,
		Finished: start.Add(42 * time.Second),
		Records: []Record{
			{Platform: defs[0], SessionID: "s-1", Outcome: errs.OutcomePass, Started: start, Duration: 12 * time.Second},
			{
				Platform: defs[1], SessionID: "s-2", Outcome: errs.OutcomeFail, Code: errs.AssertionFailed,
				Message: `"Galaxy S20+" not in favourites | key ` + secret, Started: start, Duration: 20 * time.Second,
				Screenshot: "screenshots/macOS_Ventura_Firefox.png",
				Logs:       []string{"connected with " + secret},
			},
			{
				Platform: defs[2], Outcome: errs.OutcomeError, Code: errs.ProvisioningFailed,
				Message: "provision Samsung_Galaxy_S22_Chrome on BrowserStack: no device", Started: start,
			},
		},
	}
}

func TestRun_CountsAndExitCode(t *testing.T) {
	t.Parallel()
	run := sampleRun()
	passed, failed, errored := run.Counts()
	require.Equal(t, 1, passed)
	require.Equal(t, 1, failed)
	require.Equal(t, 1, errored)
	require.False(t, run.Passed())
	require.Equal(t, 1, run.ExitCode())

	run.Records = run.Records[:1]
	require.True(t, run.Passed())
	require.Equal(t, 0, run.ExitCode())

	require.False(t, Run{}.Passed(), "empty run never passes")
}

func TestWriteJUnit(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, WriteJUnit(&buf, sampleRun()))

	var doc junitSuites
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &doc))
	require.Equal(t, 3, doc.Tests)
	require.Len(t, doc.Suites, 1)

	suite := doc.Suites[0]
	require.Equal(t, SuiteName, suite.Name)
	require.Equal(t, 1, suite.Failures)
	require.Equal(t, 1, suite.Errors)
	require.Equal(t, 42.0, suite.Time)
	require.Len(t, suite.Cases, 3)

	for _, tc := range suite.Cases {
		require.Equal(t, ClassName, tc.ClassName)
	}
	require.Equal(t, "Windows_10_Chrome", suite.Cases[0].Name)
	require.Nil(t, suite.Cases[0].Failure)
	require.Nil(t, suite.Cases[0].Error)
	require.NotNil(t, suite.Cases[1].Failure)
	require.Equal(t, "assertion_failed", suite.Cases[1].Failure.Type)
	require.Contains(t, suite.Cases[1].SystemOut, "screenshot: screenshots/macOS_Ventura_Firefox.png")
	require.NotNil(t, suite.Cases[2].Error)
	require.Contains(t, suite.Cases[2].Error.Message, "no device")
}

func TestMarkdownAndHTML(t *testing.T) {
	t.Parallel()
	run := sampleRun()
	run.Records[0].Message = `<script>alert(1)</script>`

	md := Markdown(run)
	require.Contains(t, md, "# Favorites E2E: FAILED")
	require.Contains(t, md, "| Samsung_Galaxy_S22_Chrome |")
	require.Contains(t, md, `\| key`, "pipes in messages are escaped")
	require.Equal(t, 3+2, strings.Count(md, "\n|"), "header, separator and one row per record")

	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, run))
	page := buf.String()
	require.Contains(t, page, "<table>")
	require.Contains(t, page, `href="screenshots/macOS_Ventura_Firefox.png"`)
	require.NotContains(t, page, "<script>alert")
}

func TestWriteAll_CensorsSecrets(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "reports")
	paths, err := WriteAll(dir, sampleRun(), secret)
	require.NoError(t, err)
	require.Len(t, paths, 4)

	for _, name := range []string{JUnitFile, JSONFile, MarkdownFile, HTMLFile} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)
		require.NotContains(t, string(data), secret, name)
	}

	data, err := os.ReadFile(filepath.Join(dir, JSONFile))
	require.NoError(t, err)
	var run Run
	require.NoError(t, json.Unmarshal(data, &run))
	require.Len(t, run.Records, 3)
	require.Equal(t, errs.OutcomeFail, run.Records[1].Outcome)
	require.Contains(t, run.Records[1].Logs[0], "[REDACTED]")
}

func testJUnit_OneCasePerRecord(t *rapid.T) {
	outcomes := []errs.Outcome{errs.OutcomePass, errs.OutcomeFail, errs.OutcomeError}
	n := rapid.IntRange(0, 12).Draw(t, "records")
	run := Run{ID: "r"}
	wantFail, wantErr := 0, 0
	for i := range n {
		o := rapid.SampledFrom(outcomes).Draw(t, "outcome")
		switch o {
		case errs.OutcomeFail:
			wantFail++
		case errs.OutcomeError:
			wantErr++
		}
		run.Records = append(run.Records, Record{
			Platform: platform.Descriptor{Name: "p" + string(rune('a'+i)), OS: "Windows", OSVersion: "11", BrowserName: "chrome"},
			Outcome:  o,
			Message:  rapid.String().Draw(t, "message"),
		})
	}

	var buf bytes.Buffer
	if err := WriteJUnit(&buf, run); err != nil {
		t.Fatalf("WriteJUnit: %v", err)
	}
	var doc junitSuites
	if err := xml.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not XML: %v\n%s", err, buf.String())
	}
	suite := doc.Suites[0]
	if len(suite.Cases) != n || suite.Tests != n {
		t.Fatalf("cases = %d, tests = %d, want %d", len(suite.Cases), suite.Tests, n)
	}
	if suite.Failures != wantFail || suite.Errors != wantErr {
		t.Fatalf("failures/errors = %d/%d, want %d/%d", suite.Failures, suite.Errors, wantFail, wantErr)
	}
}

func TestJUnit_OneCasePerRecord(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testJUnit_OneCasePerRecord)
}
