package report

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kuitang/favorites-e2e/internal/errs"
)

// JUnit names for the suite and the scenario's test cases.
const (
	SuiteName = "favorites"
	ClassName = "scenario.FavoriteProduct"
)

type junitSuites struct {
	XMLName  xml.Name     `xml:"testsuites"`
	Name     string       `xml:"name,attr"`
	Tests    int          `xml:"tests,attr"`
	Failures int          `xml:"failures,attr"`
	Errors   int          `xml:"errors,attr"`
	Time     float64      `xml:"time,attr"`
	Suites   []junitSuite `xml:"testsuite"`
}

type junitSuite struct {
	Name       string          `xml:"name,attr"`
	Tests      int             `xml:"tests,attr"`
	Failures   int             `xml:"failures,attr"`
	Errors     int             `xml:"errors,attr"`
	Skipped    int             `xml:"skipped,attr"`
	Time       float64         `xml:"time,attr"`
	Timestamp  string          `xml:"timestamp,attr,omitempty"`
	Properties []junitProperty `xml:"properties>property,omitempty"`
	Cases      []junitCase     `xml:"testcase"`
}

type junitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type junitCase struct {
	ClassName string        `xml:"classname,attr"`
	Name      string        `xml:"name,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *junitProblem `xml:"failure,omitempty"`
	Error     *junitProblem `xml:"error,omitempty"`
	SystemOut string        `xml:"system-out,omitempty"`
}

type junitProblem struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

// WriteJUnit writes one test case per record inside a single suite.
func WriteJUnit(w io.Writer, run Run) error {
	_, failed, errored := run.Counts()
	suite := junitSuite{
		Name:     SuiteName,
		Tests:    len(run.Records),
		Failures: failed,
		Errors:   errored,
		Time:     seconds(run.Duration()),
		Properties: []junitProperty{
			{Name: "run_id", Value: run.ID},
			{Name: "mode", Value: run.Mode},
		},
	}
	if run.Build != "" {
		suite.Properties = append(suite.Properties, junitProperty{Name: "build", Value: run.Build})
	}
	if !run.Started.IsZero() {
		suite.Timestamp = run.Started.UTC().Format(time.RFC3339)
	}

	for _, rec := range run.Records {
		tc := junitCase{
			ClassName: ClassName,
			Name:      rec.Platform.Name,
			Time:      seconds(rec.Duration),
			SystemOut: systemOut(rec),
		}
		problem := &junitProblem{Message: rec.Message, Type: string(rec.Code), Body: rec.Message}
		switch rec.Outcome {
		case errs.OutcomePass:
		case errs.OutcomeFail:
			tc.Failure = problem
		default:
			tc.Error = problem
		}
		suite.Cases = append(suite.Cases, tc)
	}

	doc := junitSuites{
		Name:     "favorites-e2e",
		Tests:    suite.Tests,
		Failures: suite.Failures,
		Errors:   suite.Errors,
		Time:     suite.Time,
		Suites:   []junitSuite{suite},
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode junit: %w", err)
	}
	if err := enc.Flush(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func systemOut(rec Record) string {
	lines := append([]string(nil), rec.Logs...)
	lines = append(lines, "platform: "+rec.Platform.String())
	if rec.SessionID != "" {
		lines = append(lines, "session: "+rec.SessionID)
	}
	if rec.Screenshot != "" {
		lines = append(lines, "screenshot: "+rec.Screenshot)
	}
	return strings.Join(lines, "\n")
}

func seconds(d time.Duration) float64 {
	return float64(d.Milliseconds()) / 1000
}
