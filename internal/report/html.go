package report

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"

	"github.com/kuitang/favorites-e2e/internal/errs"
)

// Markdown renders the run summary table.
func Markdown(run Run) string {
	passed, failed, errored := run.Counts()
	var b strings.Builder

	verdict := "PASSED"
	if !run.Passed() {
		verdict = "FAILED"
	}
	fmt.Fprintf(&b, "# Favorites E2E: %s\n\n", verdict)
	fmt.Fprintf(&b, "- Run: `%s`\n", run.ID)
	fmt.Fprintf(&b, "- Mode: %s\n", run.Mode)
	if run.Build != "" {
		fmt.Fprintf(&b, "- Build: %s\n", run.Build)
	}
	fmt.Fprintf(&b, "- Duration: %s\n", run.Duration().Round(100*time.Millisecond))
	fmt.Fprintf(&b, "- Results: %d passed, %d failed, %d errors of %d platforms\n\n", passed, failed, errored, len(run.Records))

	b.WriteString("| Platform | Browser | Outcome | Duration | Details |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, rec := range run.Records {
		details := cell(rec.Message)
		if rec.Code != "" && rec.Outcome != errs.OutcomePass {
			details = fmt.Sprintf("`%s` %s", rec.Code, details)
		}
		if rec.Screenshot != "" {
			details += fmt.Sprintf(" [screenshot](%s)", rec.Screenshot)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			cell(rec.Platform.Name), cell(browserLabel(rec)), outcomeLabel(rec.Outcome),
			rec.Duration.Round(100*time.Millisecond), strings.TrimSpace(details))
	}
	return b.String()
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
            max-width: 960px;
            margin: 2em auto;
            padding: 0 1em;
            color: #1f2328;
        }
        table {
            border-collapse: collapse;
            width: 100%;
        }
        th, td {
            border: 1px solid #d0d7de;
            padding: 6px 10px;
            text-align: left;
        }
        th {
            background-color: #f6f8fa;
        }
        code {
            background-color: #f6f8fa;
            padding: 0 4px;
        }
    </style>
</head>
<body>
    <article>
        {{.Content}}
    </article>
</body>
</html>`

type templateData struct {
	Title   string
	Content template.HTML
}

var pageTemplate = template.Must(template.New("report").Parse(htmlTemplate))

// WriteHTML renders the Markdown summary into a standalone, sanitized page.
func WriteHTML(w io.Writer, run Run) error {
	body := RenderHTML(Markdown(run))

	var buf bytes.Buffer
	err := pageTemplate.Execute(&buf, templateData{
		Title:   "Favorites E2E " + run.ID,
		Content: body,
	})
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	_, err = w.Write(buf.Bytes())
	return err
}

// RenderHTML converts Markdown to sanitized HTML.
func RenderHTML(md string) template.HTML {
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse([]byte(md))

	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.HrefTargetBlank,
	})
	htmlContent := markdown.Render(doc, renderer)

	policy := bluemonday.UGCPolicy()
	return template.HTML(policy.SanitizeBytes(htmlContent))
}

func browserLabel(rec Record) string {
	d := rec.Platform
	if d.IsMobile() {
		return fmt.Sprintf("%s on %s", d.BrowserName, d.DeviceName)
	}
	return fmt.Sprintf("%s %s on %s %s", d.BrowserName, orLatest(d.BrowserVersion), d.OS, d.OSVersion)
}

func outcomeLabel(o errs.Outcome) string {
	switch o {
	case errs.OutcomePass:
		return "✅ pass"
	case errs.OutcomeFail:
		return "❌ fail"
	default:
		return "⚠️ error"
	}
}

// cell keeps free text from breaking the table.
func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

func orLatest(v string) string {
	if v == "" {
		return "latest"
	}
	return v
}
