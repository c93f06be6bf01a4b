package report

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// markdownEngine leaves raw HTML out of the page. Free text reaches it
// escaped by escapeMarkdown, so markup in failure text is shown as text.
var markdownEngine = goldmark.New(goldmark.WithExtensions(extension.GFM))

var pageTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta name="generator" content="runledger">
<title>Runledger Report {{.RunID}}</title>
<style>
body { font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; max-width: 1100px; margin: 2rem auto; padding: 0 1rem; color: #1f2328; line-height: 1.5; }
h1 { border-bottom: 2px solid #d0d7de; padding-bottom: .3rem; }
h2 { border-bottom: 1px solid #d0d7de; padding-bottom: .2rem; margin-top: 2rem; }
table { border-collapse: collapse; margin: 1rem 0; }
th, td { border: 1px solid #d0d7de; padding: .3rem .7rem; text-align: left; }
th { background: #f6f8fa; }
pre { background: #f6f8fa; padding: .8rem; overflow-x: auto; font-size: .85rem; }
code { font-family: ui-monospace, SFMono-Regular, Menlo, monospace; }
.status-{{.Status}} { border-left: 6px solid {{.StatusColor}}; padding-left: 1rem; }
@media print {
  body { max-width: none; margin: 0; font-size: 10pt; }
  h2 { page-break-after: avoid; }
  pre, table { page-break-inside: avoid; }
  pre { white-space: pre-wrap; }
}
</style>
</head>
<body>
<main class="status-{{.Status}}">
{{.Body}}
</main>
<footer><small>Generated {{.GeneratedAt}}</small></footer>
</body>
</html>
`))

type page struct {
	RunID       string
	Status      string
	StatusColor template.CSS
	GeneratedAt string
	Body        template.HTML
}

// RenderHTML converts the Markdown report into a standalone HTML page with
// inline styles and print rules.
func RenderHTML(markdown string, doc *Document) ([]byte, error) {
	var body bytes.Buffer
	if err := markdownEngine.Convert([]byte(markdown), &body); err != nil {
		return nil, fmt.Errorf("failed to convert markdown: %w", err)
	}

	p := page{
		Status:      "passed",
		StatusColor: "#1a7f37",
		GeneratedAt: doc.GeneratedAt.Format("2006-01-02 15:04:05 MST"),
		Body:        template.HTML(body.String()), //nolint:gosec // produced by goldmark from our own markdown
	}
	if doc.Run != nil {
		p.RunID = doc.Run.RunID
		if doc.Run.Summary.Failed > 0 {
			p.Status = "failed"
			p.StatusColor = "#cf222e"
		}
	}

	var out bytes.Buffer
	if err := pageTemplate.Execute(&out, p); err != nil {
		return nil, fmt.Errorf("failed to render html page: %w", err)
	}
	return out.Bytes(), nil
}
