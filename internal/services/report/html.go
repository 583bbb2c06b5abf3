package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/ternarybob/auditmysite/internal/models"
)

const htmlShell = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Audit Report</title>
<style>
body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; max-width: 960px; margin: 2rem auto; padding: 0 1rem; color: #1a1a2e; }
table { border-collapse: collapse; width: 100%%; margin: 1rem 0; }
th, td { border: 1px solid #ddd; padding: 0.4rem 0.6rem; text-align: left; }
th { background: #f5f5f5; }
h1 { border-bottom: 2px solid #1a1a2e; padding-bottom: 0.3rem; }
h3 { margin-top: 2rem; }
code { background: #f0f0f0; padding: 0.1rem 0.3rem; border-radius: 3px; }
</style>
</head>
<body>
%s
</body>
</html>
`

// HTMLWriter renders a run result as a standalone HTML page. The body is
// the Markdown report converted through goldmark.
type HTMLWriter struct {
	md goldmark.Markdown
}

func NewHTMLWriter() *HTMLWriter {
	return &HTMLWriter{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(goldmarkhtml.WithUnsafe()),
		),
	}
}

func (w *HTMLWriter) Extension() string { return "html" }

func (w *HTMLWriter) Write(out io.Writer, result *models.RunResult) error {
	var markdown strings.Builder
	renderMarkdown(&markdown, result)

	var body strings.Builder
	if err := w.md.Convert([]byte(markdown.String()), &body); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}

	_, err := fmt.Fprintf(out, htmlShell, body.String())
	return err
}
