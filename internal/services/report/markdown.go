package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ternarybob/auditmysite/internal/models"
)

// MarkdownWriter renders a run result as a Markdown report
type MarkdownWriter struct{}

func NewMarkdownWriter() *MarkdownWriter { return &MarkdownWriter{} }

func (w *MarkdownWriter) Extension() string { return "md" }

func (w *MarkdownWriter) Write(out io.Writer, result *models.RunResult) error {
	var b strings.Builder
	renderMarkdown(&b, result)
	_, err := io.WriteString(out, b.String())
	return err
}

func renderMarkdown(b *strings.Builder, result *models.RunResult) {
	fmt.Fprintf(b, "# Audit Report\n\n")
	fmt.Fprintf(b, "- **Sitemap:** %s\n", result.SitemapURL)
	fmt.Fprintf(b, "- **Run ID:** `%s`\n", result.RunID)
	fmt.Fprintf(b, "- **Started:** %s\n", result.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(b, "- **Duration:** %s\n\n", (time.Duration(result.DurationMs) * time.Millisecond).Round(time.Millisecond))

	s := result.Summary
	fmt.Fprintf(b, "## Summary\n\n")
	fmt.Fprintf(b, "| Outcome | Count |\n|---|---|\n")
	fmt.Fprintf(b, "| Total | %d |\n", s.Total)
	fmt.Fprintf(b, "| Passed | %d |\n", s.Passed)
	fmt.Fprintf(b, "| Failed | %d |\n", s.Failed)
	fmt.Fprintf(b, "| Crashed | %d |\n", s.Crashed)
	fmt.Fprintf(b, "| HTTP errors | %d |\n", s.HTTPErrors)
	fmt.Fprintf(b, "| Skipped (redirects) | %d |\n", s.Skipped)
	fmt.Fprintf(b, "| Cancelled | %d |\n", s.Cancelled)
	if s.AverageScore > 0 {
		fmt.Fprintf(b, "| Average score | %.1f |\n", s.AverageScore)
	}
	b.WriteString("\n")

	fmt.Fprintf(b, "## Pages\n\n")
	fmt.Fprintf(b, "| URL | Status | Score | Grade | Issues |\n|---|---|---|---|---|\n")
	for _, page := range result.Pages {
		score := "-"
		if page.Score != nil {
			score = fmt.Sprintf("%d", *page.Score)
		}
		grade := page.Grade
		if grade == "" {
			grade = "-"
		}
		fmt.Fprintf(b, "| %s | %s | %s | %s | %d |\n",
			page.URL, page.Status, score, grade, issueCount(page))
	}
	b.WriteString("\n")

	for _, page := range result.Pages {
		if page.Status != models.PageStatusPassed && page.Status != models.PageStatusFailed {
			continue
		}
		renderPageDetail(b, page)
	}

	if len(result.SkippedURLs) > 0 {
		fmt.Fprintf(b, "## Skipped Redirects\n\n")
		for _, url := range result.SkippedURLs {
			fmt.Fprintf(b, "- %s\n", url)
		}
		b.WriteString("\n")
	}
}

func renderPageDetail(b *strings.Builder, page *models.PageResult) {
	fmt.Fprintf(b, "### %s\n\n", page.URL)
	if page.Title != "" {
		fmt.Fprintf(b, "**%s**\n\n", page.Title)
	}

	if acc := page.Accessibility; acc != nil {
		fmt.Fprintf(b, "#### Accessibility (score %d)\n\n", acc.Score)
		if len(acc.Issues) == 0 && !acc.Heuristic {
			b.WriteString("No issues found.\n\n")
		}
		for _, issue := range acc.Issues {
			fmt.Fprintf(b, "- **%s** `%s`: %s\n", issue.Severity, issue.Code, issue.Message)
		}
		if len(acc.Issues) > 0 {
			b.WriteString("\n")
		}
		if acc.Heuristic {
			fmt.Fprintf(b, "Heuristic scan: %d images without alt, %d unlabeled buttons, %d headings.\n\n",
				acc.ImagesWithoutAlt, acc.ButtonsWithoutLabel, acc.HeadingsCount)
		}
	}

	if perf := page.Performance; perf != nil {
		fmt.Fprintf(b, "#### Performance (score %d, grade %s)\n\n", perf.Score, perf.Grade)
		fmt.Fprintf(b, "| Metric | Value | Rating |\n|---|---|---|\n")
		writeMetric(b, "FCP", perf.FCP, "ms")
		writeMetric(b, "LCP", perf.LCP, "ms")
		writeMetric(b, "CLS", perf.CLS, "")
		writeMetric(b, "INP", perf.INP, "ms")
		writeMetric(b, "TTFB", perf.TTFB, "ms")
		writeMetric(b, "TBT", perf.TBT, "ms")
		b.WriteString("\n")
	}

	if seo := page.SEO; seo != nil {
		fmt.Fprintf(b, "#### SEO (score %d)\n\n", seo.Score)
		fmt.Fprintf(b, "- Title: %s (%d chars)\n", presence(seo.Title.Present), seo.Title.Length)
		fmt.Fprintf(b, "- Description: %s (%d chars)\n", presence(seo.Description.Present), seo.Description.Length)
		fmt.Fprintf(b, "- Words: %d, readability %d\n", seo.WordCount, seo.Readability)
		fmt.Fprintf(b, "- Links: %d internal, %d external\n\n", seo.InternalLinks, seo.ExternalLinks)
	}

	if cw := page.ContentWeight; cw != nil {
		fmt.Fprintf(b, "#### Content Weight (score %d, budget %s)\n\n", cw.Score, cw.Budget)
		fmt.Fprintf(b, "- Total: %s over %d requests\n", formatBytes(cw.TotalBytes), cw.RequestCount)
		fmt.Fprintf(b, "- JavaScript %s, images %s, CSS %s\n\n",
			formatBytes(cw.Bytes.JavaScript), formatBytes(cw.Bytes.Images), formatBytes(cw.Bytes.CSS))
	}

	if mob := page.Mobile; mob != nil {
		fmt.Fprintf(b, "#### Mobile (score %d)\n\n", mob.Score)
		fmt.Fprintf(b, "- Viewport meta: %s\n", presence(mob.HasViewportMeta))
		fmt.Fprintf(b, "- Touch targets %d, typography %d, content sizing %d\n\n",
			mob.TouchTargetScore, mob.TypographyScore, mob.ContentSizingScore)
	}

	if len(page.AnalyzerWarnings) > 0 {
		fmt.Fprintf(b, "#### Warnings\n\n")
		for _, warning := range page.AnalyzerWarnings {
			fmt.Fprintf(b, "- %s\n", warning)
		}
		b.WriteString("\n")
	}
}

func writeMetric(b *strings.Builder, name string, m *models.Metric, unit string) {
	if m == nil {
		return
	}
	if unit == "" {
		fmt.Fprintf(b, "| %s | %.3f | %s |\n", name, m.Value, m.Rating)
		return
	}
	fmt.Fprintf(b, "| %s | %.0f%s | %s |\n", name, m.Value, unit, m.Rating)
}

func issueCount(page *models.PageResult) int {
	if page.Accessibility == nil {
		return 0
	}
	return len(page.Accessibility.Issues)
}

func presence(present bool) string {
	if present {
		return "present"
	}
	return "missing"
}

func formatBytes(n int64) string {
	switch {
	case n >= 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	case n >= 1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%d B", n)
	}
}
