package report

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/auditmysite/internal/models"
)

func sampleResult() *models.RunResult {
	score := 85
	return &models.RunResult{
		RunID:      "abc123",
		SitemapURL: "https://example.com/sitemap.xml",
		StartedAt:  time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		DurationMs: 4200,
		Summary: models.RunSummary{
			Total: 3, Passed: 1, Crashed: 1, Skipped: 1, AverageScore: 85,
		},
		Pages: []*models.PageResult{
			{
				URL:    "https://example.com/",
				Title:  "Home",
				Status: models.PageStatusPassed,
				Score:  &score,
				Grade:  "B",
				Accessibility: &models.AccessibilitySection{
					Score: 90,
					Issues: []models.AccessibilityIssue{
						{Code: "image-alt", Message: "Image element missing alt attribute", Severity: models.SeverityError},
					},
				},
				Performance: &models.PerformanceSection{
					Score: 80, Grade: "B",
					LCP: &models.Metric{Value: 2100, Rating: models.RatingGood},
				},
				SEO: &models.SEOSection{Score: 75, Title: models.MetaField{Present: true, Length: 40}},
				ContentWeight: &models.ContentWeightSection{
					Score: 95, Budget: "default", TotalBytes: 1536 * 1024, RequestCount: 42,
					Bytes: models.ResourceBytes{JavaScript: 512 * 1024},
				},
				Mobile: &models.MobileSection{Score: 88, HasViewportMeta: true},
			},
			{
				URL:    "https://example.com/broken",
				Status: models.PageStatusCrashed,
				Error:  "navigation failed",
			},
			{
				URL:    "https://example.com/old",
				Status: models.PageStatusSkippedRedirect,
			},
		},
		SkippedURLs: []string{"https://example.com/old"},
	}
}

func TestJSONWriterRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONWriter()
	assert.Equal(t, "json", w.Extension())
	require.NoError(t, w.Write(&buf, sampleResult()))

	var decoded models.RunResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "abc123", decoded.RunID)
	assert.Len(t, decoded.Pages, 3)
	require.NotNil(t, decoded.Pages[0].Score)
	assert.Equal(t, 85, *decoded.Pages[0].Score)
}

func TestMarkdownWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewMarkdownWriter()
	assert.Equal(t, "md", w.Extension())
	require.NoError(t, w.Write(&buf, sampleResult()))

	out := buf.String()
	assert.Contains(t, out, "# Audit Report")
	assert.Contains(t, out, "https://example.com/sitemap.xml")
	assert.Contains(t, out, "| https://example.com/ | passed | 85 | B | 1 |")
	assert.Contains(t, out, "image-alt")
	assert.Contains(t, out, "### https://example.com/")
	assert.NotContains(t, out, "### https://example.com/broken",
		"crashed pages get no detail section")
	assert.Contains(t, out, "## Skipped Redirects")
}

func TestHTMLWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewHTMLWriter()
	assert.Equal(t, "html", w.Extension())
	require.NoError(t, w.Write(&buf, sampleResult()))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.Contains(t, out, "<h1")
	assert.Contains(t, out, "<table>")
	assert.Contains(t, out, "https://example.com/")
}

func TestWriterForFormat(t *testing.T) {
	for format, ext := range map[string]string{
		"json": "json", "": "json",
		"markdown": "md", "md": "md",
		"html": "html",
	} {
		w, err := WriterForFormat(format)
		require.NoError(t, err, format)
		assert.Equal(t, ext, w.Extension())
	}

	_, err := WriterForFormat("pdf")
	assert.Error(t, err)
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteFile(NewJSONWriter(), dir, sampleResult())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "audit-abc123.json"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\"run_id\": \"abc123\"")
}
