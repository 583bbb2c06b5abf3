package analyzers

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/auditmysite/internal/common"
	"github.com/ternarybob/auditmysite/internal/models"
	"github.com/ternarybob/auditmysite/internal/services/browser"
)

func analyzeSEO(t *testing.T, url, html string) *models.SEOSection {
	t.Helper()
	a := NewSEOAnalyzer(common.GetLogger())
	section, err := a.Analyze(context.Background(), &browser.Page{URL: url, HTML: html}, models.DefaultAuditOptions())
	require.NoError(t, err)
	seo, ok := section.(*models.SEOSection)
	require.True(t, ok)
	return seo
}

func TestSEOAnalyze_WellFormedPage(t *testing.T) {
	body := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40)
	html := `<html><head>
		<title>A Descriptive Page Title Between Thirty And Sixty</title>
		<meta name="description" content="` + strings.Repeat("x", 130) + `">
		<meta property="og:title" content="t">
		<meta name="twitter:card" content="summary">
	</head><body>
		<h1>Main</h1><h2>Sub</h2><h2>Sub2</h2>
		<p>` + body + `</p>
		<a href="/one">a</a><a href="/two">b</a><a href="https://example.com/three">c</a>
		<a href="https://other.example.org/">ext</a>
		<a href="#frag">skip</a><a href="mailto:x@y.z">skip</a>
	</body></html>`

	seo := analyzeSEO(t, "https://example.com/page", html)

	assert.True(t, seo.Title.Present)
	assert.GreaterOrEqual(t, seo.Title.Length, 30)
	assert.LessOrEqual(t, seo.Title.Length, 60)
	assert.True(t, seo.Description.Present)
	assert.Equal(t, 130, seo.Description.Length)
	assert.Equal(t, 1, seo.HeadingCounts[0])
	assert.Equal(t, 2, seo.HeadingCounts[1])
	assert.Equal(t, 3, seo.InternalLinks)
	assert.Equal(t, 1, seo.ExternalLinks)
	assert.Equal(t, 1, seo.OpenGraphTags)
	assert.True(t, seo.HasTwitterCard)
	assert.GreaterOrEqual(t, seo.WordCount, 300)

	// All checks pass: 20+20+20+15+10+10+5
	assert.Equal(t, 100, seo.Score)
}

func TestSEOAnalyze_BarePage(t *testing.T) {
	seo := analyzeSEO(t, "https://example.com/", "<html><head></head><body><div>hi</div></body></html>")

	assert.False(t, seo.Title.Present)
	assert.False(t, seo.Description.Present)
	assert.Equal(t, 0, seo.HeadingCounts[0])
	assert.Equal(t, 0, seo.InternalLinks)
	assert.Less(t, seo.Score, 30)
}

func TestSEOAnalyze_ShortTitleScoresHalf(t *testing.T) {
	full := analyzeSEO(t, "https://example.com/",
		`<html><head><title>A Descriptive Page Title Between Thirty And Sixty</title></head><body></body></html>`)
	short := analyzeSEO(t, "https://example.com/",
		`<html><head><title>Hi</title></head><body></body></html>`)

	assert.Equal(t, 10, full.Score-short.Score)
}

func TestSEOAnalyze_ScriptTextExcludedFromWordCount(t *testing.T) {
	html := `<html><body><p>one two three</p><script>var a = "not words here at all";</script></body></html>`
	seo := analyzeSEO(t, "https://example.com/", html)
	assert.Equal(t, 3, seo.WordCount)
}

func TestFleschReadingEase(t *testing.T) {
	simple := "The cat sat on the mat. The dog ran to the cat."
	score := fleschReadingEase(simple, strings.Fields(simple))
	assert.Greater(t, score, 80, "simple prose reads easy")

	assert.Equal(t, 0, fleschReadingEase("", nil))
}

func TestCountSyllables(t *testing.T) {
	assert.Equal(t, 1, countSyllables("cat"))
	assert.Equal(t, 2, countSyllables("hello"))
	assert.Equal(t, 3, countSyllables("beautiful"))
	assert.Equal(t, 1, countSyllables("xyz"), "no vowels still counts one")
}
