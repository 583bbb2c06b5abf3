package analyzers

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/auditmysite/internal/common"
	"github.com/ternarybob/auditmysite/internal/models"
	"github.com/ternarybob/auditmysite/internal/services/browser"
)

// Meta field length recommendations
const (
	titleMinLength = 30
	titleMaxLength = 60
	descMinLength  = 120
	descMaxLength  = 160
)

// SEOAnalyzer inspects the captured HTML for on-page SEO signals. It works
// entirely from the document snapshot and never touches the live tab.
type SEOAnalyzer struct {
	logger arbor.ILogger
}

func NewSEOAnalyzer(logger arbor.ILogger) *SEOAnalyzer {
	return &SEOAnalyzer{logger: logger}
}

func (a *SEOAnalyzer) Name() models.AnalyzerID { return models.AnalyzerSEO }

func (a *SEOAnalyzer) DefaultTimeout() time.Duration { return 10 * time.Second }

func (a *SEOAnalyzer) Analyze(ctx context.Context, page *browser.Page, opts models.AuditOptions) (models.Section, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	section := &models.SEOSection{}

	title := strings.TrimSpace(doc.Find("head title").First().Text())
	section.Title = models.MetaField{Present: title != "", Content: title, Length: len([]rune(title))}

	desc, _ := doc.Find(`head meta[name="description"]`).First().Attr("content")
	desc = strings.TrimSpace(desc)
	section.Description = models.MetaField{Present: desc != "", Content: desc, Length: len([]rune(desc))}

	for i := 0; i < 6; i++ {
		section.HeadingCounts[i] = doc.Find("h" + string(rune('1'+i))).Length()
	}

	bodyText := visibleText(doc)
	words := strings.Fields(bodyText)
	section.WordCount = len(words)
	section.Readability = fleschReadingEase(bodyText, words)

	pageHost := common.ExtractHost(page.URL)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") ||
			strings.HasPrefix(href, "tel:") {
			return
		}
		host := common.ExtractHost(href)
		if host == "" || host == pageHost {
			section.InternalLinks++
		} else {
			section.ExternalLinks++
		}
	})

	section.OpenGraphTags = doc.Find(`head meta[property^="og:"]`).Length()
	section.HasTwitterCard = doc.Find(`head meta[name="twitter:card"]`).Length() > 0

	section.Score = scoreSEO(section)
	return section, nil
}

// scoreSEO combines the weighted signal checks into the section score
func scoreSEO(s *models.SEOSection) int {
	score := 0.0

	// Title: 20 points, halved when length is outside the recommended band
	if s.Title.Present {
		if s.Title.Length >= titleMinLength && s.Title.Length <= titleMaxLength {
			score += 20
		} else {
			score += 10
		}
	}

	// Description: 20 points, halved when length is out of band
	if s.Description.Present {
		if s.Description.Length >= descMinLength && s.Description.Length <= descMaxLength {
			score += 20
		} else {
			score += 10
		}
	}

	// Heading structure: 20 points for exactly one h1, 10 for any headings
	switch {
	case s.HeadingCounts[0] == 1:
		score += 20
	case headingTotal(s) > 0:
		score += 10
	}

	// Content depth: 15 points at 300+ words, partial below
	switch {
	case s.WordCount >= 300:
		score += 15
	case s.WordCount >= 100:
		score += 8
	}

	// Readability: 10 points for Flesch >= 50
	if s.Readability >= 50 {
		score += 10
	} else if s.Readability >= 30 {
		score += 5
	}

	// Internal linking: 10 points for 3+ internal links
	if s.InternalLinks >= 3 {
		score += 10
	} else if s.InternalLinks > 0 {
		score += 5
	}

	// Social metadata: 5 points
	if s.OpenGraphTags > 0 || s.HasTwitterCard {
		score += 5
	}

	return clampScore(score)
}

func headingTotal(s *models.SEOSection) int {
	total := 0
	for _, n := range s.HeadingCounts {
		total += n
	}
	return total
}

// visibleText extracts body text with scripts and styles removed
func visibleText(doc *goquery.Document) string {
	body := doc.Find("body").Clone()
	body.Find("script, style, noscript, template").Remove()
	return strings.TrimSpace(body.Text())
}

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

// fleschReadingEase computes the Flesch reading ease of the text, clamped
// to 0-100. Empty or trivially short text scores 0.
func fleschReadingEase(text string, words []string) int {
	if len(words) == 0 {
		return 0
	}

	sentences := 0
	for _, s := range sentenceSplit.Split(text, -1) {
		if strings.TrimSpace(s) != "" {
			sentences++
		}
	}
	if sentences == 0 {
		sentences = 1
	}

	syllables := 0
	for _, w := range words {
		syllables += countSyllables(w)
	}

	wordCount := float64(len(words))
	score := 206.835 - 1.015*(wordCount/float64(sentences)) - 84.6*(float64(syllables)/wordCount)
	return clampScore(score)
}

// countSyllables estimates syllables by counting vowel groups
func countSyllables(word string) int {
	word = strings.ToLower(word)
	count := 0
	prevVowel := false
	for _, r := range word {
		isVowel := strings.ContainsRune("aeiouy", r)
		if isVowel && !prevVowel {
			count++
		}
		prevVowel = isVowel
	}
	if strings.HasSuffix(word, "e") && count > 1 {
		count--
	}
	if count == 0 {
		count = 1
	}
	return count
}
