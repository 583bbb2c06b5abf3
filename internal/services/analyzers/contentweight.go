package analyzers

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/auditmysite/internal/models"
	"github.com/ternarybob/auditmysite/internal/services/browser"
)

// ContentWeightAnalyzer scores the page's transferred bytes against a
// budget template. It reads the resource tally collected during the load
// and never touches the live tab.
type ContentWeightAnalyzer struct {
	logger arbor.ILogger
}

func NewContentWeightAnalyzer(logger arbor.ILogger) *ContentWeightAnalyzer {
	return &ContentWeightAnalyzer{logger: logger}
}

func (a *ContentWeightAnalyzer) Name() models.AnalyzerID { return models.AnalyzerContentWeight }

func (a *ContentWeightAnalyzer) DefaultTimeout() time.Duration { return 5 * time.Second }

func (a *ContentWeightAnalyzer) Analyze(ctx context.Context, page *browser.Page, opts models.AuditOptions) (models.Section, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	section := &models.ContentWeightSection{}
	if page.Resources != nil {
		section.Bytes, section.RequestCount = page.Resources.Snapshot()
	}
	section.TotalBytes = section.Bytes.Total()
	section.TextToCodeRatio = textToCodeRatio(page.HTML)

	budget := BudgetForTemplate(opts.BudgetTemplate)
	section.Budget = budget.Name
	section.Score = ScoreAgainstBudget(section, budget)

	return section, nil
}

// ScoreAgainstBudget deducts points per budgeted class in proportion to
// overage, weighting the total-bytes check heaviest
func ScoreAgainstBudget(s *models.ContentWeightSection, budget WeightBudget) int {
	score := 100.0

	// Total weight dominates: up to 40 points
	score -= overageDeduction(s.TotalBytes, budget.TotalBytes, 40)

	// Per-class checks: up to 10 points each
	score -= overageDeduction(s.Bytes.HTML, budget.HTMLBytes, 10)
	score -= overageDeduction(s.Bytes.CSS, budget.CSSBytes, 10)
	score -= overageDeduction(s.Bytes.JavaScript, budget.JavaScriptBytes, 10)
	score -= overageDeduction(s.Bytes.Images, budget.ImageBytes, 10)
	score -= overageDeduction(s.Bytes.Fonts, budget.FontBytes, 10)

	// Request count: up to 10 points
	if budget.MaxRequests > 0 {
		score -= overageDeduction(int64(s.RequestCount), int64(budget.MaxRequests), 10)
	}

	return clampScore(score)
}

// overageDeduction returns a deduction proportional to how far actual
// exceeds the budget, capped at max. At or under budget deducts nothing;
// double the budget or worse deducts the full max.
func overageDeduction(actual, budget int64, max float64) float64 {
	if budget <= 0 || actual <= budget {
		return 0
	}
	ratio := float64(actual-budget) / float64(budget)
	if ratio > 1 {
		ratio = 1
	}
	return max * ratio
}

// textToCodeRatio is the share of visible text bytes in the raw HTML
func textToCodeRatio(html string) float64 {
	if html == "" {
		return 0
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0
	}
	text := visibleText(doc)
	return float64(len(text)) / float64(len(html))
}
