package analyzers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/auditmysite/internal/common"
	"github.com/ternarybob/auditmysite/internal/models"
	"github.com/ternarybob/auditmysite/internal/services/browser"
)

func TestBudgetForTemplate(t *testing.T) {
	assert.Equal(t, "ecommerce", BudgetForTemplate("ecommerce").Name)
	assert.Equal(t, "default", BudgetForTemplate("default").Name)
	assert.Equal(t, "default", BudgetForTemplate("nonsense").Name, "unknown names fall back")
}

func TestScoreAgainstBudget_UnderBudget(t *testing.T) {
	s := &models.ContentWeightSection{
		Bytes:        models.ResourceBytes{HTML: 50 * 1024, CSS: 50 * 1024, JavaScript: 100 * 1024},
		RequestCount: 20,
	}
	s.TotalBytes = s.Bytes.Total()

	assert.Equal(t, 100, ScoreAgainstBudget(s, BudgetForTemplate("default")))
}

func TestScoreAgainstBudget_TotalOverageDominates(t *testing.T) {
	budget := BudgetForTemplate("default")

	// Double the total budget, all in the unbudget-sensitive image class
	s := &models.ContentWeightSection{
		Bytes: models.ResourceBytes{Images: 4 * 1024 * 1024},
	}
	s.TotalBytes = s.Bytes.Total()

	score := ScoreAgainstBudget(s, budget)
	// Total at 2x deducts the full 40; images near 4x deduct their full 10
	assert.Equal(t, 50, score)
}

func TestScoreAgainstBudget_ProportionalDeduction(t *testing.T) {
	budget := WeightBudget{Name: "t", TotalBytes: 1000}

	half := &models.ContentWeightSection{TotalBytes: 1500}
	assert.Equal(t, 80, ScoreAgainstBudget(half, budget), "50% over deducts half of 40")

	full := &models.ContentWeightSection{TotalBytes: 2000}
	assert.Equal(t, 60, ScoreAgainstBudget(full, budget))

	worse := &models.ContentWeightSection{TotalBytes: 9000}
	assert.Equal(t, 60, ScoreAgainstBudget(worse, budget), "deduction caps at 2x budget")
}

func TestContentWeightAnalyze(t *testing.T) {
	tally := browser.NewResourceTally()
	tally.OnResponse("1", "Document", "text/html")
	tally.OnLoadingFinished("1", 40*1024)
	tally.OnResponse("2", "Script", "application/javascript")
	tally.OnLoadingFinished("2", 100*1024)

	page := &browser.Page{
		URL:       "https://example.com/",
		HTML:      "<html><body><p>short text</p></body></html>",
		Resources: tally,
	}

	a := NewContentWeightAnalyzer(common.GetLogger())
	opts := models.DefaultAuditOptions()
	opts.BudgetTemplate = "blog"

	section, err := a.Analyze(context.Background(), page, opts)
	require.NoError(t, err)

	cw, ok := section.(*models.ContentWeightSection)
	require.True(t, ok)
	assert.Equal(t, int64(40*1024), cw.Bytes.HTML)
	assert.Equal(t, int64(100*1024), cw.Bytes.JavaScript)
	assert.Equal(t, int64(140*1024), cw.TotalBytes)
	assert.Equal(t, 2, cw.RequestCount)
	assert.Equal(t, "blog", cw.Budget)
	assert.Equal(t, 100, cw.Score)
	assert.Greater(t, cw.TextToCodeRatio, 0.0)
}

func TestTextToCodeRatio(t *testing.T) {
	assert.Equal(t, 0.0, textToCodeRatio(""))

	ratio := textToCodeRatio("<html><body>abcd</body></html>")
	assert.Greater(t, ratio, 0.0)
	assert.Less(t, ratio, 1.0)
}
