package analyzers

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/auditmysite/internal/models"
	"github.com/ternarybob/auditmysite/internal/services/browser"
)

// Mobile emulation profile (iPhone-class device)
const (
	mobileWidth       = 375
	mobileHeight      = 812
	mobileScaleFactor = 3.0
)

// mobileSample is the output of the in-page mobile checks
type mobileSample struct {
	HasViewportMeta    bool    `json:"hasViewportMeta"`
	TargetCount        int     `json:"targetCount"`
	SmallTargetCount   int     `json:"smallTargetCount"`
	TextNodeCount      int     `json:"textNodeCount"`
	SmallTextCount     int     `json:"smallTextCount"`
	HorizontalOverflow float64 `json:"horizontalOverflow"`
}

// MobileAnalyzer measures mobile friendliness in a sibling tab emulating a
// phone viewport, falling back to DOM heuristics over the captured HTML
// when the live check fails
type MobileAnalyzer struct {
	logger arbor.ILogger
}

func NewMobileAnalyzer(logger arbor.ILogger) *MobileAnalyzer {
	return &MobileAnalyzer{logger: logger}
}

func (a *MobileAnalyzer) Name() models.AnalyzerID { return models.AnalyzerMobile }

func (a *MobileAnalyzer) DefaultTimeout() time.Duration { return 30 * time.Second }

func (a *MobileAnalyzer) Analyze(ctx context.Context, page *browser.Page, opts models.AuditOptions) (models.Section, error) {
	if page.Ctx != nil {
		section, err := a.runEmulated(ctx, page)
		if err == nil {
			return section, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.logger.Warn().
			Err(err).
			Str("url", page.URL).
			Msg("Mobile emulation failed, falling back to heuristic checks")
	}

	return a.runHeuristic(page)
}

// runEmulated loads the page in a sibling tab under phone emulation and
// runs the in-page checks there. The primary tab is never reconfigured.
func (a *MobileAnalyzer) runEmulated(ctx context.Context, page *browser.Page) (*models.MobileSection, error) {
	runCtx, cancelRun := evalContext(ctx, page.Ctx)
	defer cancelRun()

	tabCtx, cancel := chromedp.NewContext(runCtx)
	defer cancel()

	targetURL := page.FinalURL
	if targetURL == "" {
		targetURL = page.URL
	}

	var sample mobileSample
	err := chromedp.Run(tabCtx,
		emulation.SetDeviceMetricsOverride(mobileWidth, mobileHeight, mobileScaleFactor, true),
		emulation.SetTouchEmulationEnabled(true),
		chromedp.Navigate(targetURL),
		chromedp.Evaluate(mobileCheckScript, &sample),
	)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return buildMobileSection(sample), nil
}

// buildMobileSection scores the sampled checks and combines them
func buildMobileSection(sample mobileSample) *models.MobileSection {
	section := &models.MobileSection{HasViewportMeta: sample.HasViewportMeta}

	section.TouchTargetScore = shareScore(sample.SmallTargetCount, sample.TargetCount)
	section.TypographyScore = shareScore(sample.SmallTextCount, sample.TextNodeCount)

	switch {
	case sample.HorizontalOverflow <= 0:
		section.ContentSizingScore = 100
	case sample.HorizontalOverflow <= 32:
		section.ContentSizingScore = 60
	default:
		section.ContentSizingScore = 20
	}

	section.Score = combineMobileScores(section)
	return section
}

// runHeuristic inspects the captured HTML for mobile signals when the live
// check is unavailable
func (a *MobileAnalyzer) runHeuristic(page *browser.Page) (*models.MobileSection, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, err
	}

	section := &models.MobileSection{Heuristic: true}

	viewport, exists := doc.Find(`head meta[name="viewport"]`).First().Attr("content")
	section.HasViewportMeta = exists && strings.Contains(viewport, "width")

	// Without layout the remaining checks cannot measure; score them
	// neutral so the viewport check dominates
	section.TouchTargetScore = 60
	section.TypographyScore = 60
	section.ContentSizingScore = 60

	section.Score = combineMobileScores(section)
	return section, nil
}

// combineMobileScores weights the component checks: viewport meta 30,
// touch targets 30, typography 20, content sizing 20
func combineMobileScores(s *models.MobileSection) int {
	score := 0.0
	if s.HasViewportMeta {
		score += 30
	}
	score += float64(s.TouchTargetScore) * 0.30
	score += float64(s.TypographyScore) * 0.20
	score += float64(s.ContentSizingScore) * 0.20
	return clampScore(score)
}

// shareScore converts a failing/total ratio into a 0-100 score. An empty
// population scores full marks.
func shareScore(failing, total int) int {
	if total == 0 {
		return 100
	}
	passing := float64(total-failing) / float64(total)
	return clampScore(passing * 100)
}

// mobileCheckScript measures touch targets, text sizes, and horizontal
// overflow under the active (emulated) viewport
const mobileCheckScript = `(() => {
  const out = {
    hasViewportMeta: false,
    targetCount: 0, smallTargetCount: 0,
    textNodeCount: 0, smallTextCount: 0,
    horizontalOverflow: 0
  };

  const viewport = document.querySelector('meta[name="viewport"]');
  out.hasViewportMeta = !!(viewport && /width/.test(viewport.content || ''));

  document.querySelectorAll('a[href], button, input, select, textarea, [role="button"]').forEach(el => {
    const rect = el.getBoundingClientRect();
    if (rect.width === 0 || rect.height === 0) return;
    out.targetCount++;
    if (rect.width < 44 || rect.height < 44) out.smallTargetCount++;
  });

  document.querySelectorAll('p, li, span, td, div').forEach(el => {
    if (!el.childNodes.length) return;
    const hasText = Array.from(el.childNodes).some(
      n => n.nodeType === 3 && n.textContent.trim().length > 0);
    if (!hasText) return;
    out.textNodeCount++;
    const size = parseFloat(getComputedStyle(el).fontSize);
    if (size && size < 12) out.smallTextCount++;
  });

  const doc = document.documentElement;
  out.horizontalOverflow = Math.max(0, doc.scrollWidth - doc.clientWidth);

  return out;
})()`
