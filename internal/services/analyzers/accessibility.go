package analyzers

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/auditmysite/internal/models"
	"github.com/ternarybob/auditmysite/internal/services/browser"
)

// Deduction caps for rule-engine scoring
const (
	errorDeduction   = 2.5
	warningDeduction = 1.0
	noticeDeduction  = 0.5
	errorCap         = 20.0
	warningCap       = 10.0
	noticeCap        = 5.0
)

// axeIssue is one finding reported by the in-page rule script
type axeIssue struct {
	ID          string `json:"id"`
	Impact      string `json:"impact"`
	Description string `json:"description"`
	Selector    string `json:"selector"`
	Context     string `json:"context"`
	HelpURL     string `json:"helpUrl"`
}

// axeReport is the rule script's output
type axeReport struct {
	Violations []axeIssue `json:"violations"`
}

// AccessibilityAnalyzer runs WCAG rule checks against the live page. The
// primary path injects a rule script and maps its findings; when script
// execution fails the analyzer falls back to coarse DOM counters over the
// captured HTML.
type AccessibilityAnalyzer struct {
	logger arbor.ILogger
}

func NewAccessibilityAnalyzer(logger arbor.ILogger) *AccessibilityAnalyzer {
	return &AccessibilityAnalyzer{logger: logger}
}

func (a *AccessibilityAnalyzer) Name() models.AnalyzerID { return models.AnalyzerAccessibility }

func (a *AccessibilityAnalyzer) DefaultTimeout() time.Duration { return 30 * time.Second }

func (a *AccessibilityAnalyzer) Analyze(ctx context.Context, page *browser.Page, opts models.AuditOptions) (models.Section, error) {
	if page.Ctx != nil {
		section, err := a.runRuleEngine(ctx, page, opts)
		if err == nil {
			return section, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.logger.Warn().
			Err(err).
			Str("url", page.URL).
			Msg("Rule engine failed, falling back to heuristic checks")
	}

	return a.runHeuristic(page)
}

// runRuleEngine executes the injected rule script on the live page
func (a *AccessibilityAnalyzer) runRuleEngine(ctx context.Context, page *browser.Page, opts models.AuditOptions) (*models.AccessibilitySection, error) {
	script := buildRuleScript(opts.Standard)

	runCtx, cancel := evalContext(ctx, page.Ctx)
	defer cancel()

	var report axeReport
	if err := chromedp.Run(runCtx, chromedp.Evaluate(script, &report)); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	section := &models.AccessibilitySection{}
	for _, v := range report.Violations {
		severity := severityForImpact(v.Impact)
		issue := models.AccessibilityIssue{
			Code:     v.ID,
			Message:  v.Description,
			Severity: severity,
			Selector: v.Selector,
			Context:  v.Context,
			HelpURL:  v.HelpURL,
		}
		section.Issues = append(section.Issues, issue)

		switch severity {
		case models.SeverityError:
			section.Errors = append(section.Errors, v.Description)
		case models.SeverityWarning:
			section.Warnings = append(section.Warnings, v.Description)
		default:
			section.Notices = append(section.Notices, v.Description)
		}
	}

	section.Score = ScoreFromIssueCounts(len(section.Errors), len(section.Warnings), len(section.Notices))
	return section, nil
}

// runHeuristic derives coarse counters from the captured HTML
func (a *AccessibilityAnalyzer) runHeuristic(page *browser.Page) (*models.AccessibilitySection, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, err
	}

	section := &models.AccessibilitySection{Heuristic: true}

	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		if alt, exists := sel.Attr("alt"); !exists || strings.TrimSpace(alt) == "" {
			if _, decorative := sel.Attr("role"); !decorative {
				section.ImagesWithoutAlt++
			}
		}
	})

	doc.Find("button").Each(func(_ int, sel *goquery.Selection) {
		if strings.TrimSpace(sel.Text()) != "" {
			return
		}
		if label, exists := sel.Attr("aria-label"); exists && strings.TrimSpace(label) != "" {
			return
		}
		if _, exists := sel.Attr("aria-labelledby"); exists {
			return
		}
		section.ButtonsWithoutLabel++
	})

	section.HeadingsCount = doc.Find("h1, h2, h3, h4, h5, h6").Length()

	// Missing form labels count as heuristic errors
	errorCount := 0
	doc.Find("input").Each(func(_ int, sel *goquery.Selection) {
		inputType, _ := sel.Attr("type")
		switch inputType {
		case "hidden", "submit", "button", "reset", "image":
			return
		}
		if id, exists := sel.Attr("id"); exists && doc.Find("label[for='"+id+"']").Length() > 0 {
			return
		}
		if _, exists := sel.Attr("aria-label"); exists {
			return
		}
		errorCount++
	})
	warningCount := 0
	if doc.Find("html[lang]").Length() == 0 {
		warningCount++
	}

	section.Score = HeuristicScore(errorCount, warningCount, section.ImagesWithoutAlt, section.ButtonsWithoutLabel, section.HeadingsCount)
	return section, nil
}

// ScoreFromIssueCounts applies the rule-engine deduction model: 2.5 points
// per error capped at 20, 1 per warning capped at 10, 0.5 per notice capped
// at 5.
func ScoreFromIssueCounts(errors, warnings, notices int) int {
	deduction := 0.0

	e := float64(errors) * errorDeduction
	if e > errorCap {
		e = errorCap
	}
	w := float64(warnings) * warningDeduction
	if w > warningCap {
		w = warningCap
	}
	n := float64(notices) * noticeDeduction
	if n > noticeCap {
		n = noticeCap
	}
	deduction = e + w + n

	return clampScore(100 - deduction)
}

// HeuristicScore applies the fallback deduction model used when the rule
// engine is unavailable
func HeuristicScore(errors, warnings, imagesWithoutAlt, buttonsWithoutLabel, headingsCount int) int {
	score := 100.0
	score -= float64(errors) * 15
	score -= float64(warnings) * 5
	score -= float64(imagesWithoutAlt) * 3
	score -= float64(buttonsWithoutLabel) * 5
	if headingsCount == 0 {
		score -= 20
	}
	return clampScore(score)
}

// severityForImpact maps rule-engine impact levels to issue severities
func severityForImpact(impact string) models.IssueSeverity {
	switch impact {
	case "critical", "serious":
		return models.SeverityError
	case "moderate":
		return models.SeverityWarning
	default:
		return models.SeverityNotice
	}
}

// buildRuleScript returns the in-page rule engine for the requested
// standard. The script is self-contained and returns an axe-shaped report.
func buildRuleScript(standard models.AccessibilityStandard) string {
	includeAAA := "false"
	if standard == models.StandardWCAG2AAA {
		includeAAA = "true"
	}
	return strings.Replace(accessibilityRuleScript, "__INCLUDE_AAA__", includeAAA, 1)
}

const accessibilityRuleScript = `(() => {
  const includeAAA = __INCLUDE_AAA__;
  const violations = [];
  const push = (id, impact, description, el, helpUrl) => {
    violations.push({
      id, impact, description,
      selector: el ? (el.id ? '#' + el.id : el.tagName.toLowerCase()) : '',
      context: el ? el.outerHTML.slice(0, 200) : '',
      helpUrl: helpUrl || ''
    });
  };

  // image-alt: images require alternative text
  document.querySelectorAll('img').forEach(el => {
    const role = el.getAttribute('role');
    if (role === 'presentation' || role === 'none') return;
    const alt = el.getAttribute('alt');
    if (alt === null) {
      push('image-alt', 'critical', 'Image element missing alt attribute', el,
        'https://www.w3.org/WAI/WCAG21/Understanding/non-text-content');
    }
  });

  // button-name: buttons require an accessible name
  document.querySelectorAll('button, [role="button"]').forEach(el => {
    const text = (el.textContent || '').trim();
    const label = el.getAttribute('aria-label');
    const labelledBy = el.getAttribute('aria-labelledby');
    const title = el.getAttribute('title');
    if (!text && !label && !labelledBy && !title) {
      push('button-name', 'critical', 'Button has no accessible name', el,
        'https://www.w3.org/WAI/WCAG21/Understanding/name-role-value');
    }
  });

  // link-name: links require discernible text
  document.querySelectorAll('a[href]').forEach(el => {
    const text = (el.textContent || '').trim();
    const label = el.getAttribute('aria-label');
    const img = el.querySelector('img[alt]');
    if (!text && !label && !(img && img.getAttribute('alt').trim())) {
      push('link-name', 'serious', 'Link has no discernible text', el,
        'https://www.w3.org/WAI/WCAG21/Understanding/link-purpose-in-context');
    }
  });

  // label: form inputs require labels
  document.querySelectorAll('input, select, textarea').forEach(el => {
    const type = (el.getAttribute('type') || '').toLowerCase();
    if (['hidden', 'submit', 'button', 'reset', 'image'].includes(type)) return;
    const id = el.getAttribute('id');
    const hasLabel = id && document.querySelector('label[for="' + CSS.escape(id) + '"]');
    const ariaLabel = el.getAttribute('aria-label') || el.getAttribute('aria-labelledby');
    if (!hasLabel && !ariaLabel) {
      push('label', 'critical', 'Form element has no associated label', el,
        'https://www.w3.org/WAI/WCAG21/Understanding/labels-or-instructions');
    }
  });

  // html-has-lang
  if (!document.documentElement.getAttribute('lang')) {
    push('html-has-lang', 'serious', 'Document element missing lang attribute', document.documentElement,
      'https://www.w3.org/WAI/WCAG21/Understanding/language-of-page');
  }

  // document-title
  if (!(document.title || '').trim()) {
    push('document-title', 'serious', 'Document has no title', null,
      'https://www.w3.org/WAI/WCAG21/Understanding/page-titled');
  }

  // heading-order: heading levels should not skip
  let lastLevel = 0;
  document.querySelectorAll('h1, h2, h3, h4, h5, h6').forEach(el => {
    const level = parseInt(el.tagName[1], 10);
    if (lastLevel && level > lastLevel + 1) {
      push('heading-order', 'moderate', 'Heading level skipped', el,
        'https://www.w3.org/WAI/WCAG21/Understanding/info-and-relationships');
    }
    lastLevel = level;
  });

  // page-has-heading-one
  if (!document.querySelector('h1')) {
    push('page-has-heading-one', 'moderate', 'Page has no level-one heading', null,
      'https://www.w3.org/WAI/WCAG21/Understanding/info-and-relationships');
  }

  // tabindex: positive tabindex disrupts focus order
  document.querySelectorAll('[tabindex]').forEach(el => {
    const v = parseInt(el.getAttribute('tabindex'), 10);
    if (v > 0) {
      push('tabindex', 'moderate', 'Element has a positive tabindex', el,
        'https://www.w3.org/WAI/WCAG21/Understanding/focus-order');
    }
  });

  // frame-title
  document.querySelectorAll('iframe').forEach(el => {
    if (!(el.getAttribute('title') || '').trim()) {
      push('frame-title', 'serious', 'Frame has no title attribute', el,
        'https://www.w3.org/WAI/WCAG21/Understanding/name-role-value');
    }
  });

  // meta-viewport: user scaling must not be disabled
  const viewport = document.querySelector('meta[name="viewport"]');
  if (viewport && /user-scalable\s*=\s*no|maximum-scale\s*=\s*1(\.0)?(\D|$)/.test(viewport.content || '')) {
    push('meta-viewport', 'minor', 'Viewport disables user scaling', viewport,
      'https://www.w3.org/WAI/WCAG21/Understanding/resize-text');
  }

  if (includeAAA) {
    // target-size: small interactive targets (AAA)
    document.querySelectorAll('a[href], button').forEach(el => {
      const rect = el.getBoundingClientRect();
      if (rect.width > 0 && (rect.width < 24 || rect.height < 24)) {
        push('target-size', 'minor', 'Interactive target smaller than 24px', el,
          'https://www.w3.org/WAI/WCAG22/Understanding/target-size-minimum');
      }
    });
  }

  return { violations };
})()`
