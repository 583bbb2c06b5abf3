package analyzers

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/auditmysite/internal/models"
	"github.com/ternarybob/auditmysite/internal/services/browser"
)

// Analyzer inspects one navigated page and produces its result section.
// Analyzers must not navigate or reconfigure the page's browsing context;
// those that need different emulation open their own sibling tab.
type Analyzer interface {
	Name() models.AnalyzerID
	DefaultTimeout() time.Duration
	Analyze(ctx context.Context, page *browser.Page, opts models.AuditOptions) (models.Section, error)
}

// NewSet builds the analyzer set for a run per the option toggles.
// Accessibility is always first; the rest follow in fixed order.
func NewSet(opts models.AuditOptions, logger arbor.ILogger) []Analyzer {
	set := []Analyzer{NewAccessibilityAnalyzer(logger)}
	if opts.EnablePerformance {
		set = append(set, NewPerformanceAnalyzer(logger))
	}
	if opts.EnableSEO {
		set = append(set, NewSEOAnalyzer(logger))
	}
	if opts.EnableContentWeight {
		set = append(set, NewContentWeightAnalyzer(logger))
	}
	if opts.EnableMobile {
		set = append(set, NewMobileAnalyzer(logger))
	}
	return set
}

// evalContext derives a context on the page's tab that also expires with
// the analyzer context. chromedp needs its own context chain, so the
// analyzer deadline is mirrored onto the tab rather than inherited.
func evalContext(ctx, tabCtx context.Context) (context.Context, context.CancelFunc) {
	var run context.Context
	var cancel context.CancelFunc
	if deadline, ok := ctx.Deadline(); ok {
		run, cancel = context.WithDeadline(tabCtx, deadline)
	} else {
		run, cancel = context.WithCancel(tabCtx)
	}

	stop := context.AfterFunc(ctx, cancel)
	return run, func() {
		stop()
		cancel()
	}
}

// clampScore bounds a score to 0-100
func clampScore(score float64) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return int(score + 0.5)
}
