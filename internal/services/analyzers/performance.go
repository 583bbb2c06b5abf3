package analyzers

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/auditmysite/internal/models"
	"github.com/ternarybob/auditmysite/internal/services/browser"
)

// metricThreshold holds the good/poor cut points for one web vital.
// Values between the two rate "needs-improvement".
type metricThreshold struct {
	good float64
	poor float64
}

// Web vital thresholds, milliseconds except CLS (unitless)
var vitalThresholds = map[string]metricThreshold{
	"fcp":  {good: 1800, poor: 3000},
	"lcp":  {good: 2500, poor: 4000},
	"cls":  {good: 0.1, poor: 0.25},
	"inp":  {good: 200, poor: 500},
	"ttfb": {good: 800, poor: 1800},
	"fid":  {good: 100, poor: 300},
	"tbt":  {good: 200, poor: 600},
	"si":   {good: 3400, poor: 5800},
}

// Per-metric score contribution by rating
const (
	ratingScoreGood = 100
	ratingScoreNI   = 60
	ratingScorePoor = 20
)

// vitalsSample is the raw metric set the in-page script reports. Negative
// values mean the metric was not observable for this load.
type vitalsSample struct {
	FCP  float64 `json:"fcp"`
	LCP  float64 `json:"lcp"`
	CLS  float64 `json:"cls"`
	INP  float64 `json:"inp"`
	TTFB float64 `json:"ttfb"`
	FID  float64 `json:"fid"`
	TBT  float64 `json:"tbt"`
	SI   float64 `json:"si"`
}

// PerformanceAnalyzer collects web vitals from the navigated page and scores
// them against fixed thresholds
type PerformanceAnalyzer struct {
	logger arbor.ILogger
}

func NewPerformanceAnalyzer(logger arbor.ILogger) *PerformanceAnalyzer {
	return &PerformanceAnalyzer{logger: logger}
}

func (a *PerformanceAnalyzer) Name() models.AnalyzerID { return models.AnalyzerPerformance }

func (a *PerformanceAnalyzer) DefaultTimeout() time.Duration { return 20 * time.Second }

func (a *PerformanceAnalyzer) Analyze(ctx context.Context, page *browser.Page, opts models.AuditOptions) (models.Section, error) {
	runCtx, cancel := evalContext(ctx, page.Ctx)
	defer cancel()

	var sample vitalsSample
	if err := chromedp.Run(runCtx, chromedp.Evaluate(vitalsScript, &sample)); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return buildPerformanceSection(sample), nil
}

// buildPerformanceSection rates each observed metric and derives the
// section score as the mean of rated metric contributions
func buildPerformanceSection(sample vitalsSample) *models.PerformanceSection {
	section := &models.PerformanceSection{}

	var total, count int
	add := func(name string, value float64) *models.Metric {
		if value < 0 {
			return nil
		}
		m := &models.Metric{Value: value, Rating: rateVital(name, value)}
		total += ratingScore(m.Rating)
		count++
		return m
	}

	section.FCP = add("fcp", sample.FCP)
	section.LCP = add("lcp", sample.LCP)
	section.CLS = add("cls", sample.CLS)
	section.INP = add("inp", sample.INP)
	section.TTFB = add("ttfb", sample.TTFB)
	section.FID = add("fid", sample.FID)
	section.TBT = add("tbt", sample.TBT)
	section.SI = add("si", sample.SI)

	if count == 0 {
		section.Score = 0
		section.Grade = models.GradeForScore(0)
		return section
	}

	section.Score = clampScore(float64(total) / float64(count))
	section.Grade = models.GradeForScore(section.Score)
	return section
}

// rateVital buckets a metric value against its thresholds
func rateVital(name string, value float64) models.MetricRating {
	t, ok := vitalThresholds[name]
	if !ok {
		return models.RatingPoor
	}
	switch {
	case value <= t.good:
		return models.RatingGood
	case value <= t.poor:
		return models.RatingNeedsImprovement
	default:
		return models.RatingPoor
	}
}

func ratingScore(rating models.MetricRating) int {
	switch rating {
	case models.RatingGood:
		return ratingScoreGood
	case models.RatingNeedsImprovement:
		return ratingScoreNI
	default:
		return ratingScorePoor
	}
}

// vitalsScript reads navigation and paint timing from the performance
// entries already recorded at analysis time. LCP and layout shift come from
// buffered PerformanceObserver entries; metrics with no entry report -1.
// Speed index is approximated from FCP and load completion since a true
// filmstrip is not available from timing entries alone.
const vitalsScript = `(() => {
  const out = { fcp: -1, lcp: -1, cls: -1, inp: -1, ttfb: -1, fid: -1, tbt: -1, si: -1 };

  const nav = performance.getEntriesByType('navigation')[0];
  if (nav) {
    out.ttfb = nav.responseStart - nav.startTime;
  }

  const paint = performance.getEntriesByName('first-contentful-paint');
  if (paint.length) out.fcp = paint[0].startTime;

  try {
    const po = new PerformanceObserver(() => {});
    const take = (type) => {
      try {
        po.observe({ type, buffered: true });
        const records = po.takeRecords();
        po.disconnect();
        return records;
      } catch (e) { return []; }
    };

    const lcpEntries = take('largest-contentful-paint');
    if (lcpEntries.length) out.lcp = lcpEntries[lcpEntries.length - 1].startTime;

    let cls = 0;
    take('layout-shift').forEach(e => { if (!e.hadRecentInput) cls += e.value; });
    out.cls = cls;

    const fidEntries = take('first-input');
    if (fidEntries.length) {
      out.fid = fidEntries[0].processingStart - fidEntries[0].startTime;
    }

    let inp = -1;
    take('event').forEach(e => { if (e.duration > inp) inp = e.duration; });
    out.inp = inp;

    let tbt = 0;
    take('longtask').forEach(e => {
      const afterFcp = out.fcp < 0 || e.startTime >= out.fcp;
      if (afterFcp && e.duration > 50) tbt += e.duration - 50;
    });
    out.tbt = tbt;
  } catch (e) { /* observer unsupported */ }

  if (nav && out.fcp >= 0 && nav.loadEventEnd > 0) {
    out.si = (out.fcp + nav.loadEventEnd) / 2;
  }

  return out;
})()`
