package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/auditmysite/internal/models"
	"github.com/ternarybob/auditmysite/internal/services/analyzers"
	"github.com/ternarybob/auditmysite/internal/services/browser"
	"github.com/ternarybob/auditmysite/internal/services/events"
)

// Orchestrator audits one page at a time: lease a tab, navigate, watch the
// network, then hand the loaded page to the analyzer set. It implements the
// queue's Runner contract: skips come back as results, failures as errors
// for the retry policy to classify.
type Orchestrator struct {
	pool   *browser.Pool
	bus    *events.Service
	opts   models.AuditOptions
	set    []analyzers.Analyzer
	logger arbor.ILogger
}

func NewOrchestrator(pool *browser.Pool, bus *events.Service, opts models.AuditOptions, logger arbor.ILogger) *Orchestrator {
	return &Orchestrator{
		pool:   pool,
		bus:    bus,
		opts:   opts,
		set:    analyzers.NewSet(opts, logger),
		logger: logger,
	}
}

// AuditPage runs one audit attempt for a task
func (o *Orchestrator) AuditPage(ctx context.Context, task *models.URLTask) (*models.PageResult, error) {
	lease, err := o.pool.Acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrBrowserCrash, err)
	}
	defer lease.Release()

	// Tab context honoring the attempt deadline
	tabCtx, cancel := tabContext(ctx, lease.Ctx)
	defer cancel()

	watcher := newRedirectWatcher(task.URL)
	tally := browser.NewResourceTally()
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			watcher.OnRequestWillBeSent(e)
		case *network.EventResponseReceived:
			watcher.OnResponseReceived(e)
			tally.OnResponse(e.RequestID, e.Type, e.Response.MimeType)
		case *network.EventLoadingFinished:
			tally.OnLoadingFinished(e.RequestID, int64(e.EncodedDataLength))
		}
	})

	var finalURL, title string
	navActions := []chromedp.Action{network.Enable()}
	if o.opts.UserAgent != "" {
		navActions = append(navActions, emulation.SetUserAgentOverride(o.opts.UserAgent))
	}
	if o.opts.Viewport.Width > 0 && o.opts.Viewport.Height > 0 {
		navActions = append(navActions,
			emulation.SetDeviceMetricsOverride(int64(o.opts.Viewport.Width), int64(o.opts.Viewport.Height), 1, false))
	}
	navActions = append(navActions,
		chromedp.Navigate(task.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&finalURL),
		chromedp.Title(&title),
	)

	if err := chromedp.Run(tabCtx, navActions...); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrNavigation, task.URL, err)
	}

	if status := watcher.StatusCode(); status >= 400 {
		return nil, &HTTPStatusError{StatusCode: status, URL: task.URL}
	}

	redirect := watcher.Evaluate(finalURL)
	if redirect.IsRedirect && o.opts.SkipRedirects {
		o.logger.Debug().
			Str("url", task.URL).
			Str("final_url", finalURL).
			Str("redirect_type", redirect.RedirectType).
			Msg("Skipping redirected page")
		return NewRedirectSkip(task.URL, redirect), nil
	}

	html, err := captureHTML(tabCtx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: capture html: %v", ErrBrowserCrash, err)
	}

	page := &browser.Page{
		URL:        task.URL,
		FinalURL:   finalURL,
		Title:      title,
		StatusCode: watcher.StatusCode(),
		HTML:       html,
		Ctx:        tabCtx,
		Resources:  tally,
	}

	result := newResult(task.URL, models.PageStatusFailed)
	result.FinalURL = finalURL
	result.Title = title
	result.StatusCode = page.StatusCode
	if redirect.IsRedirect || redirect.URLChanged {
		r := redirect
		result.Redirect = &r
	}

	o.runAnalyzers(ctx, page, result)
	FinalizeResult(result)

	if o.opts.CaptureScreenshots {
		result.Screenshots = o.captureScreenshots(tabCtx, task.URL, finalURL)
	}

	return result, nil
}

// runAnalyzers executes the analyzer set against a loaded page.
// Accessibility runs first and alone; the remaining analyzers run
// concurrently. An analyzer failure drops its section and records a
// warning, it never fails the page.
func (o *Orchestrator) runAnalyzers(ctx context.Context, page *browser.Page, result *models.PageResult) {
	if len(o.set) == 0 {
		return
	}

	var mu sync.Mutex
	run := func(a analyzers.Analyzer) {
		timeout := o.opts.AnalyzerTimeout
		if timeout <= 0 {
			timeout = a.DefaultTimeout()
		}
		aCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		section, err := a.Analyze(aCtx, page, o.opts)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			result.AnalyzerWarnings = append(result.AnalyzerWarnings,
				fmt.Sprintf("%s: %v", a.Name(), err))
			o.bus.Publish(models.Event{
				Type:      models.EventAnalyzerWarning,
				Timestamp: time.Now(),
				Payload:   models.AnalyzerWarningPayload{URL: page.URL, Analyzer: a.Name(), Error: err.Error()},
			})
			return
		}
		attachSection(result, section)
	}

	run(o.set[0])

	var wg sync.WaitGroup
	for _, a := range o.set[1:] {
		wg.Add(1)
		go func(a analyzers.Analyzer) {
			defer wg.Done()
			run(a)
		}(a)
	}
	wg.Wait()
}

// captureScreenshots grabs a desktop shot from the audited tab and a mobile
// shot from a short-lived sibling tab under phone emulation. Capture
// failures are logged and leave the corresponding image empty.
func (o *Orchestrator) captureScreenshots(tabCtx context.Context, url, finalURL string) *models.Screenshots {
	shots := &models.Screenshots{}

	if err := chromedp.Run(tabCtx, chromedp.CaptureScreenshot(&shots.Desktop)); err != nil {
		o.logger.Warn().Err(err).Str("url", url).Msg("Desktop screenshot capture failed")
	}

	target := finalURL
	if target == "" {
		target = url
	}
	mobileCtx, cancel := chromedp.NewContext(tabCtx)
	defer cancel()
	err := chromedp.Run(mobileCtx,
		emulation.SetDeviceMetricsOverride(375, 812, 3, true),
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.CaptureScreenshot(&shots.Mobile),
	)
	if err != nil {
		o.logger.Warn().Err(err).Str("url", url).Msg("Mobile screenshot capture failed")
	}

	if len(shots.Desktop) == 0 && len(shots.Mobile) == 0 {
		return nil
	}
	return shots
}

// attachSection places an analyzer's output on the result
func attachSection(result *models.PageResult, section models.Section) {
	switch s := section.(type) {
	case *models.AccessibilitySection:
		result.Accessibility = s
	case *models.PerformanceSection:
		result.Performance = s
	case *models.SEOSection:
		result.SEO = s
	case *models.ContentWeightSection:
		result.ContentWeight = s
	case *models.MobileSection:
		result.Mobile = s
	}
}

// captureHTML serializes the full document. Retried once because the DOM
// agent occasionally races the load.
func captureHTML(tabCtx context.Context) (string, error) {
	var html string
	capture := chromedp.ActionFunc(func(ctx context.Context) error {
		node, err := dom.GetDocument().Do(ctx)
		if err != nil {
			return err
		}
		html, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
		return err
	})

	err := chromedp.Run(tabCtx, capture)
	if err != nil {
		err = chromedp.Run(tabCtx, capture)
	}
	return html, err
}

// tabContext derives a context from the lease tab that also expires with
// the attempt context. chromedp requires its own context chain, so the
// attempt deadline is mirrored instead of inherited.
func tabContext(ctx, leaseCtx context.Context) (context.Context, context.CancelFunc) {
	var tabCtx context.Context
	var cancel context.CancelFunc
	if deadline, ok := ctx.Deadline(); ok {
		tabCtx, cancel = context.WithDeadline(leaseCtx, deadline)
	} else {
		tabCtx, cancel = context.WithCancel(leaseCtx)
	}

	stop := context.AfterFunc(ctx, cancel)
	return tabCtx, func() {
		stop()
		cancel()
	}
}
