package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/auditmysite/internal/common"
	"github.com/ternarybob/auditmysite/internal/interfaces"
	"github.com/ternarybob/auditmysite/internal/models"
	"github.com/ternarybob/auditmysite/internal/services/browser"
	"github.com/ternarybob/auditmysite/internal/services/events"
	"github.com/ternarybob/auditmysite/internal/services/sitemap"
)

// Service is the audit engine facade: one call takes a sitemap URL to a
// complete run result. Progress is observable on the event bus while a run
// is in flight.
type Service struct {
	cfg      *common.Config
	bus      *events.Service
	parser   interfaces.SitemapParser
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewService creates the engine. The bus is shared with callers so they can
// subscribe before starting a run.
func NewService(cfg *common.Config, bus *events.Service, logger arbor.ILogger) *Service {
	if cfg == nil {
		cfg = common.NewDefaultConfig()
	}
	return &Service{
		cfg: cfg,
		bus: bus,
		parser: sitemap.NewParser(sitemap.Config{
			Timeout:  cfg.Sitemap.Timeout,
			MaxDepth: cfg.Sitemap.MaxDepth,
		}, nil, logger),
		validate: validator.New(),
		logger:   logger,
	}
}

// Events returns the engine's event bus
func (s *Service) Events() *events.Service { return s.bus }

// OnCallbacks attaches the deprecated callback surface to the bus and
// returns the subscription ids. New code should subscribe directly.
func (s *Service) OnCallbacks(cb events.LegacyCallbacks) []int {
	return events.AdaptLegacyCallbacks(s.bus, cb, s.logger)
}

// Run audits every page listed by the sitemap in opts and blocks until the
// run drains, fails, or ctx is cancelled. Per-page failures become records
// in the result; the returned error is non-nil only when the run itself
// could not proceed or was aborted.
func (s *Service) Run(ctx context.Context, opts models.AuditOptions) (*models.RunResult, error) {
	if err := s.validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid audit options: %w", err)
	}

	urls, err := s.parser.Parse(ctx, opts.SitemapURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFatal, err)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: sitemap lists no URLs", ErrFatal)
	}

	return s.RunURLs(ctx, opts, urls)
}

// RunURLs audits an explicit URL list, bypassing sitemap expansion. Used
// for resumed runs.
func (s *Service) RunURLs(ctx context.Context, opts models.AuditOptions, urls []string) (*models.RunResult, error) {
	if opts.MaxPages > 0 && len(urls) > opts.MaxPages {
		s.logger.Info().
			Int("sitemap_urls", len(urls)).
			Int("max_pages", opts.MaxPages).
			Msg("Capping run at max pages")
		urls = urls[:opts.MaxPages]
	}

	started := time.Now()
	runID := uuid.New().String()

	s.logger.Info().
		Str("run_id", runID).
		Str("sitemap_url", opts.SitemapURL).
		Int("url_count", len(urls)).
		Strs("analyzers", analyzerNames(opts)).
		Msg("Starting audit run")

	pool, err := browser.NewPool(s.poolConfig(opts), s.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFatal, err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := pool.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn().Err(err).Msg("Browser pool shutdown incomplete")
		}
	}()

	if s.cfg.Browser.WarmUp > 0 {
		if err := pool.WarmUp(s.cfg.Browser.WarmUp); err != nil {
			// Lazy launch still has a chance on first acquire
			s.logger.Warn().Err(err).Msg("Browser warm-up failed")
		}
	}

	// The abort path is late-bound: the monitor exists before the queue so
	// the queue can sample backpressure from its very first dispatch
	var queue *Queue
	monitor := NewMonitor(MonitorConfig{
		SoftMemoryMB:   s.cfg.Queue.SoftMemoryMB,
		SoftCPUPercent: s.cfg.Queue.SoftCPUPercent,
		Interval:       s.cfg.Queue.MonitorInterval,
	}, s.logger,
		func(paused bool, kind string, memMB, cpuPct float64) {
			s.bus.Publish(models.Event{
				Type:      models.EventResourceWarning,
				Timestamp: time.Now(),
				Payload: models.ResourceWarningPayload{
					Kind:          kind,
					MemoryUsageMB: memMB,
					CPUPercent:    cpuPct,
					Paused:        paused,
				},
			})
		},
		func() {
			if queue != nil {
				queue.Abort()
			}
		})

	orchestrator := NewOrchestrator(pool, s.bus, opts, s.logger)
	queue = NewQueue(s.queueConfig(opts), orchestrator.AuditPage, s.bus, monitor, s.logger)
	queue.Enqueue(urls)

	results, skipped, runErr := queue.Run(ctx)

	result := &models.RunResult{
		RunID:       runID,
		SitemapURL:  opts.SitemapURL,
		StartedAt:   started,
		DurationMs:  time.Since(started).Milliseconds(),
		Summary:     Summarize(results),
		Pages:       results,
		SkippedURLs: skipped,
	}

	s.logger.Info().
		Str("run_id", runID).
		Int("total", result.Summary.Total).
		Int("passed", result.Summary.Passed).
		Int("crashed", result.Summary.Crashed).
		Int("skipped", result.Summary.Skipped).
		Int64("duration_ms", result.DurationMs).
		Msg("Audit run finished")

	return result, runErr
}

// poolConfig derives browser pool settings from config and run options
func (s *Service) poolConfig(opts models.AuditOptions) browser.Config {
	cfg := browser.DefaultConfig()
	if s.cfg.Browser.MaxBrowsers > 0 {
		cfg.MaxBrowsers = s.cfg.Browser.MaxBrowsers
	}
	if s.cfg.Browser.MaxPagesPerBrowser > 0 {
		cfg.MaxPagesPerBrowser = s.cfg.Browser.MaxPagesPerBrowser
	}
	if s.cfg.Browser.MaxBrowserAge > 0 {
		cfg.MaxBrowserAge = s.cfg.Browser.MaxBrowserAge
	}
	if s.cfg.Browser.MaxIdle > 0 {
		cfg.MaxIdle = s.cfg.Browser.MaxIdle
	}
	cfg.Headless = s.cfg.Browser.Headless
	cfg.NoSandbox = s.cfg.Browser.NoSandbox
	cfg.LaunchArgs = s.cfg.Browser.LaunchArgs

	cfg.UserAgent = s.cfg.Browser.UserAgent
	if opts.UserAgent != "" {
		cfg.UserAgent = opts.UserAgent
	}
	return cfg
}

// queueConfig derives queue settings from config, with run options taking
// precedence
func (s *Service) queueConfig(opts models.AuditOptions) QueueConfig {
	cfg := QueueConfig{
		MaxConcurrent: s.cfg.Queue.MaxConcurrent,
		MaxRetries:    s.cfg.Queue.MaxRetries,
		RetryBackoff:  s.cfg.Queue.RetryBackoff,
		TaskTimeout:   s.cfg.Queue.TaskTimeout,
		ProgressEvery: s.cfg.Queue.ProgressEvery,
		DispatchRate:  s.cfg.Queue.DispatchRate,
	}
	if opts.MaxConcurrent > 0 {
		cfg.MaxConcurrent = opts.MaxConcurrent
	}
	if opts.MaxRetries > 0 {
		cfg.MaxRetries = opts.MaxRetries
	}
	if opts.TaskTimeout > 0 {
		cfg.TaskTimeout = opts.TaskTimeout
	}
	return cfg
}

// Summarize aggregates per-page outcomes into run totals
func Summarize(pages []*models.PageResult) models.RunSummary {
	summary := models.RunSummary{Total: len(pages)}

	var scoreSum, scoreCount int
	for _, page := range pages {
		switch page.Status {
		case models.PageStatusPassed:
			summary.Passed++
		case models.PageStatusFailed:
			summary.Failed++
		case models.PageStatusCrashed:
			summary.Crashed++
		case models.PageStatusHTTPError:
			summary.HTTPErrors++
		case models.PageStatusSkippedRedirect:
			summary.Skipped++
		case models.PageStatusCancelled:
			summary.Cancelled++
		}
		if page.Score != nil {
			scoreSum += *page.Score
			scoreCount++
		}
	}

	if scoreCount > 0 {
		summary.AverageScore = float64(scoreSum) / float64(scoreCount)
	}
	return summary
}

func analyzerNames(opts models.AuditOptions) []string {
	ids := opts.EnabledAnalyzers()
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = string(id)
	}
	return names
}
