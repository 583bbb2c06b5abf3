package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
)

var (
	// ErrPoolClosed is returned by Acquire after Shutdown
	ErrPoolClosed = errors.New("browser pool closed")

	// ErrLaunchFailed is returned when a browser could not be started
	// after all launch retries
	ErrLaunchFailed = errors.New("browser launch failed")
)

const launchRetries = 3

// Config holds configuration for the browser pool
type Config struct {
	MaxBrowsers         int           `json:"max_browsers"`
	MaxPagesPerBrowser  int           `json:"max_pages_per_browser"`  // Concurrent tabs per browser
	MaxLeasesPerBrowser int           `json:"max_leases_per_browser"` // Total leases before recycle
	MaxBrowserAge       time.Duration `json:"max_browser_age"`        // Recycle browsers older than this
	MaxIdle             time.Duration `json:"max_idle"`               // Recycle browsers idle longer than this
	LaunchTimeout       time.Duration `json:"launch_timeout"`
	Headless            bool          `json:"headless"`
	NoSandbox           bool          `json:"no_sandbox"`
	UserAgent           string        `json:"user_agent"`
	LaunchArgs          []string      `json:"launch_args"`
}

// DefaultConfig returns pool defaults suitable for a single-host audit run
func DefaultConfig() Config {
	return Config{
		MaxBrowsers:         2,
		MaxPagesPerBrowser:  4,
		MaxLeasesPerBrowser: 20,
		MaxBrowserAge:       10 * time.Minute,
		MaxIdle:             2 * time.Minute,
		LaunchTimeout:       30 * time.Second,
		Headless:            true,
		NoSandbox:           true,
	}
}

// Metrics is a snapshot of pool activity
type Metrics struct {
	Launched     int `json:"launched"`
	Recycled     int `json:"recycled"`
	LeasesServed int `json:"leases_served"`
	ActiveLeases int `json:"active_leases"`
	Browsers     int `json:"browsers"`
}

// Lease is one isolated browsing context checked out of the pool. The Ctx is
// a fresh tab in one of the pooled browsers; no page state survives between
// leases. Release is idempotent.
type Lease struct {
	BrowserID  string
	ContextID  string
	Ctx        context.Context
	AcquiredAt time.Time

	release func()
	once    sync.Once
}

// Release returns the lease's capacity to the pool and closes the tab.
// Safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(l.release)
}

// browserInstance is one managed browser process
type browserInstance struct {
	id           string
	ctx          context.Context
	cancel       context.CancelFunc
	allocCancel  context.CancelFunc
	createdAt    time.Time
	idleSince    time.Time // last time the browser had no active leases
	leasesServed int
	activeLeases int
	retired      bool // no new leases; torn down once active leases drain
}

// launchFunc starts a browser process and returns its context plus the
// browser and allocator cancel funcs. Swappable in tests.
type launchFunc func(cfg Config) (context.Context, context.CancelFunc, context.CancelFunc, error)

// tabFunc opens a fresh tab context in an existing browser
type tabFunc func(browserCtx context.Context) (context.Context, context.CancelFunc)

// Pool manages a fixed set of browser processes and hands out isolated tab
// contexts as leases. Total lease capacity is MaxBrowsers*MaxPagesPerBrowser;
// Acquire blocks when capacity is exhausted.
type Pool struct {
	cfg    Config
	logger arbor.ILogger

	slots chan struct{}
	done  chan struct{} // closed on Shutdown; unblocks waiting Acquires

	mu       sync.Mutex
	browsers []*browserInstance
	closed   bool
	metrics  Metrics

	launch launchFunc
	newTab tabFunc
}

// NewPool creates a browser pool. Browsers launch lazily on first Acquire
// unless WarmUp is called.
func NewPool(cfg Config, logger arbor.ILogger) (*Pool, error) {
	if cfg.MaxBrowsers <= 0 {
		return nil, fmt.Errorf("max_browsers must be greater than 0, got: %d", cfg.MaxBrowsers)
	}
	if cfg.MaxPagesPerBrowser <= 0 {
		return nil, fmt.Errorf("max_pages_per_browser must be greater than 0, got: %d", cfg.MaxPagesPerBrowser)
	}
	if cfg.MaxLeasesPerBrowser <= 0 {
		cfg.MaxLeasesPerBrowser = 20
	}
	if cfg.LaunchTimeout <= 0 {
		cfg.LaunchTimeout = 30 * time.Second
	}
	if cfg.MaxBrowsers > 8 {
		logger.Warn().
			Int("max_browsers", cfg.MaxBrowsers).
			Msg("Large browser pool size detected - this may consume significant memory")
	}

	capacity := cfg.MaxBrowsers * cfg.MaxPagesPerBrowser
	slots := make(chan struct{}, capacity)
	for i := 0; i < capacity; i++ {
		slots <- struct{}{}
	}

	return &Pool{
		cfg:    cfg,
		logger: logger,
		slots:  slots,
		done:   make(chan struct{}),
		launch: launchChrome,
		newTab: newChromeTab,
	}, nil
}

// WarmUp launches up to n browsers ahead of demand
func (p *Pool) WarmUp(n int) error {
	if n > p.cfg.MaxBrowsers {
		n = p.cfg.MaxBrowsers
	}

	for i := 0; i < n; i++ {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return ErrPoolClosed
		}
		count := len(p.browsers)
		p.mu.Unlock()

		if count >= n {
			break
		}

		inst, err := p.launchInstance()
		if err != nil {
			return err
		}

		p.mu.Lock()
		p.browsers = append(p.browsers, inst)
		p.mu.Unlock()
	}

	p.logger.Debug().Int("warm_browsers", n).Msg("Browser pool warmed up")
	return nil
}

// Acquire blocks until lease capacity is available, then returns a fresh
// isolated tab context in a healthy browser. The caller must Release the
// lease.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, ErrPoolClosed
	case <-p.slots:
	}

	lease, err := p.acquireWithSlot()
	if err != nil {
		p.returnSlot()
		return nil, err
	}
	return lease, nil
}

// acquireWithSlot finds or launches a browser and opens a tab. The caller
// already holds a capacity slot.
func (p *Pool) acquireWithSlot() (*Lease, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}

	p.sweepLocked()

	inst := p.pickLocked()
	needLaunch := inst == nil && p.liveCountLocked() < p.cfg.MaxBrowsers
	p.mu.Unlock()

	if needLaunch {
		launched, err := p.launchInstance()
		if err != nil {
			return nil, err
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			launched.cancel()
			launched.allocCancel()
			return nil, ErrPoolClosed
		}
		if p.liveCountLocked() >= p.cfg.MaxBrowsers {
			// A concurrent acquire launched first; discard the extra browser
			p.mu.Unlock()
			launched.cancel()
			launched.allocCancel()
		} else {
			p.browsers = append(p.browsers, launched)
			inst = launched
			p.mu.Unlock()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if inst == nil {
		inst = p.pickLocked()
	}
	if inst == nil {
		// Capacity accounting guarantees a browser has room whenever a slot
		// was available, unless every browser just got retired
		return nil, fmt.Errorf("%w: no healthy browser available", ErrLaunchFailed)
	}

	tabCtx, tabCancel := p.newTab(inst.ctx)

	inst.activeLeases++
	inst.leasesServed++
	p.metrics.LeasesServed++
	p.metrics.ActiveLeases++

	if inst.leasesServed >= p.cfg.MaxLeasesPerBrowser {
		inst.retired = true
	}

	lease := &Lease{
		BrowserID:  inst.id,
		ContextID:  uuid.NewString(),
		Ctx:        tabCtx,
		AcquiredAt: time.Now(),
	}
	lease.release = func() {
		tabCancel()
		p.releaseLease(inst)
	}

	p.logger.Debug().
		Str("browser_id", inst.id).
		Str("context_id", lease.ContextID).
		Int("active_leases", inst.activeLeases).
		Msg("Browser context leased")

	return lease, nil
}

// releaseLease returns a lease's capacity and tears down retired browsers
// once they drain
func (p *Pool) releaseLease(inst *browserInstance) {
	p.mu.Lock()
	inst.activeLeases--
	p.metrics.ActiveLeases--
	if inst.activeLeases == 0 {
		inst.idleSince = time.Now()
	}
	teardown := inst.retired && inst.activeLeases == 0
	if teardown {
		p.removeLocked(inst)
		p.metrics.Recycled++
	}
	p.mu.Unlock()

	if teardown {
		inst.cancel()
		inst.allocCancel()
		p.logger.Debug().
			Str("browser_id", inst.id).
			Int("leases_served", inst.leasesServed).
			Msg("Browser recycled")
	}

	p.returnSlot()
}

// returnSlot hands a capacity slot back. The slots channel is never closed,
// so a release racing Shutdown cannot panic; a closed pool simply never
// consumes the slot again.
func (p *Pool) returnSlot() {
	select {
	case p.slots <- struct{}{}:
	default:
	}
}

// pickLocked returns the live browser with the fewest active leases that
// still has tab headroom
func (p *Pool) pickLocked() *browserInstance {
	var best *browserInstance
	for _, b := range p.browsers {
		if b.retired || b.ctx.Err() != nil {
			continue
		}
		if b.activeLeases >= p.cfg.MaxPagesPerBrowser {
			continue
		}
		if best == nil || b.activeLeases < best.activeLeases {
			best = b
		}
	}
	return best
}

// sweepLocked retires dead and over-age browsers
func (p *Pool) sweepLocked() {
	for _, b := range p.browsers {
		if b.retired {
			continue
		}
		if b.ctx.Err() != nil {
			b.retired = true
			p.logger.Warn().Str("browser_id", b.id).Msg("Browser disconnected, retiring")
		} else if p.cfg.MaxBrowserAge > 0 && time.Since(b.createdAt) > p.cfg.MaxBrowserAge {
			b.retired = true
			p.logger.Debug().Str("browser_id", b.id).Msg("Browser over max age, retiring")
		} else if p.cfg.MaxIdle > 0 && b.activeLeases == 0 && time.Since(b.idleSince) > p.cfg.MaxIdle {
			b.retired = true
			p.logger.Debug().Str("browser_id", b.id).Msg("Browser idle too long, retiring")
		}
		if b.retired && b.activeLeases == 0 {
			p.removeLocked(b)
			p.metrics.Recycled++
			b.cancel()
			b.allocCancel()
		}
	}
}

func (p *Pool) liveCountLocked() int {
	count := 0
	for _, b := range p.browsers {
		if !b.retired {
			count++
		}
	}
	return count
}

func (p *Pool) removeLocked(inst *browserInstance) {
	for i, b := range p.browsers {
		if b == inst {
			p.browsers = append(p.browsers[:i], p.browsers[i+1:]...)
			return
		}
	}
}

// launchInstance starts a browser with retries and exponential backoff
func (p *Pool) launchInstance() (*browserInstance, error) {
	var lastErr error
	backoff := 500 * time.Millisecond

	for attempt := 1; attempt <= launchRetries; attempt++ {
		startTime := time.Now()
		ctx, cancel, allocCancel, err := p.launch(p.cfg)
		if err == nil {
			inst := &browserInstance{
				id:          uuid.NewString(),
				ctx:         ctx,
				cancel:      cancel,
				allocCancel: allocCancel,
				createdAt:   time.Now(),
				idleSince:   time.Now(),
			}
			p.mu.Lock()
			p.metrics.Launched++
			p.mu.Unlock()
			p.logger.Debug().
				Str("browser_id", inst.id).
				Dur("startup_time", time.Since(startTime)).
				Int("attempt", attempt).
				Msg("Browser launched")
			return inst, nil
		}

		lastErr = err
		p.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Msg("Browser launch attempt failed")

		if attempt < launchRetries {
			time.Sleep(backoff)
			backoff *= 2
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrLaunchFailed, launchRetries, lastErr)
}

// GetMetrics returns a snapshot of pool activity
func (p *Pool) GetMetrics() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()

	m := p.metrics
	m.Browsers = len(p.browsers)
	return m
}

// Shutdown waits for active leases to drain, then tears down every browser.
// After the grace period expires browsers are cancelled regardless.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	startTime := time.Now()

	// Drain: wait for every lease to come back
	drained := make(chan struct{})
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			p.mu.Lock()
			active := p.metrics.ActiveLeases
			p.mu.Unlock()
			if active == 0 {
				close(drained)
				return
			}
			select {
			case <-ctx.Done():
				close(drained)
				return
			case <-ticker.C:
			}
		}
	}()
	<-drained

	p.mu.Lock()
	browsers := p.browsers
	p.browsers = nil
	p.mu.Unlock()

	for _, b := range browsers {
		b.cancel()
		b.allocCancel()
	}

	p.logger.Info().
		Int("browsers_shutdown", len(browsers)).
		Dur("shutdown_time", time.Since(startTime)).
		Msg("Browser pool shut down")

	return nil
}

// launchChrome starts a headless Chrome process and verifies it responds
func launchChrome(cfg Config) (context.Context, context.CancelFunc, context.CancelFunc, error) {
	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", cfg.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-timer-throttling", false),
		chromedp.Flag("disable-backgrounding-occluded-windows", false),
		chromedp.Flag("disable-renderer-backgrounding", false),
	)
	if cfg.UserAgent != "" {
		allocatorOpts = append(allocatorOpts, chromedp.UserAgent(cfg.UserAgent))
	}
	for _, arg := range cfg.LaunchArgs {
		allocatorOpts = append(allocatorOpts, chromedp.Flag(arg, true))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Startup probe
	testCtx, testCancel := context.WithTimeout(browserCtx, cfg.LaunchTimeout)
	defer testCancel()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocCancel()
		return nil, nil, nil, fmt.Errorf("browser failed startup test: %w", err)
	}

	return browserCtx, browserCancel, allocCancel, nil
}

// newChromeTab opens a fresh tab context in an existing browser
func newChromeTab(browserCtx context.Context) (context.Context, context.CancelFunc) {
	return chromedp.NewContext(browserCtx)
}
