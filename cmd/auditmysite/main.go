package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/auditmysite/internal/common"
	"github.com/ternarybob/auditmysite/internal/interfaces"
	"github.com/ternarybob/auditmysite/internal/models"
	"github.com/ternarybob/auditmysite/internal/services/audit"
	"github.com/ternarybob/auditmysite/internal/services/events"
	"github.com/ternarybob/auditmysite/internal/services/report"
	"github.com/ternarybob/auditmysite/internal/services/state"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	// Command-line flags
	configFiles configPaths
	maxPages    = flag.Int("max-pages", 0, "Cap on URLs taken from the sitemap (overrides config)")
	format      = flag.String("format", "", "Report format: json, markdown, html (overrides config)")
	outputDir   = flag.String("output-dir", "", "Report output directory (overrides config)")
	budget      = flag.String("budget", "", "Content weight budget template: default, ecommerce, blog, corporate")
	noPerf      = flag.Bool("no-performance", false, "Disable the performance analyzer")
	noSEO       = flag.Bool("no-seo", false, "Disable the SEO analyzer")
	noWeight    = flag.Bool("no-content-weight", false, "Disable the content weight analyzer")
	noMobile    = flag.Bool("no-mobile", false, "Disable the mobile analyzer")
	resumeID    = flag.String("resume", "", "Resume a saved run by ID")
	saveState   = flag.Bool("save-state", false, "Persist run state so an interrupted run can be resumed")
	listStates  = flag.Bool("list-states", false, "List saved run states and exit")
	quietDeprec = flag.Bool("quiet-deprecations", false, "Suppress deprecation notices")
	expert      = flag.Bool("expert", false, "Prompt for advanced options before the run")
	nonInteract = flag.Bool("non-interactive", false, "Never prompt; run with flags and config as-is")
	verbose     = flag.Bool("verbose", false, "Debug logging")
	verboseV    = flag.Bool("v", false, "Debug logging (shorthand)")
	showVersion = flag.Bool("version", false, "Print version information")

	// Global state
	config *common.Config
	logger arbor.ILogger
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("AuditMySite version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	if *quietDeprec {
		os.Setenv("AUDITMYSITE_SUPPRESS_DEPRECATIONS", "1")
	}

	// Startup sequence (REQUIRED ORDER):
	// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
	// 2. Apply CLI overrides (highest priority)
	// 3. Initialize logger
	// 4. Print banner
	var err error

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("auditmysite.toml"); err == nil {
			configFiles = append(configFiles, "auditmysite.toml")
		}
	}

	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration files")
		os.Exit(1)
	}

	applyFlagOverrides(config)

	logger = common.InitLogger(config)
	common.PrintBanner(common.LoadVersionFromFile())

	if *listStates {
		os.Exit(runListStates())
	}

	os.Exit(runAudit())
}

// applyFlagOverrides applies command-line flags on top of the loaded
// configuration. Flags are the highest-priority source.
func applyFlagOverrides(config *common.Config) {
	if *maxPages > 0 {
		config.Audit.MaxPages = *maxPages
	}
	if *format != "" {
		config.Report.Format = *format
	}
	if *outputDir != "" {
		config.Report.OutputDir = *outputDir
	}
	if *budget != "" {
		config.Audit.BudgetTemplate = *budget
	}
	if *verbose || *verboseV {
		config.Logging.Level = "debug"
	}
}

// runListStates prints the saved run states
func runListStates() int {
	store, err := state.NewStore(config.Storage.Path, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open state store")
		return 1
	}
	defer store.Close()

	states, err := store.List()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list run states")
		return 1
	}

	if len(states) == 0 {
		fmt.Println("No saved runs.")
		return 0
	}

	for _, s := range states {
		fmt.Printf("%s  %s  %s  pending=%d completed=%d\n",
			s.ID, s.CreatedAt.Format(time.RFC3339), s.SitemapURL,
			len(s.PendingURLs), len(s.CompletedURLs))
	}
	return 0
}

// runAudit executes one audit run end to end and returns the process exit
// code: 0 for a clean run, 1 when any page crashed or the run failed
func runAudit() int {
	opts := optionsFromConfig(config)

	var store interfaces.StateStore
	if *saveState || *resumeID != "" {
		s, err := state.NewStore(config.Storage.Path, logger)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to open state store")
			return 1
		}
		defer s.Close()
		store = s
	}

	var urls []string
	var resumed *interfaces.RunState
	if *resumeID != "" {
		var err error
		resumed, err = store.Load(*resumeID)
		if err != nil {
			logger.Error().Err(err).Str("run_id", *resumeID).Msg("Failed to load saved run")
			return 1
		}
		opts = resumed.Options
		urls = resumed.PendingURLs
		logger.Info().
			Str("run_id", *resumeID).
			Int("pending", len(urls)).
			Msg("Resuming saved run")
	} else {
		if flag.NArg() < 1 {
			fmt.Fprintln(os.Stderr, "Usage: auditmysite [flags] <sitemap-url>")
			flag.PrintDefaults()
			return 1
		}
		opts.SitemapURL = flag.Arg(0)

		if *expert && !*nonInteract {
			promptExpertOptions(&opts)
		}
	}

	bus := events.NewService(logger)
	defer bus.Close()
	service := audit.NewService(config, bus, logger)

	// Surface progress on the console as the run moves
	bus.Subscribe(models.EventProgress, func(event models.Event) {
		if p, ok := event.Payload.(models.ProgressPayload); ok {
			logger.Info().
				Int("completed", p.Stats.Completed).
				Int("total", p.Stats.Total).
				Int("in_flight", p.Stats.InFlight).
				Float64("percent", p.Stats.ProgressPercent).
				Msg("Progress")
		}
	})

	// Cancel the run on interrupt; a second interrupt kills the process
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info().Msg("Interrupt received, draining run")
		cancel()
		<-sigChan
		logger.Warn().Msg("Second interrupt, exiting immediately")
		os.Exit(1)
	}()

	var result *models.RunResult
	var runErr error
	if resumed != nil {
		result, runErr = service.RunURLs(ctx, opts, urls)
	} else {
		result, runErr = service.Run(ctx, opts)
	}
	if result == nil {
		logger.Error().Err(runErr).Msg("Audit run failed")
		return 1
	}
	if runErr != nil {
		logger.Error().Err(runErr).Msg("Audit run ended abnormally")
	}

	if store != nil && *saveState {
		if err := persistState(store, resumed, opts, result); err != nil {
			logger.Warn().Err(err).Msg("Failed to save run state")
		}
	}

	writer, err := report.WriterForFormat(config.Report.Format)
	if err != nil {
		logger.Error().Err(err).Msg("Invalid report format")
		return 1
	}
	path, err := report.WriteFile(writer, config.Report.OutputDir, result)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to write report")
		return 1
	}
	logger.Info().Str("path", path).Msg("Report written")

	fmt.Printf("\nAudited %d pages: %d passed, %d failed, %d crashed, %d skipped\n",
		result.Summary.Total, result.Summary.Passed, result.Summary.Failed,
		result.Summary.Crashed, result.Summary.Skipped)
	if result.Summary.AverageScore > 0 {
		fmt.Printf("Average score: %.1f (%s)\n",
			result.Summary.AverageScore, models.GradeForScore(int(result.Summary.AverageScore)))
	}

	if runErr != nil || result.Summary.Crashed > 0 {
		return 1
	}
	return 0
}

// promptExpertOptions walks the advanced options interactively. Empty input
// keeps the current value.
func promptExpertOptions(opts *models.AuditOptions) {
	reader := bufio.NewReader(os.Stdin)
	ask := func(label, current string) string {
		fmt.Printf("%s [%s]: ", label, current)
		line, err := reader.ReadString('\n')
		if err != nil {
			return ""
		}
		return strings.TrimSpace(line)
	}

	if v := ask("Max pages", strconv.Itoa(opts.MaxPages)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.MaxPages = n
		}
	}
	if v := ask("Concurrency", strconv.Itoa(opts.MaxConcurrent)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.MaxConcurrent = n
		}
	}
	if v := ask("Accessibility standard (WCAG2A/WCAG2AA/WCAG2AAA/Section508)", string(opts.Standard)); v != "" {
		opts.Standard = models.AccessibilityStandard(v)
	}
	if v := ask("Content weight budget (default/ecommerce/blog/corporate)", opts.BudgetTemplate); v != "" {
		opts.BudgetTemplate = v
	}
	if v := ask("Capture screenshots (y/n)", boolWord(opts.CaptureScreenshots)); v != "" {
		opts.CaptureScreenshots = strings.EqualFold(v, "y") || strings.EqualFold(v, "yes")
	}
}

func boolWord(b bool) string {
	if b {
		return "y"
	}
	return "n"
}

// optionsFromConfig maps the audit sections of the configuration onto run
// options, applying analyzer toggles from flags
func optionsFromConfig(config *common.Config) models.AuditOptions {
	opts := models.DefaultAuditOptions()

	if config.Audit.MaxPages > 0 {
		opts.MaxPages = config.Audit.MaxPages
	}
	if config.Queue.MaxConcurrent > 0 {
		opts.MaxConcurrent = config.Queue.MaxConcurrent
	}
	if config.Queue.TaskTimeout > 0 {
		opts.TaskTimeout = config.Queue.TaskTimeout
	}
	if config.Queue.MaxRetries > 0 {
		opts.MaxRetries = config.Queue.MaxRetries
	}
	if config.Audit.Standard != "" {
		opts.Standard = models.AccessibilityStandard(config.Audit.Standard)
	}
	if config.Audit.AnalyzerTimeout > 0 {
		opts.AnalyzerTimeout = config.Audit.AnalyzerTimeout
	}
	if config.Audit.ViewportWidth > 0 && config.Audit.ViewportHeight > 0 {
		opts.Viewport = models.Viewport{
			Width:  config.Audit.ViewportWidth,
			Height: config.Audit.ViewportHeight,
		}
	}
	opts.SkipRedirects = config.Audit.SkipRedirects
	opts.CaptureScreenshots = config.Audit.CaptureScreenshots
	opts.BudgetTemplate = config.Audit.BudgetTemplate
	opts.UserAgent = config.Browser.UserAgent

	opts.EnablePerformance = !*noPerf
	opts.EnableSEO = !*noSEO
	opts.EnableContentWeight = !*noWeight
	opts.EnableMobile = !*noMobile

	return opts
}

// persistState saves a resumable snapshot after a run. Pages that never got
// audited (cancelled) become the pending set.
func persistState(store interfaces.StateStore, resumed *interfaces.RunState, opts models.AuditOptions, result *models.RunResult) error {
	snapshot := &interfaces.RunState{
		ID:         result.RunID,
		SitemapURL: opts.SitemapURL,
		CreatedAt:  time.Now(),
		Options:    opts,
	}
	if resumed != nil {
		snapshot.ID = resumed.ID
		snapshot.CompletedURLs = resumed.CompletedURLs
		snapshot.Pages = resumed.Pages
	}
	if snapshot.ID == "" {
		snapshot.ID = uuid.New().String()
	}

	for _, page := range result.Pages {
		if page.Status == models.PageStatusCancelled {
			snapshot.PendingURLs = append(snapshot.PendingURLs, page.URL)
			continue
		}
		snapshot.CompletedURLs = append(snapshot.CompletedURLs, page.URL)
		snapshot.Pages = append(snapshot.Pages, page)
	}

	return store.Save(snapshot)
}
