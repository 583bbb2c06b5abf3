package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string        `toml:"environment"` // "development" or "production"
	Browser     BrowserConfig `toml:"browser"`
	Queue       QueueConfig   `toml:"queue"`
	Audit       AuditConfig   `toml:"audit"`
	Sitemap     SitemapConfig `toml:"sitemap"`
	Logging     LoggingConfig `toml:"logging"`
	Storage     StorageConfig `toml:"storage"`
	Report      ReportConfig  `toml:"report"`
}

// BrowserConfig controls the headless browser pool
type BrowserConfig struct {
	MaxBrowsers        int           `toml:"max_browsers"`          // Maximum browser processes
	MaxPagesPerBrowser int           `toml:"max_pages_per_browser"` // Concurrent tabs per browser
	WarmUp             int           `toml:"warm_up"`               // Browsers launched ahead of demand
	MaxBrowserAge      time.Duration `toml:"max_browser_age"`       // Recycle browsers older than this
	MaxIdle            time.Duration `toml:"max_idle"`              // Close browsers idle longer than this
	Headless           bool          `toml:"headless"`
	NoSandbox          bool          `toml:"no_sandbox"`
	UserAgent          string        `toml:"user_agent"`
	LaunchArgs         []string      `toml:"launch_args"` // Extra Chrome flags
}

// QueueConfig controls the audit work queue
type QueueConfig struct {
	MaxConcurrent   int           `toml:"max_concurrent"`    // Concurrent page audits
	MaxRetries      int           `toml:"max_retries"`       // Retries per URL after the first attempt
	RetryBackoff    time.Duration `toml:"retry_backoff"`     // Base backoff before a retry
	TaskTimeout     time.Duration `toml:"task_timeout"`      // Per-page audit timeout
	ProgressEvery   time.Duration `toml:"progress_every"`    // Progress event interval
	DispatchRate    float64       `toml:"dispatch_rate"`     // Dispatches per second (0 = unlimited)
	SoftMemoryMB    int           `toml:"soft_memory_mb"`    // Backpressure memory ceiling
	SoftCPUPercent  float64       `toml:"soft_cpu_percent"`  // Backpressure CPU ceiling
	MonitorInterval time.Duration `toml:"monitor_interval"`  // Resource sampling interval
}

// AuditConfig controls per-page analysis
type AuditConfig struct {
	MaxPages           int           `toml:"max_pages"`           // Cap on URLs taken from the sitemap
	AnalyzerTimeout    time.Duration `toml:"analyzer_timeout"`    // Per-analyzer timeout
	Standard           string        `toml:"standard"`            // WCAG2A, WCAG2AA, WCAG2AAA, Section508
	SkipRedirects      bool          `toml:"skip_redirects"`      // Record redirected pages as skipped
	CaptureScreenshots bool          `toml:"capture_screenshots"` // Desktop + mobile PNG per page
	BudgetTemplate     string        `toml:"budget_template"`     // default, ecommerce, blog, corporate
	ViewportWidth      int           `toml:"viewport_width"`
	ViewportHeight     int           `toml:"viewport_height"`
}

// SitemapConfig controls sitemap fetching
type SitemapConfig struct {
	Timeout  time.Duration `toml:"timeout"`   // Fetch timeout per sitemap document
	MaxDepth int           `toml:"max_depth"` // Nested sitemapindex recursion limit
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Format string   `toml:"format"` // "json" or "text"
	Output []string `toml:"output"` // "stdout", "file"
}

// StorageConfig controls run-state persistence
type StorageConfig struct {
	Path string `toml:"path"` // Badger database directory for saved run state
}

// ReportConfig controls report output
type ReportConfig struct {
	Format    string `toml:"format"`     // "json", "markdown", "html"
	OutputDir string `toml:"output_dir"` // Directory for report files
}

// NewDefaultConfig creates a configuration with default values
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in auditmysite.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Browser: BrowserConfig{
			MaxBrowsers:        2,
			MaxPagesPerBrowser: 4,
			WarmUp:             1,
			MaxBrowserAge:      10 * time.Minute,
			MaxIdle:            2 * time.Minute,
			Headless:           true,
			NoSandbox:          true,
			UserAgent:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		Queue: QueueConfig{
			MaxConcurrent:   3,
			MaxRetries:      2,
			RetryBackoff:    1 * time.Second,
			TaskTimeout:     90 * time.Second,
			ProgressEvery:   2 * time.Second,
			DispatchRate:    0, // Unlimited unless the site needs pacing
			SoftMemoryMB:    1024,
			SoftCPUPercent:  85,
			MonitorInterval: 1 * time.Second,
		},
		Audit: AuditConfig{
			MaxPages:           50,
			AnalyzerTimeout:    30 * time.Second,
			Standard:           "WCAG2AA",
			SkipRedirects:      true,
			CaptureScreenshots: false,
			BudgetTemplate:     "default",
			ViewportWidth:      1920,
			ViewportHeight:     1080,
		},
		Sitemap: SitemapConfig{
			Timeout:  30 * time.Second,
			MaxDepth: 3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout"},
		},
		Storage: StorageConfig{
			Path: "./data/state",
		},
		Report: ReportConfig{
			Format:    "json",
			OutputDir: "./reports",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal into config (merges with existing values, later values override)
		err = toml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Environment (highest priority: AUDITMYSITE_ENV, fallback: GO_ENV)
	if env := os.Getenv("AUDITMYSITE_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Browser configuration
	if maxBrowsers := os.Getenv("AUDITMYSITE_BROWSER_MAX_BROWSERS"); maxBrowsers != "" {
		if mb, err := strconv.Atoi(maxBrowsers); err == nil {
			config.Browser.MaxBrowsers = mb
		}
	}
	if maxPages := os.Getenv("AUDITMYSITE_BROWSER_MAX_PAGES_PER_BROWSER"); maxPages != "" {
		if mp, err := strconv.Atoi(maxPages); err == nil {
			config.Browser.MaxPagesPerBrowser = mp
		}
	}
	if headless := os.Getenv("AUDITMYSITE_BROWSER_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}
	if userAgent := os.Getenv("AUDITMYSITE_BROWSER_USER_AGENT"); userAgent != "" {
		config.Browser.UserAgent = userAgent
	}

	// Queue configuration
	if maxConcurrent := os.Getenv("AUDITMYSITE_QUEUE_MAX_CONCURRENT"); maxConcurrent != "" {
		if mc, err := strconv.Atoi(maxConcurrent); err == nil {
			config.Queue.MaxConcurrent = mc
		}
	}
	if maxRetries := os.Getenv("AUDITMYSITE_QUEUE_MAX_RETRIES"); maxRetries != "" {
		if mr, err := strconv.Atoi(maxRetries); err == nil {
			config.Queue.MaxRetries = mr
		}
	}
	if taskTimeout := os.Getenv("AUDITMYSITE_QUEUE_TASK_TIMEOUT"); taskTimeout != "" {
		if tt, err := time.ParseDuration(taskTimeout); err == nil {
			config.Queue.TaskTimeout = tt
		}
	}
	if softMemory := os.Getenv("AUDITMYSITE_QUEUE_SOFT_MEMORY_MB"); softMemory != "" {
		if sm, err := strconv.Atoi(softMemory); err == nil {
			config.Queue.SoftMemoryMB = sm
		}
	}

	// Audit configuration
	if maxPages := os.Getenv("AUDITMYSITE_AUDIT_MAX_PAGES"); maxPages != "" {
		if mp, err := strconv.Atoi(maxPages); err == nil {
			config.Audit.MaxPages = mp
		}
	}
	if standard := os.Getenv("AUDITMYSITE_AUDIT_STANDARD"); standard != "" {
		config.Audit.Standard = standard
	}
	if budget := os.Getenv("AUDITMYSITE_AUDIT_BUDGET"); budget != "" {
		config.Audit.BudgetTemplate = budget
	}

	// Logging configuration
	if level := os.Getenv("AUDITMYSITE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("AUDITMYSITE_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("AUDITMYSITE_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			trimmed := strings.TrimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Storage configuration
	if statePath := os.Getenv("AUDITMYSITE_STATE_PATH"); statePath != "" {
		config.Storage.Path = statePath
	}

	// Report configuration
	if format := os.Getenv("AUDITMYSITE_REPORT_FORMAT"); format != "" {
		config.Report.Format = format
	}
	if outputDir := os.Getenv("AUDITMYSITE_REPORT_OUTPUT_DIR"); outputDir != "" {
		config.Report.OutputDir = outputDir
	}
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
