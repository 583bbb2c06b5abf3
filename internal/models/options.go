package models

import "time"

// Viewport is the desktop emulation size used during analysis
type Viewport struct {
	Width  int `json:"width" validate:"omitempty,min=320,max=7680"`
	Height int `json:"height" validate:"omitempty,min=240,max=4320"`
}

// AuditOptions configures a single engine run
type AuditOptions struct {
	SitemapURL string `json:"sitemap_url" validate:"required,url"`

	MaxPages      int           `json:"max_pages" validate:"min=0"`
	MaxConcurrent int           `json:"max_concurrent" validate:"min=0,max=64"`
	TaskTimeout   time.Duration `json:"task_timeout"`
	MaxRetries    int           `json:"max_retries" validate:"min=0,max=10"`

	Standard      AccessibilityStandard `json:"standard" validate:"omitempty,oneof=WCAG2A WCAG2AA WCAG2AAA Section508"`
	SkipRedirects bool                  `json:"skip_redirects"`

	// Analyzer toggles; accessibility always runs
	EnablePerformance   bool `json:"enable_performance"`
	EnableSEO           bool `json:"enable_seo"`
	EnableContentWeight bool `json:"enable_content_weight"`
	EnableMobile        bool `json:"enable_mobile"`

	BudgetTemplate     string   `json:"budget_template" validate:"omitempty,oneof=default ecommerce blog corporate"`
	Viewport           Viewport `json:"viewport"`
	UserAgent          string   `json:"user_agent,omitempty"`
	CaptureScreenshots bool     `json:"capture_screenshots"`
	AnalyzerTimeout    time.Duration `json:"analyzer_timeout"`
}

// DefaultAuditOptions returns options with engine defaults applied
func DefaultAuditOptions() AuditOptions {
	return AuditOptions{
		MaxPages:            50,
		MaxConcurrent:       3,
		TaskTimeout:         90 * time.Second,
		MaxRetries:          2,
		Standard:            StandardWCAG2AA,
		SkipRedirects:       true,
		EnablePerformance:   true,
		EnableSEO:           true,
		EnableContentWeight: true,
		EnableMobile:        true,
		BudgetTemplate:      "default",
		Viewport:            Viewport{Width: 1920, Height: 1080},
		AnalyzerTimeout:     30 * time.Second,
	}
}

// EnabledAnalyzers lists the analyzers this run will execute, in order
func (o AuditOptions) EnabledAnalyzers() []AnalyzerID {
	ids := []AnalyzerID{AnalyzerAccessibility}
	if o.EnablePerformance {
		ids = append(ids, AnalyzerPerformance)
	}
	if o.EnableSEO {
		ids = append(ids, AnalyzerSEO)
	}
	if o.EnableContentWeight {
		ids = append(ids, AnalyzerContentWeight)
	}
	if o.EnableMobile {
		ids = append(ids, AnalyzerMobile)
	}
	return ids
}
