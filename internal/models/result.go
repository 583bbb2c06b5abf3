package models

import "time"

// PageStatus is the terminal outcome of auditing one URL
type PageStatus string

const (
	PageStatusPassed          PageStatus = "passed"
	PageStatusFailed          PageStatus = "failed"
	PageStatusCrashed         PageStatus = "crashed"
	PageStatusSkippedRedirect PageStatus = "skipped-redirect"
	PageStatusHTTPError       PageStatus = "http-error"
	PageStatusCancelled       PageStatus = "cancelled"
)

// IssueSeverity classifies an accessibility finding
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
	SeverityNotice  IssueSeverity = "notice"
)

// AccessibilityIssue is a single rule violation reported by the rule engine
type AccessibilityIssue struct {
	Code     string        `json:"code"`
	Message  string        `json:"message"`
	Severity IssueSeverity `json:"severity"`
	Selector string        `json:"selector,omitempty"`
	Context  string        `json:"context,omitempty"`
	HelpURL  string        `json:"help_url,omitempty"`
}

// AccessibilitySection holds accessibility analysis output
type AccessibilitySection struct {
	Issues   []AccessibilityIssue `json:"issues,omitempty"`
	Errors   []string             `json:"errors,omitempty"`
	Warnings []string             `json:"warnings,omitempty"`
	Notices  []string             `json:"notices,omitempty"`

	// Coarse DOM counters, populated by the heuristic fallback
	ImagesWithoutAlt    int  `json:"images_without_alt"`
	ButtonsWithoutLabel int  `json:"buttons_without_label"`
	HeadingsCount       int  `json:"headings_count"`
	Heuristic           bool `json:"heuristic,omitempty"`

	Score int `json:"score"`
}

func (s *AccessibilitySection) SectionID() AnalyzerID { return AnalyzerAccessibility }

// MetricRating buckets a web vital against its thresholds
type MetricRating string

const (
	RatingGood             MetricRating = "good"
	RatingNeedsImprovement MetricRating = "needs-improvement"
	RatingPoor             MetricRating = "poor"
)

// Metric is one measured web vital with its rating
type Metric struct {
	Value  float64      `json:"value"`
	Rating MetricRating `json:"rating"`
}

// PerformanceSection holds web-vital measurements for a page
type PerformanceSection struct {
	FCP  *Metric `json:"fcp,omitempty"`
	LCP  *Metric `json:"lcp,omitempty"`
	CLS  *Metric `json:"cls,omitempty"`
	INP  *Metric `json:"inp,omitempty"`
	TTFB *Metric `json:"ttfb,omitempty"`
	FID  *Metric `json:"fid,omitempty"`
	TBT  *Metric `json:"tbt,omitempty"`
	SI   *Metric `json:"si,omitempty"`

	Score int    `json:"score"`
	Grade string `json:"grade"`
}

func (s *PerformanceSection) SectionID() AnalyzerID { return AnalyzerPerformance }

// GradeForScore maps a 0-100 score to a letter grade
func GradeForScore(score int) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

// MetaField describes one head-level meta element
type MetaField struct {
	Present bool   `json:"present"`
	Content string `json:"content,omitempty"`
	Length  int    `json:"length"`
}

// SEOSection holds on-page SEO analysis output
type SEOSection struct {
	Title       MetaField `json:"title"`
	Description MetaField `json:"description"`

	HeadingCounts [6]int `json:"heading_counts"` // index 0 = h1
	WordCount     int    `json:"word_count"`
	Readability   int    `json:"readability"` // Flesch reading ease, clamped 0-100

	InternalLinks int `json:"internal_links"`
	ExternalLinks int `json:"external_links"`

	OpenGraphTags  int  `json:"open_graph_tags"`
	HasTwitterCard bool `json:"has_twitter_card"`

	Score int `json:"score"`
}

func (s *SEOSection) SectionID() AnalyzerID { return AnalyzerSEO }

// ResourceBytes partitions transferred bytes by resource class
type ResourceBytes struct {
	HTML       int64 `json:"html"`
	CSS        int64 `json:"css"`
	JavaScript int64 `json:"javascript"`
	Images     int64 `json:"images"`
	Fonts      int64 `json:"fonts"`
	Other      int64 `json:"other"`
}

// Total sums all resource classes
func (r ResourceBytes) Total() int64 {
	return r.HTML + r.CSS + r.JavaScript + r.Images + r.Fonts + r.Other
}

// ContentWeightSection holds page weight analysis output
type ContentWeightSection struct {
	Bytes           ResourceBytes `json:"bytes"`
	TotalBytes      int64         `json:"total_bytes"`
	RequestCount    int           `json:"request_count"`
	TextToCodeRatio float64       `json:"text_to_code_ratio"`
	Budget          string        `json:"budget"` // template name the score was taken against
	Score           int           `json:"score"`
}

func (s *ContentWeightSection) SectionID() AnalyzerID { return AnalyzerContentWeight }

// MobileSection holds mobile friendliness analysis output
type MobileSection struct {
	HasViewportMeta    bool `json:"has_viewport_meta"`
	TouchTargetScore   int  `json:"touch_target_score"`   // 0-100
	TypographyScore    int  `json:"typography_score"`     // 0-100
	ContentSizingScore int  `json:"content_sizing_score"` // 0-100
	Heuristic          bool `json:"heuristic,omitempty"`
	Score              int  `json:"score"`
}

func (s *MobileSection) SectionID() AnalyzerID { return AnalyzerMobile }

// RedirectInfo describes an observed navigation redirect
type RedirectInfo struct {
	IsRedirect       bool   `json:"is_redirect"`
	StatusCode       int    `json:"status_code,omitempty"`
	OriginalURL      string `json:"original_url"`
	FinalURL         string `json:"final_url"`
	URLChanged       bool   `json:"url_changed"`
	HasRedirectChain bool   `json:"has_redirect_chain"`
	RedirectType     string `json:"redirect_type,omitempty"` // "http", "meta", "javascript"
}

// Screenshots holds captured page images
type Screenshots struct {
	Desktop []byte `json:"desktop,omitempty"`
	Mobile  []byte `json:"mobile,omitempty"`
}

// PageResult is the complete audit record for one URL
type PageResult struct {
	URL        string     `json:"url"`
	FinalURL   string     `json:"final_url,omitempty"`
	Title      string     `json:"title,omitempty"`
	Status     PageStatus `json:"status"`
	StatusCode int        `json:"status_code,omitempty"`
	Error      string     `json:"error,omitempty"`
	Attempts   int        `json:"attempts,omitempty"`
	DurationMs int64      `json:"duration_ms"`
	Timestamp  time.Time  `json:"timestamp"`

	Redirect *RedirectInfo `json:"redirect,omitempty"`

	Accessibility *AccessibilitySection `json:"accessibility,omitempty"`
	Performance   *PerformanceSection   `json:"performance,omitempty"`
	SEO           *SEOSection           `json:"seo,omitempty"`
	ContentWeight *ContentWeightSection `json:"content_weight,omitempty"`
	Mobile        *MobileSection        `json:"mobile,omitempty"`

	// Composite score over present sections; nil when no section completed
	Score *int   `json:"score,omitempty"`
	Grade string `json:"grade,omitempty"`

	// Analyzers that timed out or failed; their sections are absent
	AnalyzerWarnings []string `json:"analyzer_warnings,omitempty"`

	Screenshots *Screenshots `json:"screenshots,omitempty"`
}
