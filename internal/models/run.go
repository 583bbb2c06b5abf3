package models

import "time"

// RunSummary aggregates per-page outcomes for a run
type RunSummary struct {
	Total        int     `json:"total"`
	Passed       int     `json:"passed"`
	Failed       int     `json:"failed"`
	Crashed      int     `json:"crashed"`
	HTTPErrors   int     `json:"http_errors"`
	Skipped      int     `json:"skipped"`
	Cancelled    int     `json:"cancelled"`
	AverageScore float64 `json:"average_score"`
}

// RunResult is the complete output of one engine run
type RunResult struct {
	RunID       string                 `json:"run_id"`
	SitemapURL  string                 `json:"sitemap_url"`
	StartedAt   time.Time              `json:"started_at"`
	DurationMs  int64                  `json:"duration_ms"`
	Summary     RunSummary             `json:"summary"`
	Pages       []*PageResult          `json:"pages"`
	SkippedURLs []string               `json:"skipped_urls,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}
