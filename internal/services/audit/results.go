package audit

import (
	"math"
	"time"

	"github.com/ternarybob/auditmysite/internal/models"
)

// Composite score weights over present sections
const (
	weightAccessibility = 25
	weightPerformance   = 25
	weightSEO           = 25
	weightContentWeight = 15
	weightMobile        = 10
)

// newResult builds the base record every factory shares
func newResult(url string, status models.PageStatus) *models.PageResult {
	return &models.PageResult{
		URL:       url,
		Status:    status,
		Timestamp: time.Now(),
	}
}

// NewRedirectSkip records a page skipped because it redirected elsewhere.
// Skips are first-class outcomes, never failures.
func NewRedirectSkip(url string, redirect models.RedirectInfo) *models.PageResult {
	r := newResult(url, models.PageStatusSkippedRedirect)
	r.FinalURL = redirect.FinalURL
	r.StatusCode = redirect.StatusCode
	r.Redirect = &redirect
	return r
}

// NewHTTPError records a page whose document response was an error status
func NewHTTPError(url string, statusCode int) *models.PageResult {
	r := newResult(url, models.PageStatusHTTPError)
	r.StatusCode = statusCode
	return r
}

// NewCrash records a page whose audit failed after exhausting retries
func NewCrash(url string, err error, attempts int) *models.PageResult {
	r := newResult(url, models.PageStatusCrashed)
	if err != nil {
		r.Error = err.Error()
	}
	r.Attempts = attempts
	return r
}

// NewCancelled records a page abandoned by run cancellation
func NewCancelled(url string) *models.PageResult {
	return newResult(url, models.PageStatusCancelled)
}

// FinalizeResult applies the composite score, grade, and terminal status to
// an analyzed page. Status is passed iff the accessibility section is
// present; other sections are optional contributors.
func FinalizeResult(r *models.PageResult) {
	if r.Accessibility != nil {
		r.Status = models.PageStatusPassed
	} else {
		r.Status = models.PageStatusFailed
	}

	if score, ok := CompositeScore(r); ok {
		r.Score = &score
		r.Grade = models.GradeForScore(score)
	}
}

// CompositeScore combines section scores with fixed weights, renormalized
// over the sections actually present. Returns false when no section exists.
func CompositeScore(r *models.PageResult) (int, bool) {
	var weighted, totalWeight float64

	if r.Accessibility != nil {
		weighted += float64(r.Accessibility.Score) * weightAccessibility
		totalWeight += weightAccessibility
	}
	if r.Performance != nil {
		weighted += float64(r.Performance.Score) * weightPerformance
		totalWeight += weightPerformance
	}
	if r.SEO != nil {
		weighted += float64(r.SEO.Score) * weightSEO
		totalWeight += weightSEO
	}
	if r.ContentWeight != nil {
		weighted += float64(r.ContentWeight.Score) * weightContentWeight
		totalWeight += weightContentWeight
	}
	if r.Mobile != nil {
		weighted += float64(r.Mobile.Score) * weightMobile
		totalWeight += weightMobile
	}

	if totalWeight == 0 {
		return 0, false
	}

	return int(math.Round(weighted / totalWeight)), true
}
