package audit

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"
)

// RetryPolicy defines retry behavior with exponential backoff
type RetryPolicy struct {
	MaxRetries           int // Retries after the first attempt
	InitialBackoff       time.Duration
	MaxBackoff           time.Duration
	BackoffMultiplier    float64
	RetryableStatusCodes []int
}

// NewRetryPolicy creates a default retry policy
func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:        2,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		RetryableStatusCodes: []int{
			408, // Request Timeout
			429, // Too Many Requests
		},
	}
}

// ShouldRetry reports whether a failed attempt should be requeued.
// attempt is 1-based (the first try is attempt 1).
func (p *RetryPolicy) ShouldRetry(attempt int, err error) bool {
	if attempt > p.MaxRetries {
		return false
	}
	return p.isRetryableError(err)
}

// CalculateBackoff calculates the backoff duration with exponential backoff
// and jitter. attempt is the number of tries already made.
func (p *RetryPolicy) CalculateBackoff(attempt int) time.Duration {
	backoff := float64(p.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= p.BackoffMultiplier
	}
	if backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}

	// Add jitter (±25%)
	jitter := backoff * 0.25 * (rand.Float64()*2 - 1)
	backoff += jitter

	if backoff < 0 {
		backoff = float64(p.InitialBackoff)
	}

	return time.Duration(backoff)
}

// isRetryableError classifies an audit failure
func (p *RetryPolicy) isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Cancellation and fatal errors are terminal
	if errors.Is(err, ErrCancelled) || errors.Is(err, ErrFatal) || errors.Is(err, context.Canceled) {
		return false
	}

	// HTTP document errors are terminal outcomes, except timeout and
	// rate-limit responses
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		for _, code := range p.RetryableStatusCodes {
			if statusErr.StatusCode == code {
				return true
			}
		}
		return false
	}

	// Transient failure classes
	if errors.Is(err, ErrNavigation) || errors.Is(err, ErrBrowserCrash) || errors.Is(err, ErrResourceExhausted) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Temporary network errors
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	return false
}
