package audit

import (
	"errors"
	"fmt"
)

// Sentinel errors classifying why a page audit failed. The retry policy
// keys off these: navigation, crash, and exhaustion errors are retriable;
// cancellation and fatal errors are not.
var (
	ErrNavigation        = errors.New("navigation failed")
	ErrBrowserCrash      = errors.New("browser crashed")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrCancelled         = errors.New("audit cancelled")
	ErrFatal             = errors.New("fatal engine error")
)

// HTTPStatusError reports a document response with status >= 400. Not
// retriable except for 408 and 429.
type HTTPStatusError struct {
	StatusCode int
	URL        string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http status %d for %s", e.StatusCode, e.URL)
}
