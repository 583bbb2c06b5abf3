package common

import (
	"os"
	"sync"

	"github.com/ternarybob/arbor"
)

var (
	deprecationMu   sync.Mutex
	deprecationSeen = make(map[string]bool)
)

// WarnDeprecated logs a deprecation notice for a named surface once per
// process. Repeat calls for the same surface are silent.
func WarnDeprecated(logger arbor.ILogger, surface string, message string) {
	if DeprecationsSuppressed() {
		return
	}

	deprecationMu.Lock()
	seen := deprecationSeen[surface]
	if !seen {
		deprecationSeen[surface] = true
	}
	deprecationMu.Unlock()

	if seen {
		return
	}

	logger.Warn().
		Str("surface", surface).
		Msg("DEPRECATED: " + message)
}

// ResetDeprecations clears the once-per-process cache so tests can observe
// notices again.
func ResetDeprecations() {
	deprecationMu.Lock()
	defer deprecationMu.Unlock()
	deprecationSeen = make(map[string]bool)
}

// DeprecationsSuppressed reports whether deprecation notices are disabled
// for this process.
func DeprecationsSuppressed() bool {
	if os.Getenv("AUDITMYSITE_SUPPRESS_DEPRECATIONS") != "" {
		return true
	}
	if os.Getenv("CI") != "" {
		return true
	}
	env := os.Getenv("AUDITMYSITE_ENV")
	return env == "production" || env == "prod"
}
