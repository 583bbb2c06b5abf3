package browser

import (
	"context"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/network"

	"github.com/ternarybob/auditmysite/internal/models"
)

// Page is the navigated document handed to analyzers. Ctx is the live tab
// context the page was loaded in; analyzers that need their own tab open a
// sibling context from it. Resources carries the byte tally collected from
// network events during the load.
type Page struct {
	URL        string
	FinalURL   string
	Title      string
	StatusCode int
	HTML       string
	Ctx        context.Context
	Resources  *ResourceTally
}

// resourceClass buckets a network request for the weight tally
type resourceClass int

const (
	classHTML resourceClass = iota
	classCSS
	classJS
	classImage
	classFont
	classOther
)

// ResourceTally accumulates transferred bytes per resource class from CDP
// network events. Safe for concurrent use; CDP listeners run on the event
// goroutine while analyzers read snapshots.
type ResourceTally struct {
	mu       sync.Mutex
	byReq    map[network.RequestID]resourceClass
	bytes    models.ResourceBytes
	requests int
}

// NewResourceTally creates an empty tally
func NewResourceTally() *ResourceTally {
	return &ResourceTally{
		byReq: make(map[network.RequestID]resourceClass),
	}
}

// OnResponse records the class of a request so its bytes can be attributed
// when loading finishes
func (t *ResourceTally) OnResponse(requestID network.RequestID, resourceType network.ResourceType, mimeType string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byReq[requestID] = classify(resourceType, mimeType)
	t.requests++
}

// OnLoadingFinished attributes the encoded (on-the-wire) byte count of a
// finished request to its class
func (t *ResourceTally) OnLoadingFinished(requestID network.RequestID, encodedBytes int64) {
	if encodedBytes <= 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	class, ok := t.byReq[requestID]
	if !ok {
		class = classOther
	}

	switch class {
	case classHTML:
		t.bytes.HTML += encodedBytes
	case classCSS:
		t.bytes.CSS += encodedBytes
	case classJS:
		t.bytes.JavaScript += encodedBytes
	case classImage:
		t.bytes.Images += encodedBytes
	case classFont:
		t.bytes.Fonts += encodedBytes
	default:
		t.bytes.Other += encodedBytes
	}
}

// Snapshot returns the accumulated byte counts and request count
func (t *ResourceTally) Snapshot() (models.ResourceBytes, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bytes, t.requests
}

// classify maps a CDP resource type (with MIME fallback) to a weight class
func classify(resourceType network.ResourceType, mimeType string) resourceClass {
	switch resourceType {
	case network.ResourceTypeDocument:
		return classHTML
	case network.ResourceTypeStylesheet:
		return classCSS
	case network.ResourceTypeScript:
		return classJS
	case network.ResourceTypeImage:
		return classImage
	case network.ResourceTypeFont:
		return classFont
	}

	mime := strings.ToLower(mimeType)
	switch {
	case strings.Contains(mime, "html"):
		return classHTML
	case strings.Contains(mime, "css"):
		return classCSS
	case strings.Contains(mime, "javascript"), strings.Contains(mime, "ecmascript"):
		return classJS
	case strings.HasPrefix(mime, "image/"):
		return classImage
	case strings.HasPrefix(mime, "font/"), strings.Contains(mime, "opentype"), strings.Contains(mime, "woff"):
		return classFont
	}
	return classOther
}
