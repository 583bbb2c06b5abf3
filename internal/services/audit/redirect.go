package audit

import (
	"sync"

	"github.com/chromedp/cdproto/network"

	"github.com/ternarybob/auditmysite/internal/common"
	"github.com/ternarybob/auditmysite/internal/models"
)

// redirectWatcher observes CDP network events for the document request and
// reconstructs what redirects happened during navigation. A RedirectResponse
// on a request-will-be-sent event means the previous hop answered 3xx.
type redirectWatcher struct {
	mu          sync.Mutex
	originalURL string

	sawHTTPRedirect bool
	chain           []string
	docRequestID    network.RequestID
	docStatusCode   int
	redirectStatus  int
}

func newRedirectWatcher(originalURL string) *redirectWatcher {
	return &redirectWatcher{originalURL: originalURL}
}

// OnRequestWillBeSent records 3xx hops. The document request carries its
// predecessor's redirect response when a redirect occurred.
func (w *redirectWatcher) OnRequestWillBeSent(ev *network.EventRequestWillBeSent) {
	if ev.Type != network.ResourceTypeDocument {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.docRequestID == "" {
		w.docRequestID = ev.RequestID
	}
	if ev.RequestID != w.docRequestID {
		return
	}

	if ev.RedirectResponse != nil {
		w.sawHTTPRedirect = true
		w.redirectStatus = int(ev.RedirectResponse.Status)
		w.chain = append(w.chain, ev.RedirectResponse.URL)
	}
}

// OnResponseReceived records the final document status
func (w *redirectWatcher) OnResponseReceived(ev *network.EventResponseReceived) {
	if ev.Type != network.ResourceTypeDocument {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.docRequestID != "" && ev.RequestID != w.docRequestID {
		return
	}
	w.docStatusCode = int(ev.Response.Status)
}

// StatusCode returns the final document status observed so far
func (w *redirectWatcher) StatusCode() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.docStatusCode
}

// Evaluate decides whether the navigation counts as a redirect. Benign
// rewrites (HTTP to HTTPS, www-stripping, trailing slash) compare equal
// after canonicalization and are not redirects, even when the server used a
// 3xx to get there.
func (w *redirectWatcher) Evaluate(finalURL string) models.RedirectInfo {
	w.mu.Lock()
	defer w.mu.Unlock()

	info := models.RedirectInfo{
		OriginalURL:      w.originalURL,
		FinalURL:         finalURL,
		URLChanged:       finalURL != "" && finalURL != w.originalURL,
		HasRedirectChain: len(w.chain) > 0,
	}

	if finalURL == "" || common.SameCanonicalURL(w.originalURL, finalURL) {
		return info
	}

	info.IsRedirect = true
	if w.sawHTTPRedirect {
		info.RedirectType = "http"
		info.StatusCode = w.redirectStatus
	} else {
		// URL changed without an observed 3xx hop: meta refresh or script
		info.RedirectType = "javascript"
	}

	return info
}
