package interfaces

import "context"

// SitemapParser fetches and expands a sitemap into page URLs
type SitemapParser interface {
	// Parse returns the page URLs listed by the sitemap at url, following
	// nested sitemap indexes. The slice preserves document order.
	Parse(ctx context.Context, url string) ([]string, error)
}
