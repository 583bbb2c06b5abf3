package sitemap

import (
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
)

const maxSitemapBytes = 50 * 1024 * 1024

// urlset is the <urlset> document shape
type urlset struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

// sitemapindex is the <sitemapindex> document shape
type sitemapindex struct {
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// Config controls sitemap fetching
type Config struct {
	Timeout  time.Duration // Per-document fetch timeout
	MaxDepth int           // Nested sitemapindex recursion limit
}

// Parser fetches sitemap documents over HTTP and expands nested indexes
// into a flat, order-preserving URL list
type Parser struct {
	cfg    Config
	client *http.Client
	logger arbor.ILogger
}

// NewParser creates a sitemap parser. A nil client uses http.DefaultClient.
func NewParser(cfg Config, client *http.Client, logger arbor.ILogger) *Parser {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 3
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Parser{cfg: cfg, client: client, logger: logger}
}

// Parse returns the page URLs listed by the sitemap at url, following
// nested sitemap indexes up to the configured depth. Document order is
// preserved; duplicates are dropped.
func (p *Parser) Parse(ctx context.Context, url string) ([]string, error) {
	seen := make(map[string]struct{})
	urls, err := p.parse(ctx, url, 0, seen)
	if err != nil {
		return nil, err
	}

	p.logger.Info().
		Str("sitemap_url", url).
		Int("url_count", len(urls)).
		Msg("Sitemap expanded")
	return urls, nil
}

func (p *Parser) parse(ctx context.Context, url string, depth int, seen map[string]struct{}) ([]string, error) {
	if depth > p.cfg.MaxDepth {
		return nil, fmt.Errorf("sitemap nesting exceeds depth %d at %s", p.cfg.MaxDepth, url)
	}

	data, err := p.fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	// A sitemap document is either a urlset or a sitemapindex; try the
	// urlset shape first since it is by far the common case
	var set urlset
	if err := xml.Unmarshal(data, &set); err == nil && len(set.URLs) > 0 {
		var urls []string
		for _, u := range set.URLs {
			loc := strings.TrimSpace(u.Loc)
			if loc == "" {
				continue
			}
			if _, dup := seen[loc]; dup {
				continue
			}
			seen[loc] = struct{}{}
			urls = append(urls, loc)
		}
		return urls, nil
	}

	var index sitemapindex
	if err := xml.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("parse sitemap %s: %w", url, err)
	}
	if len(index.Sitemaps) == 0 {
		return nil, fmt.Errorf("sitemap %s lists no URLs", url)
	}

	var urls []string
	for _, sm := range index.Sitemaps {
		loc := strings.TrimSpace(sm.Loc)
		if loc == "" {
			continue
		}
		nested, err := p.parse(ctx, loc, depth+1, seen)
		if err != nil {
			return nil, err
		}
		urls = append(urls, nested...)
	}
	return urls, nil
}

// fetch retrieves one sitemap document, transparently decompressing .gz
// payloads
func (p *Parser) fetch(ctx context.Context, url string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/xml, text/xml")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch sitemap %s: status %d", url, resp.StatusCode)
	}

	var reader io.Reader = io.LimitReader(resp.Body, maxSitemapBytes)
	if strings.HasSuffix(url, ".gz") || resp.Header.Get("Content-Type") == "application/x-gzip" {
		gz, err := gzip.NewReader(reader)
		if err != nil {
			return nil, fmt.Errorf("decompress sitemap %s: %w", url, err)
		}
		defer gz.Close()
		reader = gz
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read sitemap %s: %w", url, err)
	}
	return data, nil
}
