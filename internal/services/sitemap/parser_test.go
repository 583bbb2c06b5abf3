package sitemap

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/auditmysite/internal/common"
)

func newTestParser() *Parser {
	return NewParser(Config{Timeout: 5 * time.Second, MaxDepth: 3}, nil, common.GetLogger())
}

func TestParseURLSet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.com/</loc></url>
  <url><loc>https://example.com/about</loc></url>
  <url><loc>https://example.com/contact</loc></url>
</urlset>`))
	}))
	defer server.Close()

	urls, err := newTestParser().Parse(context.Background(), server.URL+"/sitemap.xml")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://example.com/",
		"https://example.com/about",
		"https://example.com/contact",
	}, urls, "document order is preserved")
}

func TestParseSitemapIndex(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>` + server.URL + `/pages.xml</loc></sitemap>
  <sitemap><loc>` + server.URL + `/posts.xml</loc></sitemap>
</sitemapindex>`))
	})
	mux.HandleFunc("/pages.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<urlset><url><loc>https://example.com/a</loc></url></urlset>`))
	})
	mux.HandleFunc("/posts.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<urlset>
  <url><loc>https://example.com/b</loc></url>
  <url><loc>https://example.com/a</loc></url>
</urlset>`))
	})

	urls, err := newTestParser().Parse(context.Background(), server.URL+"/sitemap.xml")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/a", "https://example.com/b"}, urls,
		"duplicates across nested sitemaps collapse")
}

func TestParseGzippedSitemap(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write([]byte(`<urlset><url><loc>https://example.com/zipped</loc></url></urlset>`))
	gz.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(buf.Bytes())
	}))
	defer server.Close()

	urls, err := newTestParser().Parse(context.Background(), server.URL+"/sitemap.xml.gz")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/zipped"}, urls)
}

func TestParseDepthLimit(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	// Index that points at itself recurses past any depth limit
	mux.HandleFunc("/loop.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<sitemapindex>
  <sitemap><loc>` + server.URL + `/loop.xml</loc></sitemap>
</sitemapindex>`))
	})

	_, err := newTestParser().Parse(context.Background(), server.URL+"/loop.xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "depth")
}

func TestParseHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := newTestParser().Parse(context.Background(), server.URL+"/missing.xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestParseMalformedDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`this is not xml`))
	}))
	defer server.Close()

	_, err := newTestParser().Parse(context.Background(), server.URL+"/sitemap.xml")
	require.Error(t, err)
}
