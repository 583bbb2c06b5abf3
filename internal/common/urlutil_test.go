package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalizeURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"strips scheme", "https://example.com/about", "example.com/about"},
		{"strips http scheme", "http://example.com/about", "example.com/about"},
		{"strips www", "https://www.example.com/about", "example.com/about"},
		{"strips trailing slash", "https://example.com/about/", "example.com/about"},
		{"root becomes bare host", "https://example.com/", "example.com"},
		{"lowercases host", "https://EXAMPLE.com/About", "example.com/About"},
		{"preserves query", "https://example.com/s?q=1", "example.com/s?q=1"},
		{"preserves fragment", "https://example.com/p#top", "example.com/p#top"},
		{"empty input", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CanonicalizeURL(tt.input))
		})
	}
}

func TestSameCanonicalURL(t *testing.T) {
	// These pairs must compare equal: protocol upgrades, www-stripping, and
	// trailing slash changes are not treated as redirects.
	assert.True(t, SameCanonicalURL("http://example.com/", "https://example.com/"))
	assert.True(t, SameCanonicalURL("https://www.example.com/page", "https://example.com/page"))
	assert.True(t, SameCanonicalURL("https://example.com/page/", "https://example.com/page"))
	assert.True(t, SameCanonicalURL("http://www.example.com/page/", "https://example.com/page"))

	// Path changes are real redirects
	assert.False(t, SameCanonicalURL("https://example.com/old", "https://example.com/new"))
	assert.False(t, SameCanonicalURL("https://example.com/", "https://example.com/home"))

	// Host changes are real redirects
	assert.False(t, SameCanonicalURL("https://example.com/", "https://other.com/"))
}

func TestExtractHost(t *testing.T) {
	assert.Equal(t, "example.com", ExtractHost("https://example.com/page"))
	assert.Equal(t, "example.com:8080", ExtractHost("http://example.com:8080/"))
	assert.Equal(t, "", ExtractHost("://bad"))
}
