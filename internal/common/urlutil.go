package common

import (
	"net/url"
	"strings"
)

// CanonicalizeURL reduces a URL to the form used for redirect comparison:
// scheme stripped, leading "www." stripped, trailing slash stripped, host
// lowercased. Query and fragment are preserved.
func CanonicalizeURL(rawURL string) string {
	s := strings.TrimSpace(rawURL)
	if s == "" {
		return ""
	}

	if u, err := url.Parse(s); err == nil && u.Host != "" {
		host := strings.ToLower(u.Host)
		host = strings.TrimPrefix(host, "www.")

		path := strings.TrimSuffix(u.Path, "/")

		s = host + path
		if u.RawQuery != "" {
			s += "?" + u.RawQuery
		}
		if u.Fragment != "" {
			s += "#" + u.Fragment
		}
		return s
	}

	// Not an absolute URL; apply the textual rules directly
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "www.")
	s = strings.TrimSuffix(s, "/")
	return s
}

// SameCanonicalURL reports whether two URLs are equivalent after
// canonicalization. HTTP to HTTPS upgrades, www-stripping, and trailing
// slash differences all compare equal.
func SameCanonicalURL(a, b string) bool {
	return CanonicalizeURL(a) == CanonicalizeURL(b)
}

// ExtractHost returns the lowercased host of a URL, or "" if unparseable
func ExtractHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}
