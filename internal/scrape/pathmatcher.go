package scrape

import (
	"net/url"
	"path"
	"strings"
)

// DefaultJSHeavySites are job boards that serve an empty shell without
// JavaScript.
var DefaultJSHeavySites = []string{
	"jobbnorge.no",
	"linkedin.com",
	"indeed.com",
	"glassdoor.com",
	"monster.com",
	"careerbuilder.com",
	"ziprecruiter.com",
	"workday.com/*",
	"myworkdayjobs.com",
}

// SiteMatcher matches URLs against "host" or "host/path-glob" patterns.
// A host pattern also matches its subdomains, and a path glob ending in
// "/*" matches every deeper path.
type SiteMatcher struct {
	patterns []string
}

// NewSiteMatcher creates a SiteMatcher. Falls back to DefaultJSHeavySites
// if no patterns are provided.
func NewSiteMatcher(patterns []string) *SiteMatcher {
	if len(patterns) == 0 {
		patterns = DefaultJSHeavySites
	}
	return &SiteMatcher{patterns: patterns}
}

// Patterns returns the configured patterns.
func (m *SiteMatcher) Patterns() []string {
	return m.patterns
}

// Match reports whether rawURL matches any pattern.
func (m *SiteMatcher) Match(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	urlPath := strings.ToLower(u.Path)
	if urlPath == "" {
		urlPath = "/"
	}

	for _, pattern := range m.patterns {
		pattern = strings.ToLower(pattern)
		patHost, patPath, hasPath := strings.Cut(pattern, "/")
		if !hostMatches(patHost, host) {
			continue
		}
		if !hasPath || matchSegmented("/"+patPath, urlPath) {
			return true
		}
	}
	return false
}

func hostMatches(pattern, host string) bool {
	return host == pattern || strings.HasSuffix(host, "."+pattern)
}

// matchSegmented performs glob matching where a pattern like "/jobs/*"
// matches both "/jobs/123" and "/jobs/deep/nested/path".
func matchSegmented(pattern, urlPath string) bool {
	if ok, _ := path.Match(pattern, urlPath); ok {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if prefix == "" || urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/") {
			return true
		}
	}
	return false
}
