package model

import "time"

// Page is the text acquired for a URL by the fetch chain.
type Page struct {
	URL        string `json:"url"`
	Title      string `json:"title,omitempty"`
	Text       string `json:"text"`
	StatusCode int    `json:"status_code"`
	Source     string `json:"source"` // scraper name, e.g. "local", "jina", "browser", "pdf"
}

// CachedPage is a page stored in the page cache.
type CachedPage struct {
	URL       string    `json:"url"`
	Text      string    `json:"text"`
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
