// Package jina is a client for the Jina AI reader (r.jina.ai) and search
// (s.jina.ai) endpoints.
package jina

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rotisserie/eris"
)

const (
	defaultReaderURL = "https://r.jina.ai"
	defaultSearchURL = "https://s.jina.ai"

	// Page chrome that never carries posting details.
	removeSelector = "nav, header, footer, aside, .cookie-banner"
)

// Client reads pages and runs web searches through Jina.
type Client interface {
	// Read returns the rendered page at targetURL as markdown.
	Read(ctx context.Context, targetURL string) (*ReadResponse, error)
	// Search runs a web search. A query with no results returns an empty
	// response, not an error.
	Search(ctx context.Context, query string) (*SearchResponse, error)
}

// ReadResponse is the reader envelope.
type ReadResponse struct {
	Code int      `json:"code"`
	Data ReadData `json:"data"`
}

// ReadData is the page returned by the reader.
type ReadData struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Usage reports tokens billed for a call.
type Usage struct {
	Tokens int `json:"tokens"`
}

// SearchResponse is the search envelope.
type SearchResponse struct {
	Code int            `json:"code"`
	Data []SearchResult `json:"data"`
}

// SearchResult is one search hit.
type SearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Content     string `json:"content"`
	Description string `json:"description"`
	Usage       Usage  `json:"usage"`
}

// Tokens sums the tokens billed across results.
func (r *SearchResponse) Tokens() int {
	var n int
	for _, d := range r.Data {
		n += d.Usage.Tokens
	}
	return n
}

// StatusError is a non-2xx answer from Jina.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("jina: %s status %d: %s", e.Op, e.Code, strings.TrimSpace(e.Body))
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the reader endpoint.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.readerURL = strings.TrimRight(u, "/") }
}

// WithSearchBaseURL overrides the search endpoint.
func WithSearchBaseURL(u string) Option {
	return func(c *httpClient) { c.searchURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRetry sets the attempt count and initial backoff used for 429, 5xx
// and network errors.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *httpClient) {
		if attempts > 0 {
			c.attempts = uint(attempts)
		}
		if backoff > 0 {
			c.backoff = backoff
		}
	}
}

type httpClient struct {
	apiKey    string
	readerURL string
	searchURL string
	attempts  uint
	backoff   time.Duration
	http      *http.Client
}

// NewClient creates a Jina client. An empty apiKey sends anonymous
// requests, which Jina rate-limits harder.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:    apiKey,
		readerURL: defaultReaderURL,
		searchURL: defaultSearchURL,
		attempts:  3,
		backoff:   time.Second,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Read(ctx context.Context, targetURL string) (*ReadResponse, error) {
	var out ReadResponse
	err := c.getJSON(ctx, "read", c.readerURL+"/"+targetURL, map[string]string{
		"X-Return-Format":   "markdown",
		"X-Remove-Selector": removeSelector,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) Search(ctx context.Context, query string) (*SearchResponse, error) {
	var out SearchResponse
	err := c.getJSON(ctx, "search", c.searchURL+"/"+url.QueryEscape(query), nil, &out)

	// 422 means the query matched nothing.
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusUnprocessableEntity {
		return &SearchResponse{Code: se.Code}, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// getJSON fetches u with retries and decodes a 200 body into out.
func (c *httpClient) getJSON(ctx context.Context, op, u string, headers map[string]string, out any) error {
	body, err := retry.DoWithData(
		func() ([]byte, error) { return c.get(ctx, op, u, headers) },
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.backoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.Retryable()
			}
			return true
		}),
	)
	if err != nil {
		return eris.Wrapf(err, "jina: %s", op)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrapf(err, "jina: unmarshal %s response", op)
	}
	return nil
}

func (c *httpClient) get(ctx context.Context, op, u string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, retry.Unrecoverable(eris.Wrap(err, "jina: create request"))
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.Unrecoverable(eris.Wrap(err, "jina: read response body"))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Op: op, Code: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
