package scrape

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/posting-cli/internal/model"
	"github.com/sells-group/posting-cli/internal/resilience"
	"github.com/sells-group/posting-cli/pkg/jina"
)

// TokenObserver receives Jina token usage for cost accounting.
type TokenObserver func(tokens int)

// JinaScraper reads pages through Jina Reader. While its breaker is open
// it reports no support, so the chain moves straight on to the browser.
type JinaScraper struct {
	client  jina.Client
	breaker *resilience.CircuitBreaker
	observe TokenObserver
}

// NewJinaScraper creates a JinaScraper. breaker may be nil; observe may be nil.
func NewJinaScraper(client jina.Client, breaker *resilience.CircuitBreaker, observe TokenObserver) *JinaScraper {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker("jina", resilience.CircuitBreakerConfig{FailureThreshold: 3})
	}
	return &JinaScraper{client: client, breaker: breaker, observe: observe}
}

func (j *JinaScraper) Name() string { return "jina" }

func (j *JinaScraper) Supports(_ string) bool {
	return j.breaker.State() != resilience.CircuitOpen
}

// Scrape reports token usage even for responses it then rejects.
func (j *JinaScraper) Scrape(ctx context.Context, targetURL string) (*model.Page, error) {
	return resilience.ExecuteVal(ctx, j.breaker, func(ctx context.Context) (*model.Page, error) {
		resp, err := j.client.Read(ctx, targetURL)
		if err != nil {
			return nil, err
		}
		if j.observe != nil && resp != nil {
			j.observe(resp.Data.Usage.Tokens)
		}
		if reason := fallbackReason(resp); reason != "" {
			return nil, eris.Errorf("jina: unusable response (%s)", reason)
		}
		return &model.Page{
			URL:        targetURL,
			Title:      resp.Data.Title,
			Text:       normalizeText(resp.Data.Content),
			StatusCode: resp.Code,
			Source:     j.Name(),
		}, nil
	})
}

// Jina renders a bot wall as ordinary markdown; these phrases only count
// on short pages.
var deniedPhrases = []string{
	"access denied",
	"403 forbidden",
	"attention required",
	"enable javascript",
	"please enable cookies",
	"just a moment",
}

const (
	minReaderChars   = 100
	deniedPageMaxLen = 1000
)

// fallbackReason says why a Jina response cannot stand in for the posting,
// or returns "" when it can.
func fallbackReason(resp *jina.ReadResponse) string {
	if resp == nil {
		return "empty response"
	}
	if resp.Code != 0 && resp.Code != http.StatusOK {
		return fmt.Sprintf("upstream status %d", resp.Code)
	}

	content := strings.TrimSpace(resp.Data.Content)
	if len(content) < minReaderChars {
		return "content too short"
	}
	if kind := classifyBlock(http.StatusOK, nil, []byte(content)); kind != notBlocked {
		return string(kind)
	}
	if len(content) < deniedPageMaxLen {
		lower := strings.ToLower(content)
		for _, p := range deniedPhrases {
			if strings.Contains(lower, p) {
				return "access denied page"
			}
		}
	}
	return ""
}
