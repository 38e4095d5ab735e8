package scrape

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/posting-cli/internal/model"
)

// scraperChain tries scrapers in priority order and keeps the first page
// whose text passes UsableText. Every rejection is recorded so the final
// error says what each scraper ran into.
type scraperChain struct {
	scrapers []Scraper
}

// newChain drops nil scrapers so optional ones can be passed as-is.
func newChain(scrapers ...Scraper) *scraperChain {
	c := &scraperChain{}
	for _, s := range scrapers {
		if s != nil {
			c.scrapers = append(c.scrapers, s)
		}
	}
	return c
}

// Scrape returns ErrPDFContent as soon as any scraper reports that the URL
// serves a PDF; the router then hands it to the PDF path.
func (c *scraperChain) Scrape(ctx context.Context, targetURL string) (*model.Page, error) {
	var rejected []string
	for _, s := range c.scrapers {
		if !s.Supports(targetURL) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "scrape: chain")
		}

		page, err := s.Scrape(ctx, targetURL)
		switch {
		case errors.Is(err, ErrPDFContent):
			return nil, err
		case err != nil:
			rejected = append(rejected, s.Name()+": "+err.Error())
			zap.L().Debug("scrape: scraper failed",
				zap.String("scraper", s.Name()),
				zap.String("url", targetURL),
				zap.Error(err),
			)
			continue
		}

		if ok, reason := UsableText(page.Text); !ok {
			rejected = append(rejected, s.Name()+": unusable text ("+reason+")")
			zap.L().Debug("scrape: unusable text",
				zap.String("scraper", s.Name()),
				zap.String("url", targetURL),
				zap.String("reason", reason),
				zap.Int("chars", len(page.Text)),
			)
			continue
		}
		if page.Source == "" {
			page.Source = s.Name()
		}
		return page, nil
	}

	if len(rejected) == 0 {
		return nil, eris.Errorf("scrape: no suitable scraper for url: %s", targetURL)
	}
	return nil, eris.Errorf("scrape: all scrapers failed: %s", strings.Join(rejected, "; "))
}
