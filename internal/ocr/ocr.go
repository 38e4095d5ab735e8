// Package ocr extracts text from downloaded PDF files.
package ocr

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/posting-cli/internal/config"
	"github.com/sells-group/posting-cli/internal/resilience"
)

// Extractor extracts text content from PDF files.
type Extractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
	Name() string
}

// Chain tries extractors in order and returns the first non-blank text.
type Chain struct {
	extractors []Extractor
}

// NewChain returns a Chain over extractors.
func NewChain(extractors ...Extractor) *Chain {
	return &Chain{extractors: extractors}
}

// Name implements Extractor.
func (c *Chain) Name() string { return "chain" }

// ExtractText implements Extractor.
func (c *Chain) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	var lastErr error
	for _, e := range c.extractors {
		text, err := e.ExtractText(ctx, pdfPath)
		if err != nil {
			zap.L().Debug("ocr: extractor failed, trying next",
				zap.String("extractor", e.Name()),
				zap.String("path", pdfPath),
				zap.Error(err),
			)
			lastErr = err
			continue
		}
		if strings.TrimSpace(text) == "" {
			lastErr = eris.Errorf("ocr: %s returned no text", e.Name())
			continue
		}
		return text, nil
	}
	if lastErr == nil {
		return "", eris.New("ocr: no extractors configured")
	}
	return "", eris.Wrap(lastErr, "ocr: all extractors failed")
}

// NewExtractor builds the extractor chain from fetch config. pdftotext is
// always first; Mistral OCR follows when a key is present. With
// ocr_provider "mistral" the order is reversed.
func NewExtractor(cfg config.FetchConfig) (Extractor, error) {
	local := NewPdfToText(cfg.PdfToTextPath)
	switch cfg.OCRProvider {
	case "local", "":
		if cfg.MistralKey == "" {
			return NewChain(local), nil
		}
		return NewChain(local, NewMistralOCR(cfg.MistralKey, cfg.MistralModel, resilience.FetchRetry(cfg, "mistral"))), nil
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires fetch.mistral_key")
		}
		return NewChain(NewMistralOCR(cfg.MistralKey, cfg.MistralModel, resilience.FetchRetry(cfg, "mistral")), local), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.OCRProvider)
	}
}
