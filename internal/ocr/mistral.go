package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/posting-cli/internal/resilience"
)

const (
	mistralOCREndpoint  = "https://api.mistral.ai/v1/ocr"
	defaultMistralModel = "mistral-ocr-latest"
	mistralTimeout      = 2 * time.Minute
)

// MistralOCR sends scanned posting PDFs to the Mistral OCR API. It is the
// fallback for PDFs without a text layer.
type MistralOCR struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
	retry    resilience.RetryConfig
}

// NewMistralOCR returns a MistralOCR using model, or mistral-ocr-latest
// when model is empty.
func NewMistralOCR(apiKey, model string, retry resilience.RetryConfig) *MistralOCR {
	if model == "" {
		model = defaultMistralModel
	}
	return &MistralOCR{
		apiKey:   apiKey,
		model:    model,
		endpoint: mistralOCREndpoint,
		client:   &http.Client{Timeout: mistralTimeout},
		retry:    retry,
	}
}

// Name implements Extractor.
func (m *MistralOCR) Name() string { return "mistral" }

type mistralOCRRequest struct {
	Model    string             `json:"model"`
	Document mistralOCRDocument `json:"document"`
}

type mistralOCRDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url"`
}

type mistralOCRResponse struct {
	Pages     []mistralOCRPage `json:"pages"`
	UsageInfo struct {
		PagesProcessed int `json:"pages_processed"`
	} `json:"usage_info"`
}

type mistralOCRPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

// text joins the page markdown with blank lines, skipping empty pages.
func (r *mistralOCRResponse) text() string {
	pages := make([]string, 0, len(r.Pages))
	for _, p := range r.Pages {
		if md := strings.TrimSpace(p.Markdown); md != "" {
			pages = append(pages, md)
		}
	}
	return strings.Join(pages, "\n\n")
}

// ExtractText implements Extractor. The PDF is inlined as a base64 data
// URL, so nothing has to be uploaded first.
func (m *MistralOCR) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	pdf, err := os.ReadFile(pdfPath)
	if err != nil {
		return "", eris.Wrapf(err, "ocr: read PDF %s", pdfPath)
	}

	payload, err := json.Marshal(mistralOCRRequest{
		Model: m.model,
		Document: mistralOCRDocument{
			Type:        "document_url",
			DocumentURL: "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(pdf),
		},
	})
	if err != nil {
		return "", eris.Wrap(err, "ocr: marshal mistral request")
	}

	raw, err := resilience.DoVal(ctx, m.retry, func(ctx context.Context) ([]byte, error) {
		return m.call(ctx, payload)
	})
	if err != nil {
		return "", err
	}

	var resp mistralOCRResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", eris.Wrap(err, "ocr: unmarshal mistral response")
	}
	zap.L().Debug("ocr: mistral done",
		zap.String("path", pdfPath),
		zap.Int("pages", len(resp.Pages)),
		zap.Int("pages_billed", resp.UsageInfo.PagesProcessed),
	)
	return resp.text(), nil
}

// call posts one OCR request. Network errors and retryable statuses come
// back as transient errors.
func (m *MistralOCR) call(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "ocr: create mistral request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "ocr: mistral request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "ocr: read mistral response")
	}
	if err := resilience.ResponseError("ocr: mistral", resp, body); err != nil {
		return nil, err
	}
	return body, nil
}
