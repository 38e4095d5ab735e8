package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// NewOllamaCompleter returns an OpenAICompleter pointed at an Ollama
// server's /v1 endpoint whose ResetContext clears the model's cached
// context through /api/generate.
func NewOllamaCompleter(baseURL, modelID string, opts Options) *OpenAICompleter {
	baseURL = strings.TrimRight(baseURL, "/")
	hc := &http.Client{Timeout: 10 * time.Second}

	c := NewOpenAICompleter(OpenAIConfig{
		APIKey:          "ollama",
		BaseURL:         baseURL + "/v1",
		Model:           modelID,
		LegacyMaxTokens: true,
	}, opts)
	c.reset = func(ctx context.Context) error {
		return ollamaReset(ctx, hc, baseURL, modelID)
	}
	return c
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

// ollamaReset sends a throwaway "[RESET]" generation so the next request
// starts from an empty context window.
func ollamaReset(ctx context.Context, hc *http.Client, baseURL, modelID string) error {
	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  modelID,
		Prompt: "[RESET]",
		Options: map[string]any{
			"num_ctx":     4096,
			"temperature": 0.1,
		},
	})
	if err != nil {
		return eris.Wrap(err, "llm: marshal ollama reset")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "llm: create ollama reset request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return eris.Wrap(err, "llm: ollama reset")
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("llm: ollama reset status %d", resp.StatusCode)
	}
	zap.L().Debug("llm: ollama context reset", zap.String("model", modelID))
	return nil
}
