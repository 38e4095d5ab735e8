package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/posting-cli/pkg/anthropic"
)

func chatCompletionJSON(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-5-chat-latest",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 120, "completion_tokens": 30, "total_tokens": 150},
	}
}

func TestOpenAICompleter_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "gpt-5-chat-latest", req["model"])
		assert.EqualValues(t, 3000, req["max_completion_tokens"])
		msgs := req["messages"].([]any)
		require.Len(t, msgs, 2)
		assert.Equal(t, "system", msgs[0].(map[string]any)["role"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatCompletionJSON(`{"Deadline":"Soon"}`))
	}))
	defer srv.Close()

	c := NewOpenAICompleter(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-5-chat-latest"}, DefaultOptions())
	got, err := c.Complete(context.Background(), "extract", "you are an extractor")
	require.NoError(t, err)
	assert.Equal(t, `{"Deadline":"Soon"}`, got)
	assert.Equal(t, 120, c.Usage().InputTokens)
	assert.Equal(t, 30, c.Usage().OutputTokens)
	assert.NoError(t, c.ResetContext(context.Background()))
	assert.Equal(t, "gpt-5-chat-latest", c.Model())
}

func TestOpenAICompleter_EmptyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatCompletionJSON("  "))
	}))
	defer srv.Close()

	c := NewOpenAICompleter(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Model: "m"}, DefaultOptions())
	_, err := c.Complete(context.Background(), "p", "")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOpenAICompleter_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()

	c := NewOpenAICompleter(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Model: "m"}, DefaultOptions())
	_, err := c.Complete(context.Background(), "p", "s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm: openai complete")
}

func TestOllamaCompleter_ResetAndComplete(t *testing.T) {
	var resets atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/generate":
			var req ollamaGenerateRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "[RESET]", req.Prompt)
			assert.Equal(t, "qwen3:14b", req.Model)
			assert.False(t, req.Stream)
			resets.Add(1)
			_, _ = w.Write([]byte(`{"response":"ok","done":true}`))
		case "/v1/chat/completions":
			body, _ := io.ReadAll(r.Body)
			var req map[string]any
			require.NoError(t, json.Unmarshal(body, &req))
			assert.EqualValues(t, 3000, req["max_tokens"])
			_ = json.NewEncoder(w).Encode(chatCompletionJSON(`{"GIS":"1"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewOllamaCompleter(srv.URL+"/", "qwen3:14b", Options{Timeout: 5 * time.Second})
	require.NoError(t, c.ResetContext(context.Background()))
	assert.Equal(t, int32(1), resets.Load())

	got, err := c.Complete(context.Background(), "classify", "system")
	require.NoError(t, err)
	assert.Equal(t, `{"GIS":"1"}`, got)
}

func TestOllamaReset_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewOllamaCompleter(srv.URL, "missing", DefaultOptions()).ResetContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestAnthropicCompleter(t *testing.T) {
	mc := new(mockAnthropic)
	mc.On("Complete", mock.Anything, mock.MatchedBy(func(req anthropic.CompletionRequest) bool {
		return req.Model == "claude-sonnet-4-5-20250929" &&
			req.System == "sys" &&
			req.MaxTokens == 3000 &&
			*req.Temperature == 0.1 &&
			req.Prompt == "prompt"
	})).Return(&anthropic.Completion{
		Text:  `{"ok":true}`,
		Usage: anthropic.TokenUsage{InputTokens: 50, OutputTokens: 5},
	}, nil).Once()

	c := NewAnthropicCompleter(mc, "claude-sonnet-4-5-20250929", DefaultOptions())
	got, err := c.Complete(context.Background(), "prompt", "sys")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, got)
	assert.Equal(t, 50, c.Usage().InputTokens)
	assert.NoError(t, c.ResetContext(context.Background()))
	mc.AssertExpectations(t)
}

func TestAnthropicCompleter_Errors(t *testing.T) {
	mc := new(mockAnthropic)
	mc.On("Complete", mock.Anything, mock.Anything).Return(nil, errors.New("overloaded")).Once()
	mc.On("Complete", mock.Anything, mock.Anything).Return(&anthropic.Completion{StopReason: anthropic.StopMaxTokens}, nil).Once()

	c := NewAnthropicCompleter(mc, "m", Options{})
	_, err := c.Complete(context.Background(), "p", "s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded")

	_, err = c.Complete(context.Background(), "p", "s")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestRecorder(t *testing.T) {
	inner := new(mockCompleter)
	inner.On("Complete", mock.Anything, "stage prompt", "sys").Return(`{"a":1}`, nil)
	inner.On("Complete", mock.Anything, "select prompt", "").Return("", errors.New("timeout"))
	inner.On("ResetContext", mock.Anything).Return(nil)

	rec := NewRecorder(inner)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	rec.now = func() time.Time { return fixed }

	rec.Start("the posting text")
	require.NoError(t, rec.ResetContext(context.Background()))

	_, err := rec.Complete(WithLabel(context.Background(), "stage1"), "stage prompt", "sys")
	require.NoError(t, err)
	_, err = rec.Complete(WithLabel(context.Background(), "contact_select"), "select prompt", "")
	require.Error(t, err)

	ex := rec.Take()
	require.Len(t, ex, 2)
	assert.Equal(t, "stage1", ex[0].Stage)
	assert.Equal(t, "the posting text", ex[0].SourceText)
	assert.Equal(t, `{"a":1}`, ex[0].Response)
	assert.Equal(t, "mock-model", ex[0].Model)
	assert.Equal(t, time.UTC, ex[0].At.Location())
	assert.Empty(t, ex[1].SourceText)
	assert.Equal(t, "timeout", ex[1].Error)

	assert.Empty(t, rec.Take())
	assert.Equal(t, "mock-model", rec.Model())
	assert.Zero(t, rec.Usage())
}

func TestRecorder_StartClears(t *testing.T) {
	inner := new(mockCompleter)
	inner.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("x", nil)

	rec := NewRecorder(inner)
	rec.Start("first")
	_, _ = rec.Complete(context.Background(), "p", "s")
	rec.Start("second")
	assert.Empty(t, rec.Take())
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "", LabelFrom(context.Background()))
	assert.Equal(t, "stage2", LabelFrom(WithLabel(context.Background(), "stage2")))
}
