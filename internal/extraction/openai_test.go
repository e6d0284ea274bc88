package extraction

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/invoiced/internal/config"
	"github.com/fyrsmithlabs/invoiced/internal/logging"
)

func chatCompletion(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 10, "total_tokens": 20},
	}
}

func TestOpenAIBackend_Complete(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer sk-test-key", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatCompletion(`{"vendor_name":"Acme Corp"}`))
	}))
	defer srv.Close()

	b, err := NewOpenAIBackend(config.ExtractionConfig{
		APIKey:  "sk-test-key",
		BaseURL: srv.URL,
		Model:   "gpt-4o-mini",
	})
	require.NoError(t, err)

	out, err := b.Complete(context.Background(), "system prompt", "user prompt")
	require.NoError(t, err)
	assert.Equal(t, `{"vendor_name":"Acme Corp"}`, out)
	assert.Contains(t, body, "json_object")
	assert.Contains(t, body, "system prompt")
	assert.Contains(t, body, "user prompt")
}

func TestOpenAIBackend_RequiresKey(t *testing.T) {
	_, err := NewOpenAIBackend(config.ExtractionConfig{})
	require.Error(t, err)
}

func TestNewExtractor(t *testing.T) {
	logger := logging.NewNop()

	e, err := NewExtractor(context.Background(), config.ExtractionConfig{Mode: ModeSimple}, logger)
	require.NoError(t, err)
	assert.IsType(t, &PatternExtractor{}, e)

	e, err = NewExtractor(context.Background(), config.ExtractionConfig{
		Mode:    ModeLLM,
		Backend: BackendOpenAI,
		APIKey:  "sk-test-key",
		BaseURL: "http://127.0.0.1:1",
		Redact:  true,
	}, logger)
	require.NoError(t, err)
	assert.IsType(t, &GenerativeExtractor{}, e)

	_, err = NewExtractor(context.Background(), config.ExtractionConfig{Mode: "magic"}, logger)
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = NewExtractor(context.Background(), config.ExtractionConfig{Mode: ModeLLM, Backend: "bard"}, logger)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestGenerativeExtractor_OpenAIEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatCompletion(llmJSON))
	}))
	defer srv.Close()

	b, err := NewOpenAIBackend(config.ExtractionConfig{APIKey: "sk-test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	data, err := newTestGenerative(b, nil).Extract(context.Background(), "ocr")
	require.NoError(t, err)
	assert.Equal(t, "INV-2024-001", data.InvoiceNumber)
	assert.Len(t, data.LineItems, 2)
}
