package extraction

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/fyrsmithlabs/invoiced/internal/config"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIBackend calls an OpenAI-compatible chat completions endpoint in JSON
// mode.
type OpenAIBackend struct {
	llm   *openai.LLM
	model string
}

// NewOpenAIBackend creates an OpenAI backend from cfg.
func NewOpenAIBackend(cfg config.ExtractionConfig) (*OpenAIBackend, error) {
	if !cfg.APIKey.IsSet() {
		return nil, errors.New("openai API key required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey.Value()),
		openai.WithModel(model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, openai.WithHTTPClient(&http.Client{Timeout: cfg.Timeout.Duration()}))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return &OpenAIBackend{llm: llm, model: model}, nil
}

// Name implements Backend.
func (o *OpenAIBackend) Name() string { return BackendOpenAI }

// Complete implements Backend.
func (o *OpenAIBackend) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := o.llm.GenerateContent(ctx,
		[]llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeSystem, system),
			llms.TextParts(llms.ChatMessageTypeHuman, user),
		},
		llms.WithTemperature(0),
		llms.WithJSONMode(),
	)
	if err != nil {
		return "", fmt.Errorf("openai generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty response from openai")
	}
	return resp.Choices[0].Content, nil
}

var _ Backend = (*OpenAIBackend)(nil)
