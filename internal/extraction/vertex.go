package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/fyrsmithlabs/invoiced/internal/config"
)

const defaultVertexModel = "gemini-1.5-flash"

// VertexBackend calls a Gemini model on Vertex AI with JSON response mode.
type VertexBackend struct {
	client *genai.Client
	model  string
}

// NewVertexBackend creates a Vertex AI backend from cfg.
func NewVertexBackend(ctx context.Context, cfg config.ExtractionConfig) (*VertexBackend, error) {
	if cfg.Project == "" {
		return nil, errors.New("vertex project required")
	}
	model := cfg.Model
	if model == "" || strings.HasPrefix(model, "gpt-") {
		model = defaultVertexModel
	}
	client, err := genai.NewClient(ctx, cfg.Project, cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	return &VertexBackend{client: client, model: model}, nil
}

// Name implements Backend.
func (v *VertexBackend) Name() string { return BackendVertex }

// Complete implements Backend.
func (v *VertexBackend) Complete(ctx context.Context, system, user string) (string, error) {
	m := v.client.GenerativeModel(v.model)
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	m.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}

	resp, err := m.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		return "", fmt.Errorf("vertex generate: %w", err)
	}
	return responseText(resp)
}

// Close releases the underlying client.
func (v *VertexBackend) Close() error {
	return v.client.Close()
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("empty response from vertex")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	if b.Len() == 0 {
		return "", errors.New("vertex response contained no text")
	}
	return b.String(), nil
}

var _ Backend = (*VertexBackend)(nil)
