package extraction

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/invoiced/internal/config"
	"github.com/fyrsmithlabs/invoiced/internal/document"
	"github.com/fyrsmithlabs/invoiced/internal/logging"
	"github.com/fyrsmithlabs/invoiced/internal/redact"
)

// Extraction modes.
const (
	ModeSimple = "simple"
	ModeLLM    = "llm"
)

// Generative backends.
const (
	BackendOpenAI = "openai"
	BackendVertex = "vertex"
)

// ErrUnknownProvider is returned for an unsupported mode or backend.
var ErrUnknownProvider = errors.New("unknown extraction provider")

// Extractor turns OCR text into structured fields.
type Extractor interface {
	Extract(ctx context.Context, text string) (*document.ExtractedData, error)
}

// NewExtractor builds the extractor selected by cfg.Mode.
func NewExtractor(ctx context.Context, cfg config.ExtractionConfig, logger *logging.Logger) (Extractor, error) {
	switch cfg.Mode {
	case "", ModeSimple:
		return NewPatternExtractor(), nil
	case ModeLLM:
	default:
		return nil, fmt.Errorf("%w: mode %q", ErrUnknownProvider, cfg.Mode)
	}

	var (
		backend Backend
		err     error
	)
	switch cfg.Backend {
	case "", BackendOpenAI:
		backend, err = NewOpenAIBackend(cfg)
	case BackendVertex:
		backend, err = NewVertexBackend(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: backend %q", ErrUnknownProvider, cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	opts := []GenerativeOption{
		WithMaxRetries(cfg.MaxRetries),
		WithRateLimit(cfg.RateLimit, defaultBurst),
	}
	if cfg.Redact {
		opts = append(opts, WithRedactor(redact.MustNew(nil)))
	}
	return NewGenerativeExtractor(backend, logger, opts...), nil
}
