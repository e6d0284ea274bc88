// Package ocr turns raw document bytes into text with an overall recognition
// confidence.
//
// Three providers are available: a deterministic mock used for local runs and
// tests, a local Tesseract engine (with PDF page images extracted through
// pdfcpu), and Google Cloud Vision document text detection.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/invoiced/internal/config"
)

// Provider names.
const (
	ProviderMock      = "mock"
	ProviderTesseract = "tesseract"
	ProviderVision    = "vision"
)

var (
	// ErrUnknownProvider is returned by NewProvider for unsupported names.
	ErrUnknownProvider = errors.New("unknown ocr provider")
	// ErrEmptyInput is returned when no bytes are supplied.
	ErrEmptyInput = errors.New("empty document")
	// ErrNoText is returned when a provider recognised nothing.
	ErrNoText = errors.New("no text recognized")
)

// Result is the output of a recognition pass.
type Result struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Provider extracts text from a raw document.
type Provider interface {
	ExtractText(ctx context.Context, raw []byte) (*Result, error)
	Name() string
}

// NewProvider builds the provider named by cfg.Provider. A positive
// cfg.Timeout bounds every call.
func NewProvider(ctx context.Context, cfg config.OCRConfig) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case "", ProviderMock:
		p = NewMock()
	case ProviderTesseract:
		p = NewTesseract(cfg.Languages...)
	case ProviderVision:
		p, err = NewVision(ctx, cfg.CredentialsFile)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return WithTimeout(p, cfg.Timeout.Duration()), nil
}

// WithTimeout bounds each ExtractText call on p. A non-positive d returns p.
func WithTimeout(p Provider, d time.Duration) Provider {
	if d <= 0 {
		return p
	}
	return &timeoutProvider{Provider: p, timeout: d}
}

type timeoutProvider struct {
	Provider
	timeout time.Duration
}

func (t *timeoutProvider) ExtractText(ctx context.Context, raw []byte) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.Provider.ExtractText(ctx, raw)
}

// isPDF sniffs the content type of raw.
func isPDF(raw []byte) bool {
	return http.DetectContentType(raw) == "application/pdf"
}

// clamp keeps a confidence inside [0, 1].
func clamp(v float64) float64 {
	switch {
	case v != v, v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
