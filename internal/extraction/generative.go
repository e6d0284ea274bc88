package extraction

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/invoiced/internal/document"
	"github.com/fyrsmithlabs/invoiced/internal/logging"
	"github.com/fyrsmithlabs/invoiced/internal/redact"
)

// Rate limiter defaults: 50 requests per minute.
const (
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
)

const (
	defaultMaxRetries      = 3
	defaultInitialInterval = 1 * time.Second
	defaultMaxInterval     = 10 * time.Second
)

// SystemPrompt instructs the model to return the invoice fields as JSON.
const SystemPrompt = `You are a precise invoice data extraction assistant.
Given raw OCR text from an invoice, extract ALL of the following fields as a
JSON object. Use null for fields that cannot be found.

Fields to extract:
- vendor_name: string, the company or individual issuing the invoice
- tax_id: string, EIN, VAT ID, or equivalent (e.g. "12-3456789")
- invoice_number: string, the invoice reference/number
- invoice_date: string, ISO 8601 date (YYYY-MM-DD) or null
- due_date: string, ISO 8601 date (YYYY-MM-DD) or null
- total_amount: number, the final total amount as a decimal number
- line_items: array of objects, each with:
    - description: string
    - quantity: number or null
    - unit_price: number or null
    - total: number

Also include a "confidence" object with a 0.0-1.0 score for each field
indicating how confident you are in the extracted value.

Respond ONLY with valid JSON. No explanation, no markdown fences.`

// userPrompt wraps the OCR text for the model.
func userPrompt(text string) string {
	return "Invoice OCR text:\n\n" + text
}

// Backend sends one completion request to a language model.
type Backend interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Name() string
}

// GenerativeExtractor extracts fields with a language model and falls back
// to PatternExtractor when the model call or its output fails.
type GenerativeExtractor struct {
	backend    Backend
	fallback   *PatternExtractor
	limiter    *rate.Limiter
	maxRetries uint
	newBackOff func() backoff.BackOff
	redactor   *redact.Redactor
	logger     *logging.Logger
}

// GenerativeOption configures a GenerativeExtractor.
type GenerativeOption func(*GenerativeExtractor)

// WithMaxRetries sets the number of attempts per model call. Values below 1
// keep the default.
func WithMaxRetries(n int) GenerativeOption {
	return func(g *GenerativeExtractor) {
		if n > 0 {
			g.maxRetries = uint(n)
		}
	}
}

// WithRateLimit sets the request rate in requests per second.
func WithRateLimit(perSecond float64, burst int) GenerativeOption {
	return func(g *GenerativeExtractor) {
		if perSecond > 0 {
			if burst < 1 {
				burst = 1
			}
			g.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithBackOff replaces the retry schedule.
func WithBackOff(newBackOff func() backoff.BackOff) GenerativeOption {
	return func(g *GenerativeExtractor) {
		g.newBackOff = newBackOff
	}
}

// WithRedactor masks sensitive data before the text leaves the process.
func WithRedactor(r *redact.Redactor) GenerativeOption {
	return func(g *GenerativeExtractor) {
		g.redactor = r
	}
}

// NewGenerativeExtractor creates a GenerativeExtractor over backend.
func NewGenerativeExtractor(b Backend, logger *logging.Logger, opts ...GenerativeOption) *GenerativeExtractor {
	if logger == nil {
		logger = logging.NewNop()
	}
	g := &GenerativeExtractor{
		backend:    b,
		fallback:   NewPatternExtractor(),
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		maxRetries: defaultMaxRetries,
		newBackOff: defaultBackOff,
		logger:     logger.Named("extraction"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = defaultInitialInterval
	b.MaxInterval = defaultMaxInterval
	return b
}

// Extract implements Extractor. It never returns an error.
func (g *GenerativeExtractor) Extract(ctx context.Context, text string) (*document.ExtractedData, error) {
	data, err := g.extract(ctx, text)
	if err != nil {
		g.logger.Warn(ctx, "llm_extraction_failed_falling_back",
			zap.String("backend", g.backend.Name()),
			zap.Error(err),
		)
		return g.fallback.extract(text), nil
	}
	g.logger.Info(ctx, "llm_extraction_complete",
		zap.String("backend", g.backend.Name()),
		zap.Int("line_items", len(data.LineItems)),
		zap.Float64("confidence", data.ExtractionConfidence),
	)
	return data, nil
}

func (g *GenerativeExtractor) extract(ctx context.Context, text string) (*document.ExtractedData, error) {
	if g.redactor != nil {
		res := g.redactor.Redact(text)
		if res.HasFindings() {
			g.logger.Debug(ctx, "ocr_text_redacted", zap.Int("findings", len(res.Findings)))
		}
		text = res.Text
	}

	raw, err := g.complete(ctx, userPrompt(text))
	if err != nil {
		return nil, err
	}
	return parseGenerativeResponse(raw)
}

// complete calls the backend under the rate limiter, retrying with
// exponential backoff.
func (g *GenerativeExtractor) complete(ctx context.Context, user string) (string, error) {
	attempt := 0
	op := func() (string, error) {
		attempt++
		if err := g.limiter.Wait(ctx); err != nil {
			return "", backoff.Permanent(fmt.Errorf("rate limiter error: %w", err))
		}
		out, err := g.backend.Complete(ctx, SystemPrompt, user)
		if err != nil {
			if ctx.Err() != nil {
				return "", backoff.Permanent(err)
			}
			g.logger.Debug(ctx, "llm_call_failed", zap.Int("attempt", attempt), zap.Error(err))
			return "", err
		}
		return out, nil
	}

	out, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(g.newBackOff()),
		backoff.WithMaxTries(g.maxRetries),
	)
	if err != nil {
		return "", fmt.Errorf("%s completion failed after %d attempt(s): %w", g.backend.Name(), attempt, err)
	}
	return out, nil
}

var _ Extractor = (*GenerativeExtractor)(nil)
