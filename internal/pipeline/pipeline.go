package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/invoiced/internal/config"
	"github.com/fyrsmithlabs/invoiced/internal/confidence"
	"github.com/fyrsmithlabs/invoiced/internal/document"
	"github.com/fyrsmithlabs/invoiced/internal/events"
	"github.com/fyrsmithlabs/invoiced/internal/extraction"
	"github.com/fyrsmithlabs/invoiced/internal/logging"
	"github.com/fyrsmithlabs/invoiced/internal/ocr"
	"github.com/fyrsmithlabs/invoiced/internal/store"
	"github.com/fyrsmithlabs/invoiced/internal/validation"
)

// DefaultReviewThreshold routes runs scoring below it to review.
const DefaultReviewThreshold = 0.6

// TracerName is the instrumentation scope of pipeline spans.
const TracerName = "invoiced/pipeline"

// FailureDetail is recorded on the terminal failed event.
const FailureDetail = "Unhandled exception"

// Pipeline sequences OCR, extraction, validation and confidence scoring for
// one document at a time. It is safe for concurrent use across documents.
type Pipeline struct {
	store     store.Store
	ocr       ocr.Provider
	extractor extraction.Extractor
	engine    *validation.Engine
	publisher events.Publisher
	logger    *logging.Logger
	tracer    trace.Tracer
	metrics   *Metrics
	locks     *keyedMutex

	reviewThreshold float64
	stepTimeout     time.Duration
	now             func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithPublisher sets the audit event publisher. Defaults to events.Noop.
func WithPublisher(pub events.Publisher) Option {
	return func(p *Pipeline) {
		if pub != nil {
			p.publisher = pub
		}
	}
}

// WithTracer sets the tracer. Defaults to the global tracer provider.
func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) {
		if t != nil {
			p.tracer = t
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithEngine replaces the default rule engine.
func WithEngine(e *validation.Engine) Option {
	return func(p *Pipeline) {
		if e != nil {
			p.engine = e
		}
	}
}

// WithReviewThreshold sets the overall score below which a run goes to review.
func WithReviewThreshold(v float64) Option {
	return func(p *Pipeline) { p.reviewThreshold = v }
}

// WithStepTimeout bounds each OCR and extraction call. Zero disables it.
func WithStepTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.stepTimeout = d }
}

// WithDocumentLocks serializes concurrent runs on the same document id.
func WithDocumentLocks() Option {
	return func(p *Pipeline) { p.locks = newKeyedMutex() }
}

// WithClock overrides the time source for persisted timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithConfig applies the operator-facing pipeline section.
func WithConfig(cfg config.PipelineConfig) Option {
	return func(p *Pipeline) {
		p.reviewThreshold = cfg.ReviewThreshold
		p.stepTimeout = cfg.StepTimeout.Duration()
		if cfg.LockDocuments {
			p.locks = newKeyedMutex()
		}
	}
}

// New creates a pipeline over the given store and providers.
func New(st store.Store, ocrProvider ocr.Provider, extractor extraction.Extractor, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:           st,
		ocr:             ocrProvider,
		extractor:       extractor,
		engine:          validation.NewEngine(),
		publisher:       events.Noop{},
		logger:          logging.NewNop(),
		tracer:          otel.Tracer(TracerName),
		reviewThreshold: DefaultReviewThreshold,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("pipeline")
	return p
}

// Process runs the full pipeline for documentID over raw.
//
// An unknown id returns document.ErrNotFound with nothing written. A completed
// document is left untouched and Process returns nil.
func (p *Pipeline) Process(ctx context.Context, documentID string, raw []byte) error {
	if documentID == "" {
		return fmt.Errorf("%w: empty document id", document.ErrInvalidInput)
	}
	if p.locks != nil {
		unlock := p.locks.Lock(documentID)
		defer unlock()
	}

	ctx = logging.WithDocumentID(ctx, documentID)
	ctx, span := p.tracer.Start(ctx, "pipeline.process",
		trace.WithAttributes(attribute.String("document.id", documentID)))
	defer span.End()

	doc, err := p.store.GetDocument(ctx, documentID)
	if err != nil {
		recordSpanError(span, err)
		return fmt.Errorf("load document %s: %w", documentID, err)
	}
	if doc.Status == document.StatusCompleted {
		p.logger.Info(ctx, "processing_skipped_idempotent")
		span.SetAttributes(attribute.String("pipeline.outcome", "skipped"))
		p.metrics.countRun("skipped")
		return nil
	}

	p.metrics.inFlight(1)
	defer p.metrics.inFlight(-1)

	p.logger.Info(ctx, "processing_started",
		zap.String("filename", doc.Filename),
		zap.String("previous_status", string(doc.Status)),
		zap.Int("bytes", len(raw)))

	status, overall, err := p.run(ctx, documentID, raw)
	if err != nil {
		p.fail(ctx, documentID, err)
		recordSpanError(span, err)
		span.SetAttributes(attribute.String("pipeline.outcome", string(document.StatusFailed)))
		p.metrics.countRun(string(document.StatusFailed))
		return err
	}

	span.SetAttributes(
		attribute.String("pipeline.outcome", string(status)),
		attribute.Float64("pipeline.confidence", overall),
	)
	p.metrics.countRun(string(status))
	p.logger.Info(ctx, "processing_completed",
		zap.String("final_status", string(status)),
		zap.Float64("confidence", overall))
	return nil
}

func (p *Pipeline) run(ctx context.Context, id string, raw []byte) (document.Status, float64, error) {
	if err := p.store.UpdateStatus(ctx, id, document.StatusProcessing); err != nil {
		return "", 0, fmt.Errorf("mark processing: %w", err)
	}

	var text *ocr.Result
	err := p.step(ctx, id, document.StepOCR, func(ctx context.Context) error {
		res, err := p.ocr.ExtractText(ctx, raw)
		if err != nil {
			return err
		}
		if res == nil {
			return errors.New("provider returned no result")
		}
		text = res
		return nil
	})
	if err != nil {
		return "", 0, fmt.Errorf("ocr: %w", err)
	}

	var data *document.ExtractedData
	err = p.step(ctx, id, document.StepExtraction, func(ctx context.Context) error {
		d, err := p.extractor.Extract(ctx, text.Text)
		if err != nil {
			return err
		}
		if d == nil {
			return errors.New("extractor returned no data")
		}
		data = d
		return nil
	})
	if err != nil {
		return "", 0, fmt.Errorf("extraction: %w", err)
	}

	existing, err := p.store.InvoiceNumbersExcluding(ctx, id)
	if err != nil {
		return "", 0, fmt.Errorf("load invoice numbers: %w", err)
	}

	results := p.engine.Validate(data, existing)
	detail := fmt.Sprintf("%d rules evaluated, %d passed", len(results), document.CountPassed(results))
	if err := p.emit(ctx, id, document.StepValidation, document.EventCompleted, detail, nil); err != nil {
		return "", 0, err
	}
	for _, r := range results {
		if !r.Passed {
			p.metrics.countValidationFailure(r.Rule)
			p.logger.Debug(ctx, "validation_rule_failed",
				zap.String("rule", r.Rule),
				zap.Float64("score", r.Score),
				zap.String("message", r.Message))
		}
	}

	conf := confidence.Compute(text.Confidence, data.ExtractionConfidence, results, data)
	if err := p.emit(ctx, id, document.StepConfidence, document.EventCompleted, fmt.Sprintf("overall=%.3f", conf.Overall), nil); err != nil {
		return "", 0, err
	}

	status := document.StatusCompleted
	if conf.Overall < p.reviewThreshold || document.AnyFailed(results) {
		status = document.StatusReview
	}

	now := p.now().UTC()
	ext := newExtraction(id, data, text, conf, now)
	if err := p.store.SaveResults(ctx, ext, newValidations(id, results, now), status); err != nil {
		return "", 0, fmt.Errorf("save results: %w", err)
	}
	p.metrics.observeConfidence(conf.Overall)

	detail = fmt.Sprintf("final_status=%s confidence=%.3f", status, conf.Overall)
	if err := p.emit(ctx, id, document.StepCompleted, document.EventCompleted, detail, nil); err != nil {
		return "", 0, err
	}
	return status, conf.Overall, nil
}

// step runs fn between a started event and a completed or failed event that
// carries the elapsed time. The provider error is returned unchanged.
func (p *Pipeline) step(ctx context.Context, id string, name document.Step, fn func(context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, "pipeline."+string(name))
	defer span.End()

	if err := p.emit(ctx, id, name, document.EventStarted, "", nil); err != nil {
		recordSpanError(span, err)
		return err
	}

	stepCtx := ctx
	if p.stepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, p.stepTimeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(stepCtx)
	elapsed := time.Since(start)
	ms := elapsed.Milliseconds()
	span.SetAttributes(attribute.Int64("duration_ms", ms))

	if err != nil {
		recordSpanError(span, err)
		p.metrics.observeStep(name, document.EventFailed, elapsed)
		p.logger.Warn(ctx, "step_failed",
			zap.String("step", string(name)),
			zap.Int64("duration_ms", ms),
			zap.Error(err))
		if emitErr := p.emit(ctx, id, name, document.EventFailed, err.Error(), &ms); emitErr != nil {
			p.logger.Error(ctx, "audit_append_failed", zap.String("step", string(name)), zap.Error(emitErr))
		}
		return err
	}

	p.metrics.observeStep(name, document.EventCompleted, elapsed)
	return p.emit(ctx, id, name, document.EventCompleted, "", &ms)
}

// emit appends an audit event and forwards it to the publisher. Publish
// failures are logged and never fail the run.
func (p *Pipeline) emit(ctx context.Context, id string, step document.Step, status document.EventStatus, detail string, durationMS *int64) error {
	ev := &document.ProcessingEvent{
		ID:         uuid.NewString(),
		DocumentID: id,
		Step:       step,
		Status:     status,
		Detail:     detail,
		DurationMS: durationMS,
		CreatedAt:  p.now().UTC(),
	}
	if err := p.store.AppendEvent(ctx, ev); err != nil {
		return fmt.Errorf("append %s/%s event: %w", step, status, err)
	}

	if err := p.publisher.Publish(ctx, *ev); err != nil {
		p.metrics.countPublishError()
		p.logger.Warn(ctx, "event_publish_failed",
			zap.String("step", string(step)),
			zap.String("status", string(status)),
			zap.Error(err))
	}
	return nil
}

// fail records the terminal failure. Bookkeeping runs even when ctx is
// already cancelled; its own errors are logged, never returned.
func (p *Pipeline) fail(ctx context.Context, id string, cause error) {
	ctx = context.WithoutCancel(ctx)

	if err := p.store.UpdateStatus(ctx, id, document.StatusFailed); err != nil {
		p.logger.Error(ctx, "mark_failed_error", zap.Error(err))
	}
	if err := p.emit(ctx, id, document.StepFailed, document.EventFailed, FailureDetail, nil); err != nil {
		p.logger.Error(ctx, "audit_append_failed", zap.String("step", string(document.StepFailed)), zap.Error(err))
	}
	p.logger.Error(ctx, "processing_failed", zap.Error(cause))
}

func newExtraction(id string, data *document.ExtractedData, text *ocr.Result, conf confidence.Result, now time.Time) *document.Extraction {
	return &document.Extraction{
		ID:                   uuid.NewString(),
		DocumentID:           id,
		VendorName:           data.VendorName,
		TaxID:                data.TaxID,
		InvoiceNumber:        data.InvoiceNumber,
		TotalAmount:          data.TotalAmount,
		InvoiceDate:          data.InvoiceDate,
		DueDate:              data.DueDate,
		LineItems:            data.LineItems,
		FieldConfidences:     conf.PerField,
		OCRText:              text.Text,
		OCRConfidence:        conf.OCRScore,
		ExtractionConfidence: conf.ExtractionScore,
		OverallConfidence:    conf.Overall,
		CreatedAt:            now,
	}
}

func newValidations(id string, results []document.ValidationResult, now time.Time) []document.Validation {
	out := make([]document.Validation, len(results))
	for i, r := range results {
		out[i] = document.Validation{
			ID:         uuid.NewString(),
			DocumentID: id,
			Rule:       r.Rule,
			Passed:     r.Passed,
			Score:      r.Score,
			Message:    r.Message,
			CreatedAt:  now,
		}
	}
	return out
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
