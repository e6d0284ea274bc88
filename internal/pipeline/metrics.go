package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fyrsmithlabs/invoiced/internal/document"
)

// DefaultNamespace prefixes every pipeline metric.
const DefaultNamespace = "invoiced"

// Metrics holds the Prometheus collectors for pipeline runs.
type Metrics struct {
	// RunsTotal counts finished runs.
	// Labels: outcome (completed, review, failed, skipped)
	RunsTotal *prometheus.CounterVec

	// StepDuration tracks the wall time of each timed step.
	// Labels: step (ocr, extraction), status (completed, failed)
	StepDuration *prometheus.HistogramVec

	// OverallConfidence observes the aggregated confidence of committed runs.
	OverallConfidence prometheus.Histogram

	// ValidationFailures counts failed rules.
	// Labels: rule
	ValidationFailures *prometheus.CounterVec

	// PublishErrors counts audit events the publisher rejected.
	PublishErrors prometheus.Counter

	// InFlight is the number of runs currently executing.
	InFlight prometheus.Gauge
}

// NewMetrics registers the pipeline collectors with reg. A nil reg uses the
// default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "runs_total",
				Help:      "Total number of pipeline runs by outcome",
			},
			[]string{"outcome"},
		),
		StepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "step_duration_seconds",
				Help:      "Duration of OCR and extraction steps in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"step", "status"},
		),
		OverallConfidence: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "overall_confidence",
				Help:      "Overall confidence of committed runs",
				Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
			},
		),
		ValidationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "validation_failures_total",
				Help:      "Total number of failed validation rules",
			},
			[]string{"rule"},
		),
		PublishErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "publish_errors_total",
				Help:      "Total number of audit events the publisher failed to deliver",
			},
		),
		InFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "runs_in_flight",
				Help:      "Number of pipeline runs currently executing",
			},
		),
	}
}

func (m *Metrics) countRun(outcome string) {
	if m != nil {
		m.RunsTotal.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) observeStep(step document.Step, status document.EventStatus, d time.Duration) {
	if m != nil {
		m.StepDuration.WithLabelValues(string(step), string(status)).Observe(d.Seconds())
	}
}

func (m *Metrics) observeConfidence(v float64) {
	if m != nil {
		m.OverallConfidence.Observe(v)
	}
}

func (m *Metrics) countValidationFailure(rule string) {
	if m != nil {
		m.ValidationFailures.WithLabelValues(rule).Inc()
	}
}

func (m *Metrics) countPublishError() {
	if m != nil {
		m.PublishErrors.Inc()
	}
}

func (m *Metrics) inFlight(delta float64) {
	if m != nil {
		m.InFlight.Add(delta)
	}
}
