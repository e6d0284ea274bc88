package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// State is the lifecycle state reported by Health.
type State string

const (
	// StateDisabled means telemetry is off by configuration.
	StateDisabled State = "disabled"
	// StateExporting means every provider was built.
	StateExporting State = "exporting"
	// StateDegraded means at least one provider failed to build.
	StateDegraded State = "degraded"
	// StateStopped means Shutdown has run.
	StateStopped State = "stopped"
)

// HealthStatus is the telemetry section of GET /health.
type HealthStatus struct {
	State  State  `json:"state"`
	Reason string `json:"reason,omitempty"`
}

// Degraded reports whether exporting was requested but is not fully working.
func (h HealthStatus) Degraded() bool {
	return h.State == StateDegraded
}

// Telemetry owns the tracer and meter providers for the process.
//
// A provider that fails to build leaves the instance degraded. Callers then
// get the global tracer or meter, which is a no-op unless something else set
// it.
type Telemetry struct {
	config *Config

	tracerProvider *trace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	logProvider    log.LoggerProvider

	mu     sync.RWMutex
	state  State
	reason string
}

// New creates a Telemetry instance. A disabled config yields a no-op instance.
func New(ctx context.Context, cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	t := &Telemetry{config: cfg, state: StateDisabled}
	if !cfg.Enabled {
		return t, nil
	}
	t.state = StateExporting

	res := newResource(cfg)

	if tp, err := newTracerProvider(ctx, cfg, res); err != nil {
		t.setDegraded("tracer provider failed: %v", err)
	} else {
		t.tracerProvider = tp
		otel.SetTracerProvider(tp)
	}

	if mp, err := newMeterProvider(ctx, cfg, res); err != nil {
		t.setDegraded("meter provider failed: %v", err)
	} else if mp != nil {
		t.meterProvider = mp
		otel.SetMeterProvider(mp)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return t, nil
}

// Tracer returns a tracer for the instrumentation scope name.
func (t *Telemetry) Tracer(name string, opts ...oteltrace.TracerOption) oteltrace.Tracer {
	if t == nil || t.tracerProvider == nil {
		return otel.GetTracerProvider().Tracer(name, opts...)
	}
	return t.tracerProvider.Tracer(name, opts...)
}

// Meter returns a meter for the instrumentation scope name.
func (t *Telemetry) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if t == nil || t.meterProvider == nil {
		return otel.GetMeterProvider().Meter(name, opts...)
	}
	return t.meterProvider.Meter(name, opts...)
}

// LoggerProvider returns the provider used by the zap OTEL bridge. May be nil.
func (t *Telemetry) LoggerProvider() log.LoggerProvider {
	if t == nil {
		return nil
	}
	return t.logProvider
}

// SetLoggerProvider sets the provider used by the zap OTEL bridge.
func (t *Telemetry) SetLoggerProvider(lp log.LoggerProvider) {
	if t != nil {
		t.logProvider = lp
	}
}

// providerOp is Shutdown or ForceFlush on one provider.
type providerOp struct {
	name string
	fn   func(context.Context) error
}

func (t *Telemetry) ops(shutdown bool) []providerOp {
	var ops []providerOp
	if tp := t.tracerProvider; tp != nil {
		fn := tp.ForceFlush
		if shutdown {
			fn = tp.Shutdown
		}
		ops = append(ops, providerOp{name: "trace provider", fn: fn})
	}
	if mp := t.meterProvider; mp != nil {
		fn := mp.ForceFlush
		if shutdown {
			fn = mp.Shutdown
		}
		ops = append(ops, providerOp{name: "meter provider", fn: fn})
	}
	return ops
}

func runOps(ctx context.Context, verb string, ops []providerOp) error {
	var errs []error
	for _, op := range ops {
		if err := op.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", op.name, verb, err))
		}
	}
	return errors.Join(errs...)
}

// Shutdown flushes and stops all providers. Without a deadline on ctx the
// configured shutdown timeout applies.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}

	if _, ok := ctx.Deadline(); !ok && t.config != nil && t.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.ShutdownTimeout)
		defer cancel()
	}

	err := runOps(ctx, "shutdown", t.ops(true))

	t.mu.Lock()
	t.state = StateStopped
	t.mu.Unlock()
	return err
}

// ForceFlush exports all pending spans and metrics.
func (t *Telemetry) ForceFlush(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return runOps(ctx, "flush", t.ops(false))
}

// Health returns the current state. A nil instance reports disabled.
func (t *Telemetry) Health() HealthStatus {
	if t == nil {
		return HealthStatus{State: StateDisabled}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return HealthStatus{State: t.state, Reason: t.reason}
}

// IsEnabled reports whether telemetry was enabled and has not been shut down.
func (t *Telemetry) IsEnabled() bool {
	switch t.Health().State {
	case StateExporting, StateDegraded:
		return true
	}
	return false
}

func (t *Telemetry) setDegraded(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateDegraded
	t.reason = fmt.Sprintf(format, args...)
}
