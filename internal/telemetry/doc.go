// Package telemetry provides OpenTelemetry instrumentation for invoiced.
//
// Traces and metrics are exported over OTLP/gRPC to a collector. The pipeline
// opens one span per document run and one child span per step.
//
//	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Telemetry, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
//	tracer := tel.Tracer("invoiced/pipeline")
//	ctx, span := tracer.Start(ctx, "pipeline.ocr")
//	defer span.End()
//
// Telemetry failures do not stop the service. If a provider cannot be built the
// instance reports itself degraded and hands out the global no-op providers.
//
// Tests use TestTelemetry, which records spans in memory:
//
//	tt := telemetry.NewTestTelemetry()
//	_, span := tt.Tracer("test").Start(ctx, "test-span")
//	span.End()
//	tt.AssertSpanExists(t, "test-span")
package telemetry
