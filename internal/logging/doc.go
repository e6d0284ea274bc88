// Package logging provides structured logging for invoiced on top of Zap.
//
// Loggers are context-aware: every call takes a context and picks up the
// correlation fields stored in it (trace and span ids, request id, document
// id), so a single document's run can be followed across the pipeline, the
// providers and the HTTP layer.
//
//	logger, err := logging.NewLogger(cfg, nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithDocumentID(ctx, doc.ID)
//	logger.Info(ctx, "processing_started", zap.String("filename", doc.Filename))
//
// Output can go to stdout, to an OpenTelemetry log provider through the
// otelzap bridge, or both. Fields with sensitive names (api_key, credentials)
// are redacted by the stdout encoder.
package logging
