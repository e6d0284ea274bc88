// Invoiced is the invoice processing daemon.
//
// It serves the HTTP API, runs uploaded documents through OCR, extraction,
// validation and confidence scoring, and records an audit trail per document.
//
// Configuration comes from defaults, an optional YAML file and INVOICED_*
// environment variables. See internal/config for the keys.
//
// Usage:
//
//	# Start with in-process defaults (memory store, mock OCR)
//	invoiced
//
//	# Start from a config file, overriding the port
//	INVOICED_SERVER_PORT=9090 invoiced -config /etc/invoiced/config.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/invoiced/internal/archive"
	"github.com/fyrsmithlabs/invoiced/internal/config"
	"github.com/fyrsmithlabs/invoiced/internal/events"
	"github.com/fyrsmithlabs/invoiced/internal/extraction"
	httpserver "github.com/fyrsmithlabs/invoiced/internal/http"
	"github.com/fyrsmithlabs/invoiced/internal/logging"
	"github.com/fyrsmithlabs/invoiced/internal/ocr"
	"github.com/fyrsmithlabs/invoiced/internal/pipeline"
	"github.com/fyrsmithlabs/invoiced/internal/store"
	"github.com/fyrsmithlabs/invoiced/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  invoiced [-config path]   Start the invoiced daemon\n")
			fmt.Fprintf(os.Stderr, "  invoiced version          Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("invoiced by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires every component and serves until ctx is cancelled.
//
//  1. Loads configuration
//  2. Initializes telemetry and the logger
//  3. Opens the store, archive and event publisher
//  4. Builds the OCR provider, extractor and pipeline
//  5. Starts the HTTP server
//  6. Shuts down gracefully on context cancellation
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Telemetry, version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	logger, err := initLogger(cfg.Logging, tel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if h := tel.Health(); h.Degraded() {
		logger.Warn(ctx, "telemetry degraded", zap.String("reason", h.Reason))
	}

	logger.Info(ctx, "starting invoiced",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("store", cfg.Store.Driver),
		zap.String("ocr", cfg.OCR.Provider),
		zap.String("extraction", cfg.Extraction.Mode),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout.Duration()))

	deps, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close(logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	pipe := pipeline.New(deps.store, deps.ocr, deps.extractor,
		pipeline.WithConfig(cfg.Pipeline),
		pipeline.WithLogger(logger),
		pipeline.WithPublisher(deps.publisher),
		pipeline.WithTracer(tel.Tracer(pipeline.TracerName)),
		pipeline.WithMetrics(pipeline.NewMetrics(registry, cfg.Metrics.Namespace)),
	)

	srvCfg := &httpserver.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		AcceptImages:   deps.ocr.Name() != ocr.ProviderMock,
		Metrics:        httpserver.NewHTTPMetrics(tel.Meter("invoiced/http"), logger),
		Telemetry:      tel,
	}
	if cfg.Metrics.Enabled {
		srvCfg.Gatherer = registry
	}

	srv, err := httpserver.NewServer(deps.store, pipe, deps.archive, logger, srvCfg)
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	logger.Info(ctx, "server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.Bool("metrics_endpoint", cfg.Metrics.Enabled),
		zap.Bool("nats", cfg.NATS.Enabled),
		zap.String("archive", cfg.Archive.Driver))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// initLogger maps the logging section onto the zap logger. The otel output
// is attached only when telemetry is exporting.
func initLogger(lc config.LoggingConfig, tel *telemetry.Telemetry) (*logging.Logger, error) {
	cfg := logging.NewDefaultConfig()
	level, err := logging.LevelFromString(lc.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", lc.Level, err)
	}
	cfg.Level = level
	if lc.Format != "" {
		cfg.Format = lc.Format
	}

	var provider otellog.LoggerProvider
	if lc.OTEL && tel.IsEnabled() {
		provider = global.GetLoggerProvider()
		tel.SetLoggerProvider(provider)
		cfg.Output.OTEL = true
	}
	return logging.NewLogger(cfg, provider)
}

// dependencies holds the infrastructure the pipeline and server share.
type dependencies struct {
	store     store.Store
	archive   archive.Archive
	publisher events.Publisher
	ocr       ocr.Provider
	extractor extraction.Extractor
}

// Close releases all infrastructure resources.
func (d *dependencies) Close(logger *logging.Logger) {
	ctx := context.Background()
	if d.publisher != nil {
		if err := d.publisher.Close(); err != nil {
			logger.Warn(ctx, "failed to close event publisher", zap.Error(err))
		}
	}
	if d.archive != nil {
		if err := d.archive.Close(); err != nil {
			logger.Warn(ctx, "failed to close archive", zap.Error(err))
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			logger.Warn(ctx, "failed to close store", zap.Error(err))
		}
	}
}

func initDependencies(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*dependencies, error) {
	deps := &dependencies{}

	st, err := store.New(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	deps.store = st

	arch, err := archive.New(ctx, cfg.Archive)
	if err != nil {
		deps.Close(logger)
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	deps.archive = arch

	pub, err := events.Connect(cfg.NATS)
	if err != nil {
		deps.Close(logger)
		return nil, fmt.Errorf("failed to connect event publisher: %w", err)
	}
	deps.publisher = pub
	if cfg.NATS.Enabled {
		logger.Info(ctx, "connected to NATS", zap.String("url", cfg.NATS.URL))
	}

	provider, err := ocr.NewProvider(ctx, cfg.OCR)
	if err != nil {
		deps.Close(logger)
		return nil, fmt.Errorf("failed to create ocr provider: %w", err)
	}
	deps.ocr = provider

	extractor, err := extraction.NewExtractor(ctx, cfg.Extraction, logger)
	if err != nil {
		deps.Close(logger)
		return nil, fmt.Errorf("failed to create extractor: %w", err)
	}
	deps.extractor = extractor

	return deps, nil
}
