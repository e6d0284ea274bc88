// Package http provides the invoiced HTTP API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/invoiced/internal/archive"
	"github.com/fyrsmithlabs/invoiced/internal/document"
	"github.com/fyrsmithlabs/invoiced/internal/logging"
	"github.com/fyrsmithlabs/invoiced/internal/redact"
	"github.com/fyrsmithlabs/invoiced/internal/store"
	"github.com/fyrsmithlabs/invoiced/internal/telemetry"
)

// DefaultMaxUploadBytes caps multipart uploads when Config leaves it unset.
const DefaultMaxUploadBytes = 20 << 20

// Processor runs the document pipeline.
type Processor interface {
	Process(ctx context.Context, documentID string, raw []byte) error
}

// Config holds HTTP server configuration.
type Config struct {
	Host           string
	Port           int
	MaxUploadBytes int64

	// AcceptImages admits PNG, JPEG and TIFF uploads in addition to PDF.
	AcceptImages bool

	// Gatherer backs GET /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer

	// Metrics records otel request metrics. Nil disables them.
	Metrics *HTTPMetrics

	// Telemetry adds exporter state to GET /health. May be nil.
	Telemetry *telemetry.Telemetry
}

// Server provides HTTP endpoints for invoiced.
type Server struct {
	echo     *echo.Echo
	store    store.Store
	pipeline Processor
	archive  archive.Archive
	redactor *redact.Redactor
	logger   *logging.Logger
	config   *Config
}

// NewServer creates a new HTTP server.
func NewServer(st store.Store, proc Processor, arch archive.Archive, logger *logging.Logger, cfg *Config) (*Server, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if proc == nil {
		return nil, fmt.Errorf("pipeline cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if arch == nil {
		arch = archive.None{}
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8080,
		}
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		store:    st,
		pipeline: proc,
		archive:  arch,
		redactor: redact.MustNew(nil),
		logger:   logger.Named("http"),
		config:   cfg,
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if cfg.Metrics != nil {
		e.Use(cfg.Metrics.MetricsMiddleware())
	}
	e.Use(s.requestLogger)

	s.registerRoutes()
	return s, nil
}

// requestLogger threads the request id into the context and logs each request.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		req := c.Request()
		requestID := c.Response().Header().Get(echo.HeaderXRequestID)
		ctx := logging.WithRequestID(req.Context(), requestID)
		c.SetRequest(req.WithContext(ctx))

		err := next(c)
		if err != nil {
			// Let echo write the response so the logged status is final.
			c.Error(err)
		}

		s.logger.Info(ctx, "http request",
			zap.String("method", req.Method),
			zap.String("uri", req.RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	}
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	if s.config.Gatherer != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := s.echo.Group("/api/v1")
	v1.POST("/documents/upload", s.handleUpload, middleware.BodyLimit(bodyLimit(s.config.MaxUploadBytes)))
	v1.GET("/documents/:id", s.handleGetDocument)
	v1.POST("/documents/:id/reprocess", s.handleReprocess)
	v1.GET("/review/queue", s.handleReviewQueue)
	v1.POST("/redact", s.handleRedact)
}

// handleHealth reports liveness. A degraded telemetry pipeline is reported
// but still answers 200.
func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok"}
	if s.config.Telemetry != nil {
		h := s.config.Telemetry.Health()
		resp.Telemetry = &h
		if h.Degraded() {
			resp.Status = "degraded"
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// handleRedact previews what generative extraction would send upstream.
func (s *Server) handleRedact(c echo.Context) error {
	var req RedactRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content field is required")
	}

	result := s.redactor.Redact(req.Content)
	s.logger.Debug(c.Request().Context(), "redacted content", zap.Int("findings", len(result.Findings)))

	return c.JSON(http.StatusOK, RedactResponse{
		Content:       result.Text,
		FindingsCount: len(result.Findings),
		ByRule:        result.ByRule,
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router, mainly for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// toHTTPError maps domain errors onto HTTP status codes.
func toHTTPError(err error) *echo.HTTPError {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he
	case errors.Is(err, document.ErrNotFound), errors.Is(err, archive.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, document.ErrUnsupportedContentType):
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, document.ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// bodyLimit renders n in the unit syntax BodyLimit expects, leaving headroom
// for multipart framing.
func bodyLimit(n int64) string {
	return fmt.Sprintf("%dK", n/1024+64)
}
