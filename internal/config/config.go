// Package config loads invoiced configuration from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete invoiced configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Store      StoreConfig      `koanf:"store"`
	OCR        OCRConfig        `koanf:"ocr"`
	Extraction ExtractionConfig `koanf:"extraction"`
	Pipeline   PipelineConfig   `koanf:"pipeline"`
	NATS       NATSConfig       `koanf:"nats"`
	Archive    ArchiveConfig    `koanf:"archive"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Metrics    MetricsConfig    `koanf:"metrics"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	MaxUploadBytes  int64    `koanf:"max_upload_bytes"`
}

// StoreConfig selects the document store.
type StoreConfig struct {
	Driver string `koanf:"driver"` // memory | sqlite
	DSN    string `koanf:"dsn"`
}

// OCRConfig selects and configures the OCR provider.
type OCRConfig struct {
	Provider        string   `koanf:"provider"` // mock | tesseract | vision
	Languages       []string `koanf:"languages"`
	CredentialsFile string   `koanf:"credentials_file"`
	Timeout         Duration `koanf:"timeout"`
}

// ExtractionConfig selects the extraction strategy.
type ExtractionConfig struct {
	Mode       string   `koanf:"mode"`    // simple | llm
	Backend    string   `koanf:"backend"` // openai | vertex
	Model      string   `koanf:"model"`
	APIKey     Secret   `koanf:"api_key"`
	BaseURL    string   `koanf:"base_url"`
	Project    string   `koanf:"project"`
	Location   string   `koanf:"location"`
	Timeout    Duration `koanf:"timeout"`
	MaxRetries int      `koanf:"max_retries"`
	RateLimit  float64  `koanf:"rate_limit"` // requests per second
	Redact     bool     `koanf:"redact"`
}

// PipelineConfig tunes the processing pipeline.
type PipelineConfig struct {
	ReviewThreshold float64  `koanf:"review_threshold"`
	StepTimeout     Duration `koanf:"step_timeout"`
	LockDocuments   bool     `koanf:"lock_documents"`
}

// NATSConfig configures audit event fan-out.
type NATSConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// ArchiveConfig configures raw upload storage.
type ArchiveConfig struct {
	Driver string `koanf:"driver"` // none | fs | gcs
	Dir    string `koanf:"dir"`
	Bucket string `koanf:"bucket"`
	Prefix string `koanf:"prefix"`
}

// LoggingConfig holds the subset of logging settings exposed to operators.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	OTEL   bool   `koanf:"otel"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	Endpoint     string  `koanf:"endpoint"`
	ServiceName  string  `koanf:"service_name"`
	Insecure     bool    `koanf:"insecure"`
	SamplingRate float64 `koanf:"sampling_rate"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Namespace string `koanf:"namespace"`
}

// Default returns a configuration that runs fully in-process: memory store,
// mock OCR, pattern extraction, no event fan-out.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: Duration(10 * time.Second),
			MaxUploadBytes:  20 << 20,
		},
		Store: StoreConfig{
			Driver: "memory",
		},
		OCR: OCRConfig{
			Provider:  "mock",
			Languages: []string{"eng"},
		},
		Extraction: ExtractionConfig{
			Mode:       "simple",
			Backend:    "openai",
			Model:      "gpt-4o-mini",
			Location:   "us-central1",
			Timeout:    Duration(60 * time.Second),
			MaxRetries: 3,
			RateLimit:  50.0 / 60.0,
			Redact:     true,
		},
		Pipeline: PipelineConfig{
			ReviewThreshold: 0.6,
		},
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: "invoices",
		},
		Archive: ArchiveConfig{
			Driver: "none",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Endpoint:     "localhost:4317",
			ServiceName:  "invoiced",
			Insecure:     true,
			SamplingRate: 1.0,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "invoiced",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port))
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("server.max_upload_bytes must be positive"))
	}

	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}

	switch c.OCR.Provider {
	case "mock", "tesseract", "vision":
	default:
		errs = append(errs, fmt.Errorf("unknown ocr.provider %q", c.OCR.Provider))
	}

	switch c.Extraction.Mode {
	case "simple":
	case "llm":
		switch c.Extraction.Backend {
		case "openai":
			if !c.Extraction.APIKey.IsSet() {
				errs = append(errs, errors.New("extraction.api_key is required for the openai backend"))
			}
		case "vertex":
			if c.Extraction.Project == "" {
				errs = append(errs, errors.New("extraction.project is required for the vertex backend"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown extraction.backend %q", c.Extraction.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown extraction.mode %q", c.Extraction.Mode))
	}

	if c.Pipeline.ReviewThreshold < 0 || c.Pipeline.ReviewThreshold > 1 {
		errs = append(errs, fmt.Errorf("pipeline.review_threshold must be between 0 and 1, got %v", c.Pipeline.ReviewThreshold))
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, errors.New("nats.url is required when nats is enabled"))
	}

	switch c.Archive.Driver {
	case "none":
	case "fs":
		if c.Archive.Dir == "" {
			errs = append(errs, errors.New("archive.dir is required for the fs driver"))
		}
	case "gcs":
		if c.Archive.Bucket == "" {
			errs = append(errs, errors.New("archive.bucket is required for the gcs driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown archive.driver %q", c.Archive.Driver))
	}

	if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sampling_rate must be between 0 and 1, got %v", c.Telemetry.SamplingRate))
	}

	return errors.Join(errs...)
}
