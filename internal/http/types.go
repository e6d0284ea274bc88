package http

import (
	"time"

	"github.com/fyrsmithlabs/invoiced/internal/document"
	"github.com/fyrsmithlabs/invoiced/internal/telemetry"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string                  `json:"status"`
	Telemetry *telemetry.HealthStatus `json:"telemetry,omitempty"`
}

// ReviewQueueItem is one entry of GET /api/v1/review/queue.
type ReviewQueueItem struct {
	ID         string               `json:"id"`
	Filename   string               `json:"filename"`
	Status     document.Status      `json:"status"`
	CreatedAt  time.Time            `json:"created_at"`
	Extraction *document.Extraction `json:"extraction,omitempty"`
}

// RedactRequest is the request body for POST /api/v1/redact.
type RedactRequest struct {
	Content string `json:"content"`
}

// RedactResponse is the response body for POST /api/v1/redact.
type RedactResponse struct {
	Content       string         `json:"content"`
	FindingsCount int            `json:"findings_count"`
	ByRule        map[string]int `json:"by_rule,omitempty"`
}
