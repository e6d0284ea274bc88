package document

import "time"

// Step names a stage of the processing pipeline in the audit trail.
type Step string

const (
	StepOCR        Step = "ocr"
	StepExtraction Step = "extraction"
	StepValidation Step = "validation"
	StepConfidence Step = "confidence"
	StepCompleted  Step = "completed"
	StepFailed     Step = "failed"
)

// EventStatus is the outcome recorded by a ProcessingEvent.
type EventStatus string

const (
	EventStarted   EventStatus = "started"
	EventCompleted EventStatus = "completed"
	EventFailed    EventStatus = "failed"
)

// ProcessingEvent is an append-only audit entry. Events are never updated
// or deleted.
type ProcessingEvent struct {
	ID         string      `json:"id"`
	DocumentID string      `json:"document_id"`
	Step       Step        `json:"step"`
	Status     EventStatus `json:"status"`
	Detail     string      `json:"detail,omitempty"`
	DurationMS *int64      `json:"duration_ms,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}
