package document

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a Document.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusReview     Status = "review"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusReview:
		return true
	}
	return false
}

// Terminal reports whether s ends a processing run.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusReview || s == StatusFailed
}

// ParseStatus converts a raw string to a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, raw)
	}
	return s, nil
}

// DefaultContentType is assumed when an upload does not declare one.
const DefaultContentType = "application/pdf"

// Document is an uploaded invoice and its processing state.
type Document struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// New creates a pending document with a fresh id.
func New(filename, contentType string) *Document {
	if contentType == "" {
		contentType = DefaultContentType
	}
	now := time.Now().UTC()
	return &Document{
		ID:          uuid.NewString(),
		Filename:    filename,
		ContentType: contentType,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
