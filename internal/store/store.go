// Package store persists documents, extractions, validations and the
// processing audit trail.
//
// Two drivers exist: an in-process memory store and a SQLite store built on
// the pure-Go modernc.org/sqlite driver. Both are safe for concurrent use.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/invoiced/internal/config"
	"github.com/fyrsmithlabs/invoiced/internal/document"
)

// ErrDuplicate is returned when creating a document whose id already exists.
var ErrDuplicate = errors.New("document already exists")

// Store is the persistence port used by the pipeline and the HTTP API.
type Store interface {
	// CreateDocument inserts a new document.
	CreateDocument(ctx context.Context, doc *document.Document) error

	// GetDocument returns document.ErrNotFound when id is unknown.
	GetDocument(ctx context.Context, id string) (*document.Document, error)

	// UpdateStatus sets the status and bumps UpdatedAt.
	UpdateStatus(ctx context.Context, id string, status document.Status) error

	// ListByStatus returns documents with status, newest first. A limit of
	// zero or less returns all.
	ListByStatus(ctx context.Context, status document.Status, limit int) ([]*document.Document, error)

	// AppendEvent adds an audit event. Events are never updated.
	AppendEvent(ctx context.Context, ev *document.ProcessingEvent) error

	// Events returns a document's events in insertion order.
	Events(ctx context.Context, documentID string) ([]document.ProcessingEvent, error)

	// SaveResults writes the extraction, its validations and the final
	// status in a single commit, replacing results of any earlier run.
	SaveResults(ctx context.Context, ext *document.Extraction, validations []document.Validation, status document.Status) error

	// Extraction returns document.ErrNotFound when no run has committed.
	Extraction(ctx context.Context, documentID string) (*document.Extraction, error)

	// Validations returns the validations of the last committed run in
	// rule order.
	Validations(ctx context.Context, documentID string) ([]document.Validation, error)

	// InvoiceNumbersExcluding returns the non-empty invoice numbers of every
	// other document's extraction. The result is never nil.
	InvoiceNumbersExcluding(ctx context.Context, documentID string) (document.InvoiceNumberSet, error)

	Close() error
}

// Driver names.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// New opens the store selected by cfg.
func New(cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		return OpenSQLite(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// LoadRecord assembles the outbound view of a document.
func LoadRecord(ctx context.Context, s Store, id string) (*document.Record, error) {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	rec := &document.Record{Document: doc}

	ext, err := s.Extraction(ctx, id)
	switch {
	case err == nil:
		rec.Extraction = ext
	case !errors.Is(err, document.ErrNotFound):
		return nil, fmt.Errorf("load extraction: %w", err)
	}

	if rec.Validations, err = s.Validations(ctx, id); err != nil {
		return nil, fmt.Errorf("load validations: %w", err)
	}
	if rec.Events, err = s.Events(ctx, id); err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	return rec, nil
}

func validateStatus(status document.Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", document.ErrInvalidInput, status)
	}
	return nil
}
