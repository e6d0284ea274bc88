package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fyrsmithlabs/invoiced/internal/document"
)

// Memory is an in-process Store. Values are copied on the way in and out so
// callers never share state with the store.
type Memory struct {
	mu          sync.Mutex
	docs        map[string]*document.Document
	extractions map[string]*document.Extraction
	validations map[string][]document.Validation
	events      map[string][]document.ProcessingEvent
	mutations   int
}

// NewMemory creates an empty memory store.
func NewMemory() *Memory {
	return &Memory{
		docs:        make(map[string]*document.Document),
		extractions: make(map[string]*document.Extraction),
		validations: make(map[string][]document.Validation),
		events:      make(map[string][]document.ProcessingEvent),
	}
}

// Mutations counts successful writes.
func (m *Memory) Mutations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mutations
}

// CreateDocument implements Store.
func (m *Memory) CreateDocument(_ context.Context, doc *document.Document) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("%w: document id required", document.ErrInvalidInput)
	}
	if err := validateStatus(doc.Status); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[doc.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, doc.ID)
	}
	d := *doc
	m.docs[doc.ID] = &d
	m.mutations++
	return nil
}

// GetDocument implements Store.
func (m *Memory) GetDocument(_ context.Context, id string) (*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", document.ErrNotFound, id)
	}
	cp := *d
	return &cp, nil
}

// UpdateStatus implements Store.
func (m *Memory) UpdateStatus(_ context.Context, id string, status document.Status) error {
	if err := validateStatus(status); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return fmt.Errorf("%w: %s", document.ErrNotFound, id)
	}
	d.Status = status
	d.UpdatedAt = time.Now().UTC()
	m.mutations++
	return nil
}

// ListByStatus implements Store.
func (m *Memory) ListByStatus(_ context.Context, status document.Status, limit int) ([]*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*document.Document, 0)
	for _, d := range m.docs {
		if d.Status == status {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AppendEvent implements Store.
func (m *Memory) AppendEvent(_ context.Context, ev *document.ProcessingEvent) error {
	if ev == nil {
		return fmt.Errorf("%w: nil event", document.ErrInvalidInput)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[ev.DocumentID]; !ok {
		return fmt.Errorf("%w: %s", document.ErrNotFound, ev.DocumentID)
	}
	m.events[ev.DocumentID] = append(m.events[ev.DocumentID], *ev)
	m.mutations++
	return nil
}

// Events implements Store.
func (m *Memory) Events(_ context.Context, documentID string) ([]document.ProcessingEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]document.ProcessingEvent{}, m.events[documentID]...), nil
}

// SaveResults implements Store.
func (m *Memory) SaveResults(_ context.Context, ext *document.Extraction, validations []document.Validation, status document.Status) error {
	if ext == nil {
		return fmt.Errorf("%w: nil extraction", document.ErrInvalidInput)
	}
	if err := validateStatus(status); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[ext.DocumentID]
	if !ok {
		return fmt.Errorf("%w: %s", document.ErrNotFound, ext.DocumentID)
	}
	m.extractions[ext.DocumentID] = copyExtraction(ext)
	m.validations[ext.DocumentID] = append([]document.Validation{}, validations...)
	d.Status = status
	d.UpdatedAt = time.Now().UTC()
	m.mutations++
	return nil
}

// Extraction implements Store.
func (m *Memory) Extraction(_ context.Context, documentID string) (*document.Extraction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ext, ok := m.extractions[documentID]
	if !ok {
		return nil, fmt.Errorf("%w: no extraction for %s", document.ErrNotFound, documentID)
	}
	return copyExtraction(ext), nil
}

// Validations implements Store.
func (m *Memory) Validations(_ context.Context, documentID string) ([]document.Validation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]document.Validation{}, m.validations[documentID]...), nil
}

// InvoiceNumbersExcluding implements Store.
func (m *Memory) InvoiceNumbersExcluding(_ context.Context, documentID string) (document.InvoiceNumberSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := document.NewInvoiceNumberSet()
	for id, ext := range m.extractions {
		if id != documentID && ext.InvoiceNumber != "" {
			set[ext.InvoiceNumber] = struct{}{}
		}
	}
	return set, nil
}

// Close implements Store.
func (m *Memory) Close() error { return nil }

func copyExtraction(ext *document.Extraction) *document.Extraction {
	cp := *ext
	cp.LineItems = append([]document.LineItem{}, ext.LineItems...)
	if ext.FieldConfidences != nil {
		cp.FieldConfidences = make(map[string]float64, len(ext.FieldConfidences))
		for k, v := range ext.FieldConfidences {
			cp.FieldConfidences[k] = v
		}
	}
	return &cp
}

var _ Store = (*Memory)(nil)
