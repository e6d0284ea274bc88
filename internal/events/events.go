// Package events fans processing audit events out to subscribers.
//
// Events are published to NATS on the subject
//
//	{prefix}.{document_id}.{step}.{status}
//
// with the JSON-encoded document.ProcessingEvent as payload. Publishing is
// best effort: the store remains the source of truth for the audit trail.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/fyrsmithlabs/invoiced/internal/config"
	"github.com/fyrsmithlabs/invoiced/internal/document"
	"github.com/fyrsmithlabs/invoiced/internal/sanitize"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "invoices"

// Publisher delivers audit events.
type Publisher interface {
	Publish(ctx context.Context, ev document.ProcessingEvent) error
	Close() error
}

// Subject builds the NATS subject for ev.
func Subject(prefix string, ev document.ProcessingEvent) string {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return strings.Join([]string{
		prefix,
		sanitize.SubjectToken(ev.DocumentID),
		sanitize.SubjectToken(string(ev.Step)),
		sanitize.SubjectToken(string(ev.Status)),
	}, ".")
}

// NATSPublisher publishes events on a NATS connection.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	owned  bool
}

// NewNATSPublisher wraps an existing connection. The caller keeps ownership
// of nc.
func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	return &NATSPublisher{nc: nc, prefix: prefix}
}

// Connect dials the configured server. With NATS disabled it returns a Noop.
func Connect(cfg config.NATSConfig) (Publisher, error) {
	if !cfg.Enabled {
		return Noop{}, nil
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name("invoiced"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}
	return &NATSPublisher{nc: nc, prefix: cfg.SubjectPrefix, owned: true}, nil
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, ev document.ProcessingEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := Subject(p.prefix, ev)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection when the publisher opened it.
func (p *NATSPublisher) Close() error {
	if !p.owned {
		return nil
	}
	if err := p.nc.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return err
	}
	return nil
}

// Noop discards events.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, document.ProcessingEvent) error { return nil }

// Close implements Publisher.
func (Noop) Close() error { return nil }

// Recorder keeps published events in memory. Set Err to make Publish fail.
type Recorder struct {
	mu     sync.Mutex
	events []document.ProcessingEvent
	Err    error
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, ev document.ProcessingEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []document.ProcessingEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]document.ProcessingEvent{}, r.events...)
}

// Close implements Publisher.
func (r *Recorder) Close() error { return nil }

var (
	_ Publisher = (*NATSPublisher)(nil)
	_ Publisher = Noop{}
	_ Publisher = (*Recorder)(nil)
)
