// Package archive keeps the raw bytes of uploaded documents so they can be
// reprocessed later.
//
// Writes are create-only: archiving the same document twice keeps the first
// copy, which makes upload retries idempotent.
package archive

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/invoiced/internal/config"
)

// ErrNotFound is returned when no bytes are archived for a document.
var ErrNotFound = errors.New("archived document not found")

// Archive stores raw document bytes by document id.
type Archive interface {
	Put(ctx context.Context, documentID string, data []byte) error
	Get(ctx context.Context, documentID string) ([]byte, error)
	Close() error
}

// Driver names.
const (
	DriverNone = "none"
	DriverFS   = "fs"
	DriverGCS  = "gcs"
)

// New opens the archive selected by cfg.
func New(ctx context.Context, cfg config.ArchiveConfig) (Archive, error) {
	switch cfg.Driver {
	case "", DriverNone:
		return None{}, nil
	case DriverFS:
		return NewFS(cfg.Dir)
	case DriverGCS:
		return NewGCS(ctx, cfg.Bucket, cfg.Prefix)
	default:
		return nil, fmt.Errorf("unknown archive driver %q", cfg.Driver)
	}
}

// None discards writes and never finds anything.
type None struct{}

// Put implements Archive.
func (None) Put(context.Context, string, []byte) error { return nil }

// Get implements Archive.
func (None) Get(_ context.Context, documentID string) ([]byte, error) {
	return nil, fmt.Errorf("%w: %s", ErrNotFound, documentID)
}

// Close implements Archive.
func (None) Close() error { return nil }

var _ Archive = None{}
