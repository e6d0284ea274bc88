package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fyrsmithlabs/invoiced/internal/sanitize"
)

// FS archives documents as files in a directory.
type FS struct {
	dir string
}

// NewFS creates the directory if needed.
func NewFS(dir string) (*FS, error) {
	if dir == "" {
		return nil, errors.New("archive directory required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}
	return &FS{dir: dir}, nil
}

func (a *FS) path(id string) string {
	return filepath.Join(a.dir, id+".bin")
}

// Put implements Archive. An existing file is left untouched.
func (a *FS) Put(ctx context.Context, documentID string, data []byte) error {
	if err := sanitize.ValidateDocumentID(documentID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(a.dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing archive: %w", err)
	}

	// Link fails if the target exists, giving create-only semantics.
	if err := os.Link(tmp.Name(), a.path(documentID)); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil
		}
		return fmt.Errorf("finalizing archive: %w", err)
	}
	return nil
}

// Get implements Archive.
func (a *FS) Get(ctx context.Context, documentID string) ([]byte, error) {
	if err := sanitize.ValidateDocumentID(documentID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(a.path(documentID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}
	return data, nil
}

// Close implements Archive.
func (a *FS) Close() error { return nil }

var _ Archive = (*FS)(nil)
