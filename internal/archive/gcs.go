package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/fyrsmithlabs/invoiced/internal/sanitize"
)

// GCS archives documents as objects in a Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
}

// NewGCS creates a GCS archive for bucket. Objects are named
// {prefix}/{document_id}.
func NewGCS(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (*GCS, error) {
	if bucket == "" {
		return nil, errors.New("archive bucket required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return &GCS{client: client, bucket: client.Bucket(bucket), prefix: prefix}, nil
}

func (a *GCS) object(id string) string {
	return objectName(a.prefix, id)
}

func objectName(prefix, id string) string {
	if prefix == "" {
		return id
	}
	return path.Join(prefix, id)
}

// Put implements Archive. The write is conditioned on the object not
// existing; a precondition failure means it is already archived.
func (a *GCS) Put(ctx context.Context, documentID string, data []byte) error {
	if err := sanitize.ValidateDocumentID(documentID); err != nil {
		return err
	}
	w := a.bucket.Object(a.object(documentID)).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = http.DetectContentType(data)

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		if isPreconditionFailed(err) {
			return nil
		}
		return fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		if isPreconditionFailed(err) {
			return nil
		}
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

// Get implements Archive.
func (a *GCS) Get(ctx context.Context, documentID string) ([]byte, error) {
	if err := sanitize.ValidateDocumentID(documentID); err != nil {
		return nil, err
	}
	r, err := a.bucket.Object(a.object(documentID)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("opening GCS object: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading GCS object: %w", err)
	}
	return data, nil
}

// Close implements Archive.
func (a *GCS) Close() error {
	return a.client.Close()
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

var _ Archive = (*GCS)(nil)
