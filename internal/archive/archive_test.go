package archive

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/fyrsmithlabs/invoiced/internal/config"
)

func TestFS_PutGet(t *testing.T) {
	ctx := context.Background()
	a, err := NewFS(filepath.Join(t.TempDir(), "archive"))
	require.NoError(t, err)

	require.NoError(t, a.Put(ctx, "doc-1", []byte("%PDF-1.4 first")))
	got, err := a.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 first", string(got))
}

func TestFS_PutIsCreateOnly(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	a, err := NewFS(dir)
	require.NoError(t, err)

	require.NoError(t, a.Put(ctx, "doc-1", []byte("first")))
	require.NoError(t, a.Put(ctx, "doc-1", []byte("second")))

	got, err := a.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must be cleaned up")
}

func TestFS_NotFound(t *testing.T) {
	a, err := NewFS(t.TempDir())
	require.NoError(t, err)
	_, err = a.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFS_RejectsPathTraversal(t *testing.T) {
	a, err := NewFS(t.TempDir())
	require.NoError(t, err)
	for _, id := range []string{"", "..", "../etc/passwd", `a\b`} {
		assert.Error(t, a.Put(context.Background(), id, []byte("x")), id)
	}
}

func TestNone(t *testing.T) {
	var a None
	require.NoError(t, a.Put(context.Background(), "doc", []byte("x")))
	_, err := a.Get(context.Background(), "doc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNew(t *testing.T) {
	a, err := New(context.Background(), config.ArchiveConfig{Driver: "none"})
	require.NoError(t, err)
	assert.IsType(t, None{}, a)

	a, err = New(context.Background(), config.ArchiveConfig{Driver: "fs", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FS{}, a)

	_, err = New(context.Background(), config.ArchiveConfig{Driver: "s3"})
	assert.Error(t, err)
}

func TestObjectName(t *testing.T) {
	assert.Equal(t, "doc-1", objectName("", "doc-1"))
	assert.Equal(t, "uploads/doc-1", objectName("uploads", "doc-1"))
	assert.Equal(t, "uploads/doc-1", objectName("uploads/", "doc-1"))
}

func TestIsPreconditionFailed(t *testing.T) {
	assert.True(t, isPreconditionFailed(fmt.Errorf("wrapped: %w", &googleapi.Error{Code: http.StatusPreconditionFailed})))
	assert.False(t, isPreconditionFailed(&googleapi.Error{Code: http.StatusForbidden}))
	assert.False(t, isPreconditionFailed(fmt.Errorf("plain")))
}
