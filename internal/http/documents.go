package http

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/invoiced/internal/document"
	"github.com/fyrsmithlabs/invoiced/internal/sanitize"
	"github.com/fyrsmithlabs/invoiced/internal/store"
)

var imageContentTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/tiff": true,
}

// handleUpload stores the file, runs the pipeline synchronously and returns
// the resulting record.
func (s *Server) handleUpload(c echo.Context) error {
	ctx := c.Request().Context()

	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file field is required")
	}
	if fh.Filename == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing filename")
	}
	if fh.Size > s.config.MaxUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("file exceeds %d bytes", s.config.MaxUploadBytes))
	}

	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable upload")
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(f, s.config.MaxUploadBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable upload")
	}
	if len(raw) == 0 {
		return toHTTPError(fmt.Errorf("%w: empty file", document.ErrInvalidInput))
	}

	contentType, err := s.contentType(fh.Header.Get(echo.HeaderContentType), raw)
	if err != nil {
		return toHTTPError(err)
	}

	doc := document.New(sanitize.Filename(fh.Filename), contentType)
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		return toHTTPError(fmt.Errorf("create document: %w", err))
	}
	if err := s.archive.Put(ctx, doc.ID, raw); err != nil {
		return toHTTPError(fmt.Errorf("archive upload: %w", err))
	}

	s.logger.Info(ctx, "document_uploaded",
		zap.String("document_id", doc.ID),
		zap.String("upload_filename", fh.Filename),
		zap.String("content_type", contentType),
		zap.Int("bytes", len(raw)))

	if err := s.pipeline.Process(ctx, doc.ID, raw); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	rec, err := store.LoadRecord(ctx, s.store, doc.ID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

// contentType resolves the declared type, sniffing when the client sent none
// or a generic one, and rejects what OCR cannot read.
func (s *Server) contentType(declared string, raw []byte) (string, error) {
	mediaType := ""
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil {
			mediaType = mt
		}
	}
	if mediaType == "" || mediaType == echo.MIMEOctetStream {
		mediaType, _, _ = mime.ParseMediaType(http.DetectContentType(raw))
	}

	switch {
	case mediaType == document.DefaultContentType:
		return mediaType, nil
	case s.config.AcceptImages && imageContentTypes[mediaType]:
		return mediaType, nil
	default:
		return "", fmt.Errorf("%w: %q", document.ErrUnsupportedContentType, mediaType)
	}
}

// handleGetDocument returns the full record of one document.
func (s *Server) handleGetDocument(c echo.Context) error {
	rec, err := store.LoadRecord(c.Request().Context(), s.store, c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

// handleReprocess re-runs the pipeline over the archived bytes. Completed
// documents are returned unchanged.
func (s *Server) handleReprocess(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return toHTTPError(err)
	}

	if doc.Status != document.StatusCompleted {
		raw, err := s.archive.Get(ctx, id)
		if err != nil {
			return toHTTPError(err)
		}
		if err := s.pipeline.Process(ctx, id, raw); err != nil {
			if errors.Is(err, document.ErrNotFound) {
				return toHTTPError(err)
			}
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	rec, err := store.LoadRecord(ctx, s.store, id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

// handleReviewQueue lists documents awaiting human review, newest first.
func (s *Server) handleReviewQueue(c echo.Context) error {
	ctx := c.Request().Context()

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = n
	}

	docs, err := s.store.ListByStatus(ctx, document.StatusReview, limit)
	if err != nil {
		return toHTTPError(err)
	}

	items := make([]ReviewQueueItem, 0, len(docs))
	for _, doc := range docs {
		item := ReviewQueueItem{
			ID:        doc.ID,
			Filename:  doc.Filename,
			Status:    doc.Status,
			CreatedAt: doc.CreatedAt,
		}
		ext, err := s.store.Extraction(ctx, doc.ID)
		switch {
		case err == nil:
			item.Extraction = ext
		case !errors.Is(err, document.ErrNotFound):
			return toHTTPError(err)
		}
		items = append(items, item)
	}
	return c.JSON(http.StatusOK, items)
}
