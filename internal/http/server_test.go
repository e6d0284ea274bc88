package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync/atomic"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/invoiced/internal/archive"
	"github.com/fyrsmithlabs/invoiced/internal/document"
	"github.com/fyrsmithlabs/invoiced/internal/extraction"
	"github.com/fyrsmithlabs/invoiced/internal/logging"
	"github.com/fyrsmithlabs/invoiced/internal/ocr"
	"github.com/fyrsmithlabs/invoiced/internal/pipeline"
	"github.com/fyrsmithlabs/invoiced/internal/store"
	"github.com/fyrsmithlabs/invoiced/internal/telemetry"
)

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n")

// flakyOCR fails while fail is set and otherwise behaves like the mock.
type flakyOCR struct {
	fail atomic.Bool
}

func (f *flakyOCR) ExtractText(ctx context.Context, raw []byte) (*ocr.Result, error) {
	if f.fail.Load() {
		return nil, errors.New("ocr engine unavailable")
	}
	return ocr.NewMock().ExtractText(ctx, raw)
}

func (f *flakyOCR) Name() string { return "flaky" }

type testServer struct {
	*Server
	store    *store.Memory
	archive  *archive.FS
	ocr      *flakyOCR
	logger   *logging.TestLogger
	registry *prometheus.Registry
}

func setupTestServer(t *testing.T, mutate ...func(*Config)) *testServer {
	t.Helper()

	st := store.NewMemory()
	arch, err := archive.NewFS(t.TempDir())
	require.NoError(t, err)
	provider := &flakyOCR{}
	tl := logging.NewTestLogger()
	reg := prometheus.NewRegistry()

	p := pipeline.New(st, provider, extraction.NewPatternExtractor(),
		pipeline.WithLogger(tl.Logger),
		pipeline.WithMetrics(pipeline.NewMetrics(reg, "test")),
	)

	cfg := &Config{Host: "localhost", Port: 8080, Gatherer: reg}
	for _, m := range mutate {
		m(cfg)
	}

	server, err := NewServer(st, p, arch, tl.Logger, cfg)
	require.NoError(t, err)

	return &testServer{
		Server:   server,
		store:    st,
		archive:  arch,
		ocr:      provider,
		logger:   tl,
		registry: reg,
	}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

// uploadRequest builds a multipart upload. An empty contentType lets the
// multipart writer default to application/octet-stream.
func uploadRequest(t *testing.T, filename, contentType string, body []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	var (
		part io.Writer
		err  error
	)
	if contentType == "" {
		part, err = w.CreateFormFile("file", filename)
	} else {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
		h.Set("Content-Type", contentType)
		part, err = w.CreatePart(h)
	}
	require.NoError(t, err)
	_, err = part.Write(body)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func decodeRecord(t *testing.T, rec *httptest.ResponseRecorder) document.Record {
	t.Helper()
	var out document.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	msg, _ := body["message"].(string)
	return msg
}

func TestNewServer(t *testing.T) {
	st := store.NewMemory()
	p := pipeline.New(st, ocr.NewMock(), extraction.NewPatternExtractor())

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, err := NewServer(st, p, nil, logging.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", server.config.Host)
		assert.Equal(t, 8080, server.config.Port)
		assert.Equal(t, int64(DefaultMaxUploadBytes), server.config.MaxUploadBytes)
		assert.Equal(t, archive.None{}, server.archive)
	})

	t.Run("returns error when store is nil", func(t *testing.T) {
		_, err := NewServer(nil, p, nil, logging.NewNop(), nil)
		assert.ErrorContains(t, err, "store cannot be nil")
	})

	t.Run("returns error when pipeline is nil", func(t *testing.T) {
		_, err := NewServer(st, nil, nil, logging.NewNop(), nil)
		assert.ErrorContains(t, err, "pipeline cannot be nil")
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(st, p, nil, nil, nil)
		assert.ErrorContains(t, err, "logger is required")
	})
}

func TestHandleHealth(t *testing.T) {
	server := setupTestServer(t)

	rec := server.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	server.logger.AssertLogged(t, zapcore.InfoLevel, "http request")
}

func TestHandleHealthReportsTelemetry(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	server := setupTestServer(t, func(c *Config) { c.Telemetry = tel.Telemetry })

	rec := server.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.NotNil(t, resp.Telemetry)
	assert.Equal(t, telemetry.StateExporting, resp.Telemetry.State)

	require.NoError(t, tel.Shutdown(context.Background()))
	rec = server.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, telemetry.StateStopped, resp.Telemetry.State)
}

func TestHandleUpload(t *testing.T) {
	t.Run("processes a pdf", func(t *testing.T) {
		server := setupTestServer(t)

		rec := server.do(uploadRequest(t, "invoice.pdf", "", samplePDF))

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		out := decodeRecord(t, rec)
		assert.Equal(t, document.StatusCompleted, out.Document.Status)
		assert.Equal(t, "invoice.pdf", out.Document.Filename)
		assert.Equal(t, "application/pdf", out.Document.ContentType)
		require.NotNil(t, out.Extraction)
		assert.Equal(t, "INV-2024-001", out.Extraction.InvoiceNumber)
		assert.Len(t, out.Validations, 4)
		assert.Len(t, out.Events, 7)

		archived, err := server.archive.Get(context.Background(), out.Document.ID)
		require.NoError(t, err)
		assert.Equal(t, samplePDF, archived)
		server.logger.AssertLogged(t, zapcore.InfoLevel, "document_uploaded")
	})

	t.Run("client path stripped from filename", func(t *testing.T) {
		server := setupTestServer(t)

		rec := server.do(uploadRequest(t, `C:\scans\acme.pdf`, "", samplePDF))

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Equal(t, "acme.pdf", decodeRecord(t, rec).Document.Filename)
	})

	t.Run("declared pdf content type with parameters", func(t *testing.T) {
		server := setupTestServer(t)

		rec := server.do(uploadRequest(t, "invoice.pdf", "application/pdf; charset=binary", samplePDF))

		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("missing file field", func(t *testing.T) {
		server := setupTestServer(t)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", nil)
		rec := server.do(req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, errorMessage(t, rec), "file field is required")
	})

	t.Run("empty file", func(t *testing.T) {
		server := setupTestServer(t)

		rec := server.do(uploadRequest(t, "invoice.pdf", "application/pdf", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, errorMessage(t, rec), "empty file")
	})

	t.Run("unsupported content type", func(t *testing.T) {
		server := setupTestServer(t)

		rec := server.do(uploadRequest(t, "notes.txt", "", []byte("just some notes")))

		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
		assert.Contains(t, errorMessage(t, rec), "text/plain")
		assert.Zero(t, server.store.Mutations())
	})

	t.Run("images rejected unless enabled", func(t *testing.T) {
		png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

		server := setupTestServer(t)
		rec := server.do(uploadRequest(t, "scan.png", "", png))
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

		server = setupTestServer(t, func(c *Config) { c.AcceptImages = true })
		rec = server.do(uploadRequest(t, "scan.png", "", png))
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "image/png", decodeRecord(t, rec).Document.ContentType)
	})

	t.Run("file too large", func(t *testing.T) {
		server := setupTestServer(t, func(c *Config) { c.MaxUploadBytes = 8 })

		rec := server.do(uploadRequest(t, "invoice.pdf", "", samplePDF))

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("pipeline failure", func(t *testing.T) {
		server := setupTestServer(t)
		server.ocr.fail.Store(true)

		rec := server.do(uploadRequest(t, "invoice.pdf", "", samplePDF))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, errorMessage(t, rec), "ocr engine unavailable")

		failed, err := server.store.ListByStatus(context.Background(), document.StatusFailed, 0)
		require.NoError(t, err)
		assert.Len(t, failed, 1)
	})
}

func TestHandleGetDocument(t *testing.T) {
	server := setupTestServer(t)
	uploaded := decodeRecord(t, server.do(uploadRequest(t, "invoice.pdf", "", samplePDF)))

	rec := server.do(httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+uploaded.Document.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeRecord(t, rec)
	assert.Equal(t, uploaded.Document.ID, got.Document.ID)
	assert.Equal(t, uploaded.Events, got.Events)

	rec = server.do(httptest.NewRequest(http.MethodGet, "/api/v1/documents/does-not-exist", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleReprocess(t *testing.T) {
	t.Run("recovers a failed document", func(t *testing.T) {
		server := setupTestServer(t)
		server.ocr.fail.Store(true)
		rec := server.do(uploadRequest(t, "invoice.pdf", "", samplePDF))
		require.Equal(t, http.StatusInternalServerError, rec.Code)

		failed, err := server.store.ListByStatus(context.Background(), document.StatusFailed, 0)
		require.NoError(t, err)
		require.Len(t, failed, 1)
		id := failed[0].ID

		server.ocr.fail.Store(false)
		rec = server.do(httptest.NewRequest(http.MethodPost, "/api/v1/documents/"+id+"/reprocess", nil))

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		out := decodeRecord(t, rec)
		assert.Equal(t, document.StatusCompleted, out.Document.Status)
		assert.Equal(t, document.StepFailed, out.Events[2].Step)
		assert.Equal(t, document.StepCompleted, out.Events[len(out.Events)-1].Step)
	})

	t.Run("completed document is a no-op", func(t *testing.T) {
		server := setupTestServer(t)
		uploaded := decodeRecord(t, server.do(uploadRequest(t, "invoice.pdf", "", samplePDF)))
		mutations := server.store.Mutations()

		rec := server.do(httptest.NewRequest(http.MethodPost, "/api/v1/documents/"+uploaded.Document.ID+"/reprocess", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, mutations, server.store.Mutations())
		assert.Equal(t, uploaded.Events, decodeRecord(t, rec).Events)
	})

	t.Run("unknown document", func(t *testing.T) {
		server := setupTestServer(t)

		rec := server.do(httptest.NewRequest(http.MethodPost, "/api/v1/documents/nope/reprocess", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing archived bytes", func(t *testing.T) {
		server := setupTestServer(t)
		doc := document.New("invoice.pdf", "")
		require.NoError(t, server.store.CreateDocument(context.Background(), doc))

		rec := server.do(httptest.NewRequest(http.MethodPost, "/api/v1/documents/"+doc.ID+"/reprocess", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, errorMessage(t, rec), "archived document not found")
	})
}

func TestHandleReviewQueue(t *testing.T) {
	server := setupTestServer(t)

	rec := server.do(httptest.NewRequest(http.MethodGet, "/api/v1/review/queue", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	first := decodeRecord(t, server.do(uploadRequest(t, "a.pdf", "", samplePDF)))
	second := decodeRecord(t, server.do(uploadRequest(t, "b.pdf", "", samplePDF)))
	third := decodeRecord(t, server.do(uploadRequest(t, "c.pdf", "", samplePDF)))
	assert.Equal(t, document.StatusCompleted, first.Document.Status)
	assert.Equal(t, document.StatusReview, second.Document.Status)
	assert.Equal(t, document.StatusReview, third.Document.Status)

	rec = server.do(httptest.NewRequest(http.MethodGet, "/api/v1/review/queue", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var items []ReviewQueueItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 2)
	assert.Equal(t, third.Document.ID, items[0].ID)
	assert.Equal(t, second.Document.ID, items[1].ID)
	require.NotNil(t, items[0].Extraction)
	assert.Equal(t, "INV-2024-001", items[0].Extraction.InvoiceNumber)

	rec = server.do(httptest.NewRequest(http.MethodGet, "/api/v1/review/queue?limit=1", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	assert.Len(t, items, 1)

	rec = server.do(httptest.NewRequest(http.MethodGet, "/api/v1/review/queue?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRedact(t *testing.T) {
	server := setupTestServer(t)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/redact", bytes.NewReader([]byte(body)))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		return server.do(req)
	}

	t.Run("masks payment details", func(t *testing.T) {
		body, err := json.Marshal(RedactRequest{Content: "Remit to billing@acme.example\nInvoice #: INV-2024-001"})
		require.NoError(t, err)

		rec := post(string(body))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp RedactResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Contains(t, resp.Content, "[REDACTED]")
		assert.NotContains(t, resp.Content, "billing@acme.example")
		assert.Contains(t, resp.Content, "INV-2024-001")
		assert.Equal(t, 1, resp.FindingsCount)
	})

	t.Run("empty content", func(t *testing.T) {
		rec := post(`{"content":""}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, errorMessage(t, rec), "content field is required")
	})

	t.Run("invalid json", func(t *testing.T) {
		rec := post("invalid json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	server := setupTestServer(t)
	server.do(uploadRequest(t, "invoice.pdf", "", samplePDF))

	rec := server.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `test_pipeline_runs_total{outcome="completed"} 1`)

	noMetrics := setupTestServer(t, func(c *Config) { c.Gatherer = nil })
	rec = noMetrics.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestToHTTPError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"not found", fmt.Errorf("load: %w", document.ErrNotFound), http.StatusNotFound},
		{"archive not found", archive.ErrNotFound, http.StatusNotFound},
		{"unsupported", document.ErrUnsupportedContentType, http.StatusUnsupportedMediaType},
		{"invalid input", fmt.Errorf("%w: bad", document.ErrInvalidInput), http.StatusBadRequest},
		{"http error passthrough", echo.NewHTTPError(http.StatusTeapot, "tea"), http.StatusTeapot},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, toHTTPError(tt.err).Code)
		})
	}
}
