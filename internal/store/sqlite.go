package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/fyrsmithlabs/invoiced/internal/document"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout is fixed-width so text columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// dateLayout stores calendar dates.
const dateLayout = "2006-01-02"

// SQLite is a Store backed by a single SQLite database file.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (and migrates) the database at path. The special path
// ":memory:" opens a private in-memory database.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite path required", document.ErrInvalidInput)
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer; also keeps a :memory: database on a single connection.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Path returns the database path.
func (s *SQLite) Path() string { return s.path }

// Close implements Store.
func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= current {
			continue
		}
		content, err := fs.ReadFile(migrationsFS, "migrations/"+name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			version, formatTime(time.Now())); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

// CreateDocument implements Store.
func (s *SQLite) CreateDocument(ctx context.Context, doc *document.Document) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("%w: document id required", document.ErrInvalidInput)
	}
	if err := validateStatus(doc.Status); err != nil {
		return err
	}
	if _, err := s.GetDocument(ctx, doc.ID); err == nil {
		return fmt.Errorf("%w: %s", ErrDuplicate, doc.ID)
	}

	query, args, err := sq.Insert("documents").
		Columns("id", "filename", "content_type", "status", "created_at", "updated_at").
		Values(doc.ID, doc.Filename, doc.ContentType, string(doc.Status), formatTime(doc.CreatedAt), formatTime(doc.UpdatedAt)).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	return nil
}

var documentColumns = []string{"id", "filename", "content_type", "status", "created_at", "updated_at"}

// GetDocument implements Store.
func (s *SQLite) GetDocument(ctx context.Context, id string) (*document.Document, error) {
	query, args, err := sq.Select(documentColumns...).From("documents").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}
	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", document.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	return doc, nil
}

// UpdateStatus implements Store.
func (s *SQLite) UpdateStatus(ctx context.Context, id string, status document.Status) error {
	if err := validateStatus(status); err != nil {
		return err
	}
	return updateStatus(ctx, s.db, id, status)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func updateStatus(ctx context.Context, db execer, id string, status document.Status) error {
	query, args, err := sq.Update("documents").
		Set("status", string(status)).
		Set("updated_at", formatTime(time.Now())).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update: %w", err)
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", document.ErrNotFound, id)
	}
	return nil
}

// ListByStatus implements Store.
func (s *SQLite) ListByStatus(ctx context.Context, status document.Status, limit int) ([]*document.Document, error) {
	b := sq.Select(documentColumns...).From("documents").
		Where(sq.Eq{"status": string(status)}).
		OrderBy("created_at DESC", "id DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	out := make([]*document.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// AppendEvent implements Store.
func (s *SQLite) AppendEvent(ctx context.Context, ev *document.ProcessingEvent) error {
	if ev == nil {
		return fmt.Errorf("%w: nil event", document.ErrInvalidInput)
	}
	if _, err := s.GetDocument(ctx, ev.DocumentID); err != nil {
		return err
	}
	var duration sql.NullInt64
	if ev.DurationMS != nil {
		duration = sql.NullInt64{Int64: *ev.DurationMS, Valid: true}
	}
	query, args, err := sq.Insert("processing_events").
		Columns("id", "document_id", "step", "status", "detail", "duration_ms", "created_at").
		Values(ev.ID, ev.DocumentID, string(ev.Step), string(ev.Status), ev.Detail, duration, formatTime(ev.CreatedAt)).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// Events implements Store.
func (s *SQLite) Events(ctx context.Context, documentID string) ([]document.ProcessingEvent, error) {
	query, args, err := sq.Select("id", "document_id", "step", "status", "detail", "duration_ms", "created_at").
		From("processing_events").
		Where(sq.Eq{"document_id": documentID}).
		OrderBy("seq").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	out := make([]document.ProcessingEvent, 0)
	for rows.Next() {
		var (
			ev               document.ProcessingEvent
			step, status, ts string
			duration         sql.NullInt64
		)
		if err := rows.Scan(&ev.ID, &ev.DocumentID, &step, &status, &ev.Detail, &duration, &ts); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		ev.Step = document.Step(step)
		ev.Status = document.EventStatus(status)
		if duration.Valid {
			d := duration.Int64
			ev.DurationMS = &d
		}
		if ev.CreatedAt, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// SaveResults implements Store.
func (s *SQLite) SaveResults(ctx context.Context, ext *document.Extraction, validations []document.Validation, status document.Status) (err error) {
	if ext == nil {
		return fmt.Errorf("%w: nil extraction", document.ErrInvalidInput)
	}
	if err := validateStatus(status); err != nil {
		return err
	}

	lineItems, err := json.Marshal(nonNilItems(ext.LineItems))
	if err != nil {
		return fmt.Errorf("marshalling line items: %w", err)
	}
	var fieldConf sql.NullString
	if ext.FieldConfidences != nil {
		raw, err := json.Marshal(ext.FieldConfidences)
		if err != nil {
			return fmt.Errorf("marshalling field confidences: %w", err)
		}
		fieldConf = sql.NullString{String: string(raw), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = updateStatus(ctx, tx, ext.DocumentID, status); err != nil {
		return err
	}

	for _, table := range []string{"extractions", "validations"} {
		query, args, berr := sq.Delete(table).Where(sq.Eq{"document_id": ext.DocumentID}).ToSql()
		if berr != nil {
			return fmt.Errorf("building delete: %w", berr)
		}
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	query, args, err := sq.Insert("extractions").
		Columns("id", "document_id", "vendor_name", "tax_id", "invoice_number", "total_amount",
			"invoice_date", "due_date", "line_items", "field_confidences", "ocr_text",
			"ocr_confidence", "extraction_confidence", "overall_confidence", "created_at").
		Values(ext.ID, ext.DocumentID, ext.VendorName, ext.TaxID, ext.InvoiceNumber, nullDecimal(ext.TotalAmount),
			nullDate(ext.InvoiceDate), nullDate(ext.DueDate), string(lineItems), fieldConf, ext.OCRText,
			ext.OCRConfidence, ext.ExtractionConfidence, ext.OverallConfidence, formatTime(ext.CreatedAt)).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert: %w", err)
	}
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting extraction: %w", err)
	}

	if len(validations) > 0 {
		b := sq.Insert("validations").Columns("id", "document_id", "rule_name", "passed", "score", "message", "created_at")
		for _, v := range validations {
			b = b.Values(v.ID, v.DocumentID, v.Rule, v.Passed, v.Score, v.Message, formatTime(v.CreatedAt))
		}
		query, args, err = b.ToSql()
		if err != nil {
			return fmt.Errorf("building insert: %w", err)
		}
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("inserting validations: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing results: %w", err)
	}
	return nil
}

// Extraction implements Store.
func (s *SQLite) Extraction(ctx context.Context, documentID string) (*document.Extraction, error) {
	query, args, err := sq.Select("id", "document_id", "vendor_name", "tax_id", "invoice_number", "total_amount",
		"invoice_date", "due_date", "line_items", "field_confidences", "ocr_text",
		"ocr_confidence", "extraction_confidence", "overall_confidence", "created_at").
		From("extractions").
		Where(sq.Eq{"document_id": documentID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	var (
		ext                 document.Extraction
		total, invDate, due sql.NullString
		lineItems, ts       string
		fieldConf           sql.NullString
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&ext.ID, &ext.DocumentID, &ext.VendorName, &ext.TaxID, &ext.InvoiceNumber, &total,
		&invDate, &due, &lineItems, &fieldConf, &ext.OCRText,
		&ext.OCRConfidence, &ext.ExtractionConfidence, &ext.OverallConfidence, &ts,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no extraction for %s", document.ErrNotFound, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("getting extraction: %w", err)
	}

	if total.Valid {
		d, err := decimal.NewFromString(total.String)
		if err != nil {
			return nil, fmt.Errorf("parsing total_amount: %w", err)
		}
		ext.TotalAmount = &d
	}
	if ext.InvoiceDate, err = parseNullDate(invDate); err != nil {
		return nil, err
	}
	if ext.DueDate, err = parseNullDate(due); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(lineItems), &ext.LineItems); err != nil {
		return nil, fmt.Errorf("unmarshalling line items: %w", err)
	}
	if fieldConf.Valid {
		if err := json.Unmarshal([]byte(fieldConf.String), &ext.FieldConfidences); err != nil {
			return nil, fmt.Errorf("unmarshalling field confidences: %w", err)
		}
	}
	if ext.CreatedAt, err = parseTime(ts); err != nil {
		return nil, err
	}
	return &ext, nil
}

// Validations implements Store.
func (s *SQLite) Validations(ctx context.Context, documentID string) ([]document.Validation, error) {
	query, args, err := sq.Select("id", "document_id", "rule_name", "passed", "score", "message", "created_at").
		From("validations").
		Where(sq.Eq{"document_id": documentID}).
		OrderBy("seq").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing validations: %w", err)
	}
	defer rows.Close()

	out := make([]document.Validation, 0)
	for rows.Next() {
		var (
			v  document.Validation
			ts string
		)
		if err := rows.Scan(&v.ID, &v.DocumentID, &v.Rule, &v.Passed, &v.Score, &v.Message, &ts); err != nil {
			return nil, fmt.Errorf("scanning validation: %w", err)
		}
		if v.CreatedAt, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// InvoiceNumbersExcluding implements Store.
func (s *SQLite) InvoiceNumbersExcluding(ctx context.Context, documentID string) (document.InvoiceNumberSet, error) {
	query, args, err := sq.Select("DISTINCT invoice_number").
		From("extractions").
		Where(sq.And{sq.NotEq{"document_id": documentID}, sq.NotEq{"invoice_number": ""}}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing invoice numbers: %w", err)
	}
	defer rows.Close()

	set := document.NewInvoiceNumberSet()
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scanning invoice number: %w", err)
		}
		set[n] = struct{}{}
	}
	return set, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*document.Document, error) {
	var (
		doc                 document.Document
		status, created, up string
	)
	if err := row.Scan(&doc.ID, &doc.Filename, &doc.ContentType, &status, &created, &up); err != nil {
		return nil, err
	}
	doc.Status = document.Status(status)
	var err error
	if doc.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if doc.UpdatedAt, err = parseTime(up); err != nil {
		return nil, err
	}
	return &doc, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(dateLayout), Valid: true}
}

func parseNullDate(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s.String)
	if err != nil {
		return nil, fmt.Errorf("parsing date %q: %w", s.String, err)
	}
	return &t, nil
}

func nonNilItems(items []document.LineItem) []document.LineItem {
	if items == nil {
		return []document.LineItem{}
	}
	return items
}

var _ Store = (*SQLite)(nil)
