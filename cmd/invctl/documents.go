package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/invoiced/internal/document"
	httpserver "github.com/fyrsmithlabs/invoiced/internal/http"
)

// processingTimeout covers upload and reprocess, which run the whole pipeline
// before responding.
const processingTimeout = 2 * time.Minute

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

var (
	uploadContentType string
	reviewLimit       int
)

func init() {
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(reprocessCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(redactCmd)

	uploadCmd.Flags().StringVar(&uploadContentType, "content-type", "", "Content type of the file (sniffed by the server when empty)")
	reviewCmd.Flags().IntVar(&reviewLimit, "limit", 0, "Maximum number of documents to list (0 for all)")
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload an invoice and process it",
	Long: `Upload an invoice document. The server runs the full pipeline before
responding, so the result includes the extraction, validations and audit trail.

Examples:
  # Upload a PDF
  invctl upload invoice.pdf

  # Upload a scan to a server with image support
  invctl upload --content-type image/png scan.png`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

var showCmd = &cobra.Command{
	Use:   "show <document-id>",
	Short: "Show a document with its extraction, validations and events",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var reprocessCmd = &cobra.Command{
	Use:   "reprocess <document-id>",
	Short: "Run the pipeline again for a document",
	Long: `Run the pipeline again for a document that is not completed.
Completed documents are returned unchanged.`,
	Args: cobra.ExactArgs(1),
	RunE: runReprocess,
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "List documents awaiting human review",
	Args:  cobra.NoArgs,
	RunE:  runReview,
}

var redactCmd = &cobra.Command{
	Use:   "redact [file]",
	Short: "Preview redaction of text from a file or stdin",
	Long: `Show the text the generative extractor would send upstream after redaction.

Examples:
  # Redact a file
  invctl redact ocr.txt

  # Redact from stdin
  pdftotext invoice.pdf - | invctl redact -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRedact,
}

func runUpload(cmd *cobra.Command, args []string) error {
	path := args[0]
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", path, err)
	}
	if len(content) == 0 {
		return fmt.Errorf("file %s is empty", path)
	}

	body, contentType, err := multipartBody(filepath.Base(path), uploadContentType, content)
	if err != nil {
		return err
	}

	var rec document.Record
	if err := doJSON(http.MethodPost, "/api/v1/documents/upload", body, contentType, &rec, processingTimeout); err != nil {
		return err
	}
	return printRecord(cmd.OutOrStdout(), &rec)
}

func runShow(cmd *cobra.Command, args []string) error {
	var rec document.Record
	if err := doJSON(http.MethodGet, "/api/v1/documents/"+url.PathEscape(args[0]), nil, "", &rec, 30*time.Second); err != nil {
		return err
	}
	return printRecord(cmd.OutOrStdout(), &rec)
}

func runReprocess(cmd *cobra.Command, args []string) error {
	var rec document.Record
	path := "/api/v1/documents/" + url.PathEscape(args[0]) + "/reprocess"
	if err := doJSON(http.MethodPost, path, nil, "", &rec, processingTimeout); err != nil {
		return err
	}
	return printRecord(cmd.OutOrStdout(), &rec)
}

func runReview(cmd *cobra.Command, _ []string) error {
	path := "/api/v1/review/queue"
	if reviewLimit > 0 {
		path += "?limit=" + strconv.Itoa(reviewLimit)
	}

	var items []httpserver.ReviewQueueItem
	if err := doJSON(http.MethodGet, path, nil, "", &items, 30*time.Second); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		return printJSON(out, items)
	}
	if len(items) == 0 {
		fmt.Fprintln(out, "Review queue is empty")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFILENAME\tINVOICE\tVENDOR\tCONFIDENCE\tCREATED")
	for _, item := range items {
		invoice, vendor, conf := "-", "-", "-"
		if ext := item.Extraction; ext != nil {
			invoice = orDash(ext.InvoiceNumber)
			vendor = orDash(ext.VendorName)
			conf = fmt.Sprintf("%.3f", ext.OverallConfidence)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			item.ID, item.Filename, invoice, vendor, conf, item.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runRedact(cmd *cobra.Command, args []string) error {
	var (
		content []byte
		err     error
	)
	if len(args) == 0 || args[0] == "-" {
		content, err = io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		content, err = os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", args[0], err)
		}
	}
	if len(content) == 0 {
		return fmt.Errorf("no content to redact")
	}

	reqJSON, err := json.Marshal(httpserver.RedactRequest{Content: string(content)})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	var resp httpserver.RedactResponse
	if err := doJSON(http.MethodPost, "/api/v1/redact", bytes.NewReader(reqJSON), "application/json", &resp, 30*time.Second); err != nil {
		return err
	}

	if outputJSON {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	fmt.Fprint(cmd.OutOrStdout(), resp.Content)
	if resp.FindingsCount > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "\n[invctl] Redacted %d value(s)\n", resp.FindingsCount)
	}
	return nil
}

func multipartBody(filename, contentType string, content []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filename)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form part: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, "", fmt.Errorf("failed to write form part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close form: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

// printRecord renders a processing record as a short report.
func printRecord(out io.Writer, rec *document.Record) error {
	if outputJSON {
		return printJSON(out, rec)
	}
	if rec.Document == nil {
		return fmt.Errorf("response has no document")
	}

	doc := rec.Document
	fmt.Fprintf(out, "Document:   %s\n", doc.ID)
	fmt.Fprintf(out, "Filename:   %s\n", doc.Filename)
	fmt.Fprintf(out, "Status:     %s\n", doc.Status)

	if ext := rec.Extraction; ext != nil {
		fmt.Fprintf(out, "Confidence: %.3f (ocr %.3f, extraction %.3f)\n",
			ext.OverallConfidence, ext.OCRConfidence, ext.ExtractionConfidence)
		fmt.Fprintf(out, "Vendor:     %s\n", orDash(ext.VendorName))
		fmt.Fprintf(out, "Tax ID:     %s\n", orDash(ext.TaxID))
		fmt.Fprintf(out, "Invoice:    %s\n", orDash(ext.InvoiceNumber))
		if ext.TotalAmount != nil {
			fmt.Fprintf(out, "Total:      %s\n", ext.TotalAmount.StringFixed(2))
		}
		if ext.InvoiceDate != nil {
			fmt.Fprintf(out, "Date:       %s\n", ext.InvoiceDate.Format(time.DateOnly))
		}
		if ext.DueDate != nil {
			fmt.Fprintf(out, "Due:        %s\n", ext.DueDate.Format(time.DateOnly))
		}
		fmt.Fprintf(out, "Line items: %d\n", len(ext.LineItems))
	}

	if len(rec.Validations) > 0 {
		fmt.Fprintln(out, "\nValidations:")
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, v := range rec.Validations {
			result := "PASS"
			if !v.Passed {
				result = "FAIL"
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\n", result, v.Rule, v.Message)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if len(rec.Events) > 0 {
		fmt.Fprintln(out, "\nEvents:")
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, ev := range rec.Events {
			duration := ""
			if ev.DurationMS != nil {
				duration = strconv.FormatInt(*ev.DurationMS, 10) + "ms"
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", ev.Step, ev.Status, duration, ev.Detail)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
