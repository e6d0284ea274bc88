package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fyrsmithlabs/invoiced/internal/confidence"
	"github.com/fyrsmithlabs/invoiced/internal/document"
)

// defaultGenerativeConfidence is used when the model reports no per-field
// confidences.
const defaultGenerativeConfidence = 0.7

// dateLayouts are tried in order. Month-first wins for ambiguous slashes.
// Single-digit elements also accept zero-padded input.
var dateLayouts = []string{
	"2006-1-2",
	"1/2/2006",
	"2/1/2006",
	"2-1-2006",
}

func parseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

func parseDecimalString(raw string) *decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return nil
	}
	return &d
}

// parseAmount accepts a JSON number, a numeric string or null.
func parseAmount(v any) *decimal.Decimal {
	switch val := v.(type) {
	case json.Number:
		return parseDecimalString(val.String())
	case string:
		return parseDecimalString(val)
	default:
		return nil
	}
}

// Model output is loosely typed, so scalar fields decode as any.
type generativeLineItem struct {
	Description any `json:"description"`
	Quantity    any `json:"quantity"`
	UnitPrice   any `json:"unit_price"`
	Total       any `json:"total"`
}

type generativeResponse struct {
	VendorName    any                  `json:"vendor_name"`
	TaxID         any                  `json:"tax_id"`
	InvoiceNumber any                  `json:"invoice_number"`
	InvoiceDate   any                  `json:"invoice_date"`
	DueDate       any                  `json:"due_date"`
	TotalAmount   any                  `json:"total_amount"`
	LineItems     []generativeLineItem `json:"line_items"`
	Confidence    map[string]any       `json:"confidence"`
}

// cleanJSON strips markdown fences some models wrap around JSON output.
func cleanJSON(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

// parseGenerativeResponse converts model output into ExtractedData.
func parseGenerativeResponse(content string) (*document.ExtractedData, error) {
	content = cleanJSON(content)
	if content == "" {
		return nil, fmt.Errorf("empty model response")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(content)))
	dec.UseNumber()
	var resp generativeResponse
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to parse model response: %w", err)
	}

	data := &document.ExtractedData{
		VendorName:    scalarString(resp.VendorName),
		TaxID:         scalarString(resp.TaxID),
		InvoiceNumber: scalarString(resp.InvoiceNumber),
		TotalAmount:   parseAmount(resp.TotalAmount),
		InvoiceDate:   parseDate(scalarString(resp.InvoiceDate)),
		DueDate:       parseDate(scalarString(resp.DueDate)),
		LineItems:     make([]document.LineItem, 0, len(resp.LineItems)),
	}

	for _, item := range resp.LineItems {
		li := document.LineItem{
			Description: scalarString(item.Description),
			Quantity:    parseAmount(item.Quantity),
			UnitPrice:   parseAmount(item.UnitPrice),
		}
		if total := parseAmount(item.Total); total != nil {
			li.Total = *total
		}
		data.LineItems = append(data.LineItems, li)
	}

	fields := fieldConfidences(resp.Confidence)
	avg := defaultGenerativeConfidence
	if len(fields) > 0 {
		var sum float64
		for _, c := range fields {
			sum += c
		}
		avg = sum / float64(len(fields))
	}
	data.ExtractionConfidence = confidence.Round(avg)
	if len(fields) > 0 {
		data.FieldConfidences = fields
	}
	return data, nil
}

// fieldConfidences keeps the numeric entries. Nulls and other types are
// dropped.
func fieldConfidences(raw map[string]any) map[string]float64 {
	out := make(map[string]float64, len(raw))
	for field, v := range raw {
		var (
			f   float64
			err error
		)
		switch val := v.(type) {
		case json.Number:
			f, err = val.Float64()
		case string:
			f, err = strconv.ParseFloat(strings.TrimSpace(val), 64)
		default:
			continue
		}
		if err == nil {
			out[field] = f
		}
	}
	return out
}

// scalarString renders a JSON scalar as text. Null, objects and arrays give "".
func scalarString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}
