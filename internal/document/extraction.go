package document

import (
	"time"

	"github.com/shopspring/decimal"
)

// Canonical field names used for per-field confidence.
const (
	FieldVendorName    = "vendor_name"
	FieldTaxID         = "tax_id"
	FieldInvoiceNumber = "invoice_number"
	FieldTotalAmount   = "total_amount"
	FieldInvoiceDate   = "invoice_date"
	FieldDueDate       = "due_date"
)

// CanonicalFields returns the six scored fields in display order.
func CanonicalFields() []string {
	return []string{
		FieldVendorName,
		FieldTaxID,
		FieldInvoiceNumber,
		FieldTotalAmount,
		FieldInvoiceDate,
		FieldDueDate,
	}
}

// LineItem is a single invoice line.
type LineItem struct {
	Description string           `json:"description"`
	Quantity    *decimal.Decimal `json:"quantity,omitempty"`
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`
	Total       decimal.Decimal  `json:"total"`
}

// ExtractedData is the structured output of an extraction provider.
// Empty strings and nil pointers mean the field was not found.
type ExtractedData struct {
	VendorName           string             `json:"vendor_name,omitempty"`
	TaxID                string             `json:"tax_id,omitempty"`
	InvoiceNumber        string             `json:"invoice_number,omitempty"`
	TotalAmount          *decimal.Decimal   `json:"total_amount,omitempty"`
	InvoiceDate          *time.Time         `json:"invoice_date,omitempty"`
	DueDate              *time.Time         `json:"due_date,omitempty"`
	LineItems            []LineItem         `json:"line_items"`
	ExtractionConfidence float64            `json:"extraction_confidence"`
	FieldConfidences     map[string]float64 `json:"field_confidences,omitempty"`
}

// Has reports whether the named canonical field carries a value.
func (d *ExtractedData) Has(field string) bool {
	if d == nil {
		return false
	}
	switch field {
	case FieldVendorName:
		return d.VendorName != ""
	case FieldTaxID:
		return d.TaxID != ""
	case FieldInvoiceNumber:
		return d.InvoiceNumber != ""
	case FieldTotalAmount:
		return d.TotalAmount != nil
	case FieldInvoiceDate:
		return d.InvoiceDate != nil
	case FieldDueDate:
		return d.DueDate != nil
	}
	return false
}

// PresenceConfidences scores each canonical field 0.8 when present and 0.0
// otherwise.
func (d *ExtractedData) PresenceConfidences() map[string]float64 {
	out := make(map[string]float64, 6)
	for _, f := range CanonicalFields() {
		if d.Has(f) {
			out[f] = 0.8
		} else {
			out[f] = 0.0
		}
	}
	return out
}

// Extraction is the persisted projection of ExtractedData plus OCR output.
// It is written once per successful run and never updated.
type Extraction struct {
	ID                   string             `json:"id"`
	DocumentID           string             `json:"document_id"`
	VendorName           string             `json:"vendor_name,omitempty"`
	TaxID                string             `json:"tax_id,omitempty"`
	InvoiceNumber        string             `json:"invoice_number,omitempty"`
	TotalAmount          *decimal.Decimal   `json:"total_amount,omitempty"`
	InvoiceDate          *time.Time         `json:"invoice_date,omitempty"`
	DueDate              *time.Time         `json:"due_date,omitempty"`
	LineItems            []LineItem         `json:"line_items"`
	FieldConfidences     map[string]float64 `json:"field_confidences,omitempty"`
	OCRText              string             `json:"ocr_text"`
	OCRConfidence        float64            `json:"ocr_confidence"`
	ExtractionConfidence float64            `json:"extraction_confidence"`
	OverallConfidence    float64            `json:"overall_confidence"`
	CreatedAt            time.Time          `json:"created_at"`
}
