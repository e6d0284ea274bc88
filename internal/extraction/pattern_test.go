package extraction

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/invoiced/internal/document"
	"github.com/fyrsmithlabs/invoiced/internal/validation"
)

const sampleInvoiceText = `INVOICE

Vendor: Acme Corp
Tax ID: 12-3456789
Invoice #: INV-2024-001
Invoice Date: 2024-01-15
Due Date: 2024-02-15

Item 1: $100.00
Item 2: $200.00
Total: $300.00
`

func extractPattern(t *testing.T, text string) *document.ExtractedData {
	t.Helper()
	data, err := NewPatternExtractor().Extract(context.Background(), text)
	require.NoError(t, err)
	require.NotNil(t, data)
	return data
}

func TestPatternExtractor_SampleInvoice(t *testing.T) {
	data := extractPattern(t, sampleInvoiceText)

	assert.Equal(t, "Acme Corp", data.VendorName)
	assert.Equal(t, "12-3456789", data.TaxID)
	assert.Equal(t, "INV-2024-001", data.InvoiceNumber)
	require.NotNil(t, data.TotalAmount)
	assert.True(t, data.TotalAmount.Equal(decimal.RequireFromString("300.00")))

	require.NotNil(t, data.InvoiceDate)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), *data.InvoiceDate)
	require.NotNil(t, data.DueDate)
	assert.Equal(t, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), *data.DueDate)

	require.Len(t, data.LineItems, 2)
	assert.Equal(t, "Item 1", data.LineItems[0].Description)
	assert.True(t, data.LineItems[0].Total.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, "Item 2", data.LineItems[1].Description)
	assert.True(t, data.LineItems[1].Total.Equal(decimal.NewFromInt(200)))

	assert.InDelta(t, 0.7, data.ExtractionConfidence, 1e-9)
	for _, f := range document.CanonicalFields() {
		assert.InDelta(t, 0.8, data.FieldConfidences[f], 1e-9, f)
	}
}

func TestPatternExtractor_NoFields(t *testing.T) {
	data := extractPattern(t, "Just some random text with no invoice fields.")
	assert.Empty(t, data.VendorName)
	assert.Empty(t, data.InvoiceNumber)
	assert.Nil(t, data.TotalAmount)
	assert.InDelta(t, 0.3, data.ExtractionConfidence, 1e-9)
	assert.Len(t, data.FieldConfidences, 6)
	assert.Zero(t, data.FieldConfidences[document.FieldVendorName])
}

func TestPatternExtractor_EmptyText(t *testing.T) {
	data := extractPattern(t, "")
	assert.Empty(t, data.VendorName)
	assert.Nil(t, data.TotalAmount)
	assert.Empty(t, data.LineItems)
	assert.NotNil(t, data.LineItems)
}

func TestPatternExtractor_Cues(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		check func(t *testing.T, d *document.ExtractedData)
	}{
		{
			name: "company cue",
			text: "Company: Globex LLC",
			check: func(t *testing.T, d *document.ExtractedData) {
				assert.Equal(t, "Globex LLC", d.VendorName)
			},
		},
		{
			name: "vat cue",
			text: "VAT: GB123456789",
			check: func(t *testing.T, d *document.ExtractedData) {
				assert.Equal(t, "GB123456789", d.TaxID)
			},
		},
		{
			name: "inv number cue",
			text: "Inv #: 42-A",
			check: func(t *testing.T, d *document.ExtractedData) {
				assert.Equal(t, "42-A", d.InvoiceNumber)
			},
		},
		{
			name: "first invoice date wins",
			text: "Date: 2024-03-01\nInvoice Date: 2024-04-01",
			check: func(t *testing.T, d *document.ExtractedData) {
				require.NotNil(t, d.InvoiceDate)
				assert.Equal(t, time.March, d.InvoiceDate.Month())
			},
		},
		{
			name: "month first slash date",
			text: "Payment Due: 03/04/2024",
			check: func(t *testing.T, d *document.ExtractedData) {
				require.NotNil(t, d.DueDate)
				assert.Equal(t, time.March, d.DueDate.Month())
				assert.Equal(t, 4, d.DueDate.Day())
			},
		},
		{
			name: "total uses last dollar sign",
			text: "Subtotal $10.00 Grand Total $1,234.50",
			check: func(t *testing.T, d *document.ExtractedData) {
				require.NotNil(t, d.TotalAmount)
				assert.Equal(t, "1234.5", d.TotalAmount.String())
				assert.Empty(t, d.LineItems)
			},
		},
		{
			name: "line item with commas",
			text: "Consulting services  $1,500.00",
			check: func(t *testing.T, d *document.ExtractedData) {
				require.Len(t, d.LineItems, 1)
				assert.Equal(t, "Consulting services", d.LineItems[0].Description)
				assert.Equal(t, "1500", d.LineItems[0].Total.String())
			},
		},
		{
			name: "unparseable date is absent",
			text: "Invoice Date: January 5th",
			check: func(t *testing.T, d *document.ExtractedData) {
				assert.Nil(t, d.InvoiceDate)
			},
		},
		{
			name: "zero total scores zero confidence",
			text: "Total: $0",
			check: func(t *testing.T, d *document.ExtractedData) {
				require.NotNil(t, d.TotalAmount)
				assert.Zero(t, d.FieldConfidences[document.FieldTotalAmount])
				assert.InDelta(t, 0.7, d.ExtractionConfidence, 1e-9)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, extractPattern(t, tt.text))
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want *time.Time
	}{
		{"2024-01-15", ptrTime(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))},
		{"01/15/2024", ptrTime(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))},
		{"15/01/2024", ptrTime(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))},
		{"15-01-2024", ptrTime(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))},
		{"2024-1-5", ptrTime(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))},
		{"1/5/2024", ptrTime(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))},
		{"25/1/2024", ptrTime(time.Date(2024, 1, 25, 0, 0, 0, 0, time.UTC))},
		{"5-1-2024", ptrTime(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))},
		{"13/13/2024", nil},
		{"", nil},
		{"yesterday", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseDate(tt.in))
		})
	}
}

func TestPatternExtractor_UnpaddedDates(t *testing.T) {
	data := extractPattern(t, "Invoice Date: 2/5/2024\nDue Date: 1/5/2024")

	require.NotNil(t, data.InvoiceDate)
	require.NotNil(t, data.DueDate)
	assert.Equal(t, time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC), *data.InvoiceDate)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), *data.DueDate)

	result := validation.DateConsistencyRule{}.Check(data)
	assert.False(t, result.Passed)
	assert.Equal(t, "Due date is before invoice date", result.Message)
}

func ptrTime(t time.Time) *time.Time { return &t }
