package validation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/invoiced/internal/document"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func items(totals ...string) []document.LineItem {
	out := make([]document.LineItem, len(totals))
	for i, total := range totals {
		out[i] = document.LineItem{Description: "Item", Total: decimal.RequireFromString(total)}
	}
	return out
}

func TestEngine_ValidateOrder(t *testing.T) {
	engine := NewEngine()

	results := engine.Validate(&document.ExtractedData{}, nil)
	require.Len(t, results, 3)
	assert.Equal(t, RuleLineItemsSum, results[0].Rule)
	assert.Equal(t, RuleTaxIDFormat, results[1].Rule)
	assert.Equal(t, RuleDateConsistency, results[2].Rule)

	results = engine.Validate(&document.ExtractedData{}, document.NewInvoiceNumberSet())
	require.Len(t, results, 4)
	assert.Equal(t, RuleDuplicateInvoice, results[3].Rule)
}

func TestEngine_DuplicateAbsentWithoutSet(t *testing.T) {
	engine := NewEngine()
	data := &document.ExtractedData{InvoiceNumber: "INV-1"}

	for _, r := range engine.Validate(data, nil) {
		assert.NotEqual(t, RuleDuplicateInvoice, r.Rule)
	}
}

func TestEngine_NilData(t *testing.T) {
	results := NewEngine().Validate(nil, nil)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.True(t, r.Passed)
		assert.Equal(t, 1.0, r.Score)
	}
}

func TestLineItemsSumRule(t *testing.T) {
	tests := []struct {
		name       string
		data       document.ExtractedData
		wantPassed bool
		wantScore  float64
		wantInMsg  []string
	}{
		{
			name:       "matching sum",
			data:       document.ExtractedData{TotalAmount: dec("300.00"), LineItems: items("100.00", "200.00")},
			wantPassed: true,
			wantScore:  1.0,
			wantInMsg:  []string{"300.00"},
		},
		{
			name:       "mismatched sum",
			data:       document.ExtractedData{TotalAmount: dec("300.00"), LineItems: items("100.00", "150.00")},
			wantPassed: false,
			wantScore:  0.0,
			wantInMsg:  []string{"250.00", "300.00"},
		},
		{
			name:       "within tolerance",
			data:       document.ExtractedData{TotalAmount: dec("300.00"), LineItems: items("100.00", "199.99")},
			wantPassed: true,
			wantScore:  1.0,
		},
		{
			name:       "just outside tolerance",
			data:       document.ExtractedData{TotalAmount: dec("300.00"), LineItems: items("100.00", "199.98")},
			wantPassed: false,
			wantScore:  0.0,
		},
		{
			name:       "no items and no total skips",
			data:       document.ExtractedData{},
			wantPassed: true,
			wantScore:  1.0,
			wantInMsg:  []string{"Skipped"},
		},
		{
			name:       "items without total skips",
			data:       document.ExtractedData{LineItems: items("10")},
			wantPassed: true,
			wantScore:  1.0,
			wantInMsg:  []string{"Skipped"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LineItemsSumRule{}.Check(&tt.data)
			assert.Equal(t, RuleLineItemsSum, got.Rule)
			assert.Equal(t, tt.wantPassed, got.Passed)
			assert.Equal(t, tt.wantScore, got.Score)
			for _, s := range tt.wantInMsg {
				assert.Contains(t, got.Message, s)
			}
		})
	}
}

func TestTaxIDFormatRule(t *testing.T) {
	tests := []struct {
		name       string
		taxID      string
		wantPassed bool
		wantScore  float64
	}{
		{"ein with hyphen", "12-3456789", true, 1.0},
		{"vat with spaces", "GB 123 456 789", true, 1.0},
		{"too short", "123", false, 0.5},
		{"too long", "123456789012345678901", false, 0.5},
		{"punctuation", "12.345.678", false, 0.5},
		{"empty skips", "", true, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TaxIDFormatRule{}.Check(&document.ExtractedData{TaxID: tt.taxID})
			assert.Equal(t, tt.wantPassed, got.Passed)
			assert.Equal(t, tt.wantScore, got.Score)
		})
	}
}

func TestDateConsistencyRule(t *testing.T) {
	tests := []struct {
		name       string
		invoice    *time.Time
		due        *time.Time
		wantPassed bool
		wantScore  float64
	}{
		{"due after invoice", day(2024, 1, 1), day(2024, 2, 1), true, 1.0},
		{"due before invoice", day(2024, 3, 1), day(2024, 1, 1), false, 0.0},
		{"same day", day(2024, 3, 1), day(2024, 3, 1), true, 1.0},
		{"no due date", day(2024, 3, 1), nil, true, 1.0},
		{"no invoice date skips", nil, day(2024, 1, 1), true, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DateConsistencyRule{}.Check(&document.ExtractedData{InvoiceDate: tt.invoice, DueDate: tt.due})
			assert.Equal(t, tt.wantPassed, got.Passed)
			assert.Equal(t, tt.wantScore, got.Score)
		})
	}
}

func TestDuplicateInvoiceRule(t *testing.T) {
	existing := document.NewInvoiceNumberSet("INV-2024-001", "INV-2024-002")

	got := NewDuplicateInvoiceRule(existing).Check(&document.ExtractedData{InvoiceNumber: "INV-2024-001"})
	assert.False(t, got.Passed)
	assert.Equal(t, 0.0, got.Score)
	assert.Contains(t, got.Message, "INV-2024-001")

	got = NewDuplicateInvoiceRule(existing).Check(&document.ExtractedData{InvoiceNumber: "INV-2024-003"})
	assert.True(t, got.Passed)
	assert.Equal(t, 1.0, got.Score)

	got = NewDuplicateInvoiceRule(existing).Check(&document.ExtractedData{})
	assert.True(t, got.Passed)
	assert.Contains(t, got.Message, "Skipped")
}
