package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/fyrsmithlabs/invoiced/internal/document"
)

// Rule names as they appear in validation results.
const (
	RuleLineItemsSum     = "line_items_sum"
	RuleTaxIDFormat      = "tax_id_format"
	RuleDateConsistency  = "date_consistency"
	RuleDuplicateInvoice = "duplicate_invoice"
)

var sumTolerance = decimal.RequireFromString("0.01")

const (
	minTaxIDLength = 5
	maxTaxIDLength = 20
)

// LineItemsSumRule checks that line item totals add up to the invoice total.
type LineItemsSumRule struct{}

// Name returns the rule identifier.
func (LineItemsSumRule) Name() string { return RuleLineItemsSum }

// Check compares the decimal sum of line items to the total amount.
func (r LineItemsSumRule) Check(data *document.ExtractedData) document.ValidationResult {
	if len(data.LineItems) == 0 || data.TotalAmount == nil || data.TotalAmount.IsZero() {
		return skip(r.Name(), "Skipped: no line items or total")
	}

	sum := decimal.Zero
	for _, item := range data.LineItems {
		sum = sum.Add(item.Total)
	}

	if sum.Sub(*data.TotalAmount).Abs().LessThanOrEqual(sumTolerance) {
		return pass(r.Name(), 1.0, fmt.Sprintf("Line items sum matches total: %s", formatDecimal(sum)))
	}
	return fail(r.Name(), 0.0, fmt.Sprintf("Line items sum (%s) does not match total (%s)",
		formatDecimal(sum), formatDecimal(*data.TotalAmount)))
}

// TaxIDFormatRule checks that a tax id looks plausible.
type TaxIDFormatRule struct{}

// Name returns the rule identifier.
func (TaxIDFormatRule) Name() string { return RuleTaxIDFormat }

// Check strips separators and requires 5 to 20 alphanumeric characters.
// A malformed id fails with a partial score.
func (r TaxIDFormatRule) Check(data *document.ExtractedData) document.ValidationResult {
	if data.TaxID == "" {
		return skip(r.Name(), "Skipped: no tax ID")
	}

	normalized := strings.NewReplacer("-", "", " ", "").Replace(data.TaxID)
	length := len([]rune(normalized))
	if isAlphanumeric(normalized) && length >= minTaxIDLength && length <= maxTaxIDLength {
		return pass(r.Name(), 1.0, "Tax ID format is valid")
	}
	return fail(r.Name(), 0.5, fmt.Sprintf("Tax ID format may be invalid: %s", data.TaxID))
}

// DateConsistencyRule checks that the due date does not precede the invoice date.
type DateConsistencyRule struct{}

// Name returns the rule identifier.
func (DateConsistencyRule) Name() string { return RuleDateConsistency }

// Check fails when both dates are known and due is before invoice.
func (r DateConsistencyRule) Check(data *document.ExtractedData) document.ValidationResult {
	if data.InvoiceDate == nil {
		return skip(r.Name(), "Skipped: no invoice date")
	}
	if data.DueDate != nil && data.DueDate.Before(*data.InvoiceDate) {
		return fail(r.Name(), 0.0, "Due date is before invoice date")
	}
	return pass(r.Name(), 1.0, "Dates are consistent")
}

// DuplicateInvoiceRule flags invoice numbers already recorded for other documents.
type DuplicateInvoiceRule struct {
	existing document.InvoiceNumberSet
}

// NewDuplicateInvoiceRule creates the rule over a set of known numbers.
func NewDuplicateInvoiceRule(existing document.InvoiceNumberSet) *DuplicateInvoiceRule {
	return &DuplicateInvoiceRule{existing: existing}
}

// Name returns the rule identifier.
func (*DuplicateInvoiceRule) Name() string { return RuleDuplicateInvoice }

// Check fails when the extracted invoice number is already known.
func (r *DuplicateInvoiceRule) Check(data *document.ExtractedData) document.ValidationResult {
	if data.InvoiceNumber == "" {
		return skip(r.Name(), "Skipped: no invoice number extracted")
	}
	if r.existing.Contains(data.InvoiceNumber) {
		return fail(r.Name(), 0.0, fmt.Sprintf("Duplicate invoice number detected: %s", data.InvoiceNumber))
	}
	return pass(r.Name(), 1.0, fmt.Sprintf("Invoice number '%s' is unique", data.InvoiceNumber))
}

func skip(rule, message string) document.ValidationResult {
	return pass(rule, 1.0, message)
}

func pass(rule string, score float64, message string) document.ValidationResult {
	return document.ValidationResult{Rule: rule, Passed: true, Score: score, Message: message}
}

func fail(rule string, score float64, message string) document.ValidationResult {
	return document.ValidationResult{Rule: rule, Passed: false, Score: score, Message: message}
}

func isAlphanumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// formatDecimal keeps the scale of the operands so 100.00+200.00 prints as 300.00.
func formatDecimal(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}

var (
	_ Rule = LineItemsSumRule{}
	_ Rule = TaxIDFormatRule{}
	_ Rule = DateConsistencyRule{}
	_ Rule = (*DuplicateInvoiceRule)(nil)
)
