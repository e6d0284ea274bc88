package extraction

import (
	"context"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fyrsmithlabs/invoiced/internal/document"
)

// Pattern extraction confidence.
const (
	patternFoundConfidence    = 0.7
	patternNotFoundConfidence = 0.3
)

var (
	lineItemRe    = regexp.MustCompile(`^(.+?)[\s:]+\$?([\d,]+\.?\d*)\s*$`)
	nonAmountChar = regexp.MustCompile(`[^\d.]`)
)

// PatternExtractor pulls labelled values out of OCR text with substring cues
// and a line-item regex. It is deterministic and never fails.
type PatternExtractor struct{}

// NewPatternExtractor creates a PatternExtractor.
func NewPatternExtractor() *PatternExtractor {
	return &PatternExtractor{}
}

// Extract implements Extractor.
func (p *PatternExtractor) Extract(_ context.Context, text string) (*document.ExtractedData, error) {
	return p.extract(text), nil
}

func (p *PatternExtractor) extract(text string) *document.ExtractedData {
	data := &document.ExtractedData{LineItems: []document.LineItem{}}

	// Labels count as found even with an empty value after the colon.
	var foundVendor, foundTaxID, foundNumber bool

	for _, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(line)

		if containsAny(lower, "vendor", "company", "from:") {
			if v, ok := afterColon(line); ok {
				data.VendorName, foundVendor = v, true
			}
		}

		if containsAny(lower, "tax id", "ein", "vat") {
			if v, ok := afterColon(line); ok {
				data.TaxID, foundTaxID = v, true
			}
		}

		if containsAny(lower, "invoice #", "invoice number", "inv #") {
			if v, ok := afterColon(line); ok {
				data.InvoiceNumber, foundNumber = v, true
			}
		}

		if containsAny(lower, "invoice date", "date:") && data.InvoiceDate == nil {
			raw, _ := afterColon(line)
			data.InvoiceDate = parseDate(raw)
		}

		if containsAny(lower, "due date", "payment due") {
			raw, _ := afterColon(line)
			data.DueDate = parseDate(raw)
		}

		if strings.Contains(lower, "total") && strings.Contains(line, "$") {
			tail := line[strings.LastIndex(line, "$")+1:]
			if amount := nonAmountChar.ReplaceAllString(tail, ""); amount != "" {
				data.TotalAmount = parseDecimalString(amount)
			}
		}

		if m := lineItemRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil && !strings.Contains(lower, "total") {
			amt, err := decimal.NewFromString(strings.ReplaceAll(m[2], ",", ""))
			if err == nil {
				data.LineItems = append(data.LineItems, document.LineItem{
					Description: strings.TrimSpace(m[1]),
					Total:       amt,
				})
			}
		}
	}

	if foundVendor || foundTaxID || foundNumber || data.TotalAmount != nil {
		data.ExtractionConfidence = patternFoundConfidence
	} else {
		data.ExtractionConfidence = patternNotFoundConfidence
	}

	data.FieldConfidences = data.PresenceConfidences()
	if data.TotalAmount != nil && data.TotalAmount.IsZero() {
		data.FieldConfidences[document.FieldTotalAmount] = 0.0
	}
	return data
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// afterColon returns the trimmed text after the first colon.
func afterColon(line string) (string, bool) {
	_, after, ok := strings.Cut(line, ":")
	if !ok {
		return "", false
	}
	return strings.TrimSpace(after), true
}

var _ Extractor = (*PatternExtractor)(nil)
