// Package validation runs business rules over extracted invoice data.
package validation

import (
	"github.com/fyrsmithlabs/invoiced/internal/document"
)

// Rule is a single deterministic check over extracted data.
type Rule interface {
	// Name returns the rule identifier reported in results.
	Name() string

	// Check evaluates the rule. It never fails; a missing input is a skip.
	Check(data *document.ExtractedData) document.ValidationResult
}

// Engine evaluates an ordered rule set. It holds no state between calls and
// never touches storage.
type Engine struct {
	rules []Rule
}

// NewEngine creates an engine with the universal rules in their fixed order.
func NewEngine() *Engine {
	return &Engine{
		rules: []Rule{
			LineItemsSumRule{},
			TaxIDFormatRule{},
			DateConsistencyRule{},
		},
	}
}

// Rules returns the universal rule names in evaluation order.
func (e *Engine) Rules() []string {
	names := make([]string, len(e.rules))
	for i, r := range e.rules {
		names[i] = r.Name()
	}
	return names
}

// Validate runs every universal rule, then the duplicate check when existing
// is non-nil. A nil set leaves duplicate_invoice out of the results entirely.
func (e *Engine) Validate(data *document.ExtractedData, existing document.InvoiceNumberSet) []document.ValidationResult {
	if data == nil {
		data = &document.ExtractedData{}
	}

	results := make([]document.ValidationResult, 0, len(e.rules)+1)
	for _, rule := range e.rules {
		results = append(results, rule.Check(data))
	}
	if existing != nil {
		results = append(results, NewDuplicateInvoiceRule(existing).Check(data))
	}
	return results
}
