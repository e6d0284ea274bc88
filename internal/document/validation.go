package document

import "time"

// ValidationResult is the verdict of a single rule.
type ValidationResult struct {
	Rule    string  `json:"rule_name"`
	Passed  bool    `json:"passed"`
	Score   float64 `json:"score"`
	Message string  `json:"message,omitempty"`
}

// Validation is a persisted ValidationResult.
type Validation struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Rule       string    `json:"rule_name"`
	Passed     bool      `json:"passed"`
	Score      float64   `json:"score"`
	Message    string    `json:"message,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// AnyFailed reports whether at least one result did not pass.
func AnyFailed(results []ValidationResult) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}

// CountPassed returns the number of passing results.
func CountPassed(results []ValidationResult) int {
	n := 0
	for _, r := range results {
		if r.Passed {
			n++
		}
	}
	return n
}
