package redact

import "strings"

// Rule describes one class of sensitive data.
type Rule struct {
	ID          string
	Description string
	Pattern     string
	// Keywords gate the rule: at least one must appear (case-insensitive)
	// somewhere in the text before the pattern is tried.
	Keywords []string
	// Valid, when set, must accept the match for it to be redacted.
	Valid func(match string) bool
}

// DefaultRules returns the rules applied before generative extraction.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "payment-card",
			Description: "Payment card number",
			Pattern:     `\b(?:\d[ -]?){12,18}\d\b`,
			Valid:       luhn,
		},
		{
			ID:          "iban",
			Description: "International bank account number",
			Pattern:     `\b[A-Z]{2}\d{2}(?: ?[A-Z0-9]{4}){2,7}(?: ?[A-Z0-9]{1,4})?\b`,
		},
		{
			ID:          "bank-account",
			Description: "Bank account number",
			Pattern:     `(?i)\b(?:account|acct)\.?\s*(?:no\.?|number|#)?\s*[:#]?\s*\d{6,17}\b`,
			Keywords:    []string{"account", "acct"},
		},
		{
			ID:          "routing-number",
			Description: "ABA routing or sort code",
			Pattern:     `(?i)\b(?:routing|aba|sort code)\s*(?:no\.?|number|#)?\s*[:#]?\s*[\d-]{6,9}\b`,
			Keywords:    []string{"routing", "aba", "sort code"},
		},
		{
			ID:          "swift-bic",
			Description: "SWIFT/BIC code",
			Pattern:     `(?i)\b(?:swift|bic)(?:\s*code)?\s*[:#]?\s*[A-Z]{6}[A-Z0-9]{2}(?:[A-Z0-9]{3})?\b`,
			Keywords:    []string{"swift", "bic"},
		},
		{
			ID:          "email",
			Description: "Email address",
			Pattern:     `[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`,
		},
		{
			ID:          "generic-api-key",
			Description: "Generic API key",
			Pattern:     `(?i)(?:api[_-]?key|apikey)\s*[:=]\s*['"]?[A-Za-z0-9_\-]{16,64}['"]?`,
			Keywords:    []string{"api"},
		},
		{
			ID:          "bearer-token",
			Description: "Bearer token",
			Pattern:     `(?i)bearer\s+[A-Za-z0-9_\-\.=]{20,}`,
			Keywords:    []string{"bearer"},
		},
	}
}

// luhn reports whether the digits in s pass the Luhn checksum.
func luhn(s string) bool {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}

	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
