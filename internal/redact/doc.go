// Package redact masks payment and credential data in OCR text before it is
// sent to an external generative model.
//
// Rules are regular expressions with optional keyword gates and an optional
// validator (card numbers must pass a Luhn check). Overlapping matches are
// merged and replaced with a single marker. Tax identifiers and invoice
// numbers are deliberately not covered because extraction needs them.
package redact
