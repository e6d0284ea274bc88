package redact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedact_Rules(t *testing.T) {
	r := MustNew(nil)

	tests := []struct {
		name    string
		input   string
		rule    string
		absent  string
		present string
	}{
		{
			name:   "visa card with spaces",
			input:  "Paid with card 4111 1111 1111 1111 on file",
			rule:   "payment-card",
			absent: "4111 1111 1111 1111",
		},
		{
			name:   "iban",
			input:  "IBAN: DE89 3704 0044 0532 0130 00",
			rule:   "iban",
			absent: "3704 0044",
		},
		{
			name:   "bank account",
			input:  "Account No: 123456789012",
			rule:   "bank-account",
			absent: "123456789012",
		},
		{
			name:   "routing number",
			input:  "Routing #: 021000021",
			rule:   "routing-number",
			absent: "021000021",
		},
		{
			name:   "email",
			input:  "Contact billing@acme.example for questions",
			rule:   "email",
			absent: "billing@acme.example",
		},
		{
			name:   "api key",
			input:  "api_key=abcdef0123456789abcdef",
			rule:   "generic-api-key",
			absent: "abcdef0123456789abcdef",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Redact(tt.input)
			require.True(t, res.HasFindings())
			assert.Equal(t, 1, res.ByRule[tt.rule])
			assert.NotContains(t, res.Text, tt.absent)
			assert.Contains(t, res.Text, DefaultMarker)
		})
	}
}

func TestRedact_KeepsInvoiceFields(t *testing.T) {
	text := "Vendor: Acme Corp\nTax ID: 12-3456789\nInvoice #: INV-2024-001\nDate: 2024-01-15\nTotal: $300.00"
	res := MustNew(nil).Redact(text)
	assert.False(t, res.HasFindings())
	assert.Equal(t, text, res.Text)
}

func TestRedact_LuhnRejectsRandomDigits(t *testing.T) {
	res := MustNew(nil).Redact("Ref 1234 5678 9012 3456")
	assert.Zero(t, res.ByRule["payment-card"])
}

func TestRedact_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	res := MustNew(cfg).Redact("card 4111111111111111")
	assert.Equal(t, "card 4111111111111111", res.Text)
	assert.False(t, res.HasFindings())
}

func TestRedact_AllowList(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowList = []string{`@acme\.example$`}
	res := MustNew(cfg).Redact("billing@acme.example")
	assert.Equal(t, "billing@acme.example", res.Text)
}

func TestRedact_LineNumbers(t *testing.T) {
	res := MustNew(nil).Redact("line one\ncard 4111111111111111")
	require.Len(t, res.Findings, 1)
	assert.Equal(t, 2, res.Findings[0].Line)
}

func TestNew_InvalidPattern(t *testing.T) {
	_, err := New(&Config{Enabled: true, Rules: []Rule{{ID: "bad", Pattern: "("}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}

func TestMerge(t *testing.T) {
	got := merge([]span{{10, 20}, {0, 5}, {15, 25}, {5, 7}})
	assert.Equal(t, []span{{0, 7}, {10, 25}}, got)
}

func TestLuhn(t *testing.T) {
	assert.True(t, luhn("4111-1111-1111-1111"))
	assert.True(t, luhn("5500 0000 0000 0004"))
	assert.False(t, luhn("4111 1111 1111 1112"))
	assert.False(t, luhn("12-3456789"))
}
