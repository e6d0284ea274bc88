package ocr

import "context"

// MockText is the fixed text returned by the mock provider.
const MockText = "INVOICE\n" +
	"Vendor: Acme Corp\n" +
	"Tax ID: 12-3456789\n" +
	"Invoice #: INV-2024-001\n" +
	"Date: 2024-01-15\n" +
	"\n" +
	"Line Items:\n" +
	"Item 1: $100.00\n" +
	"Item 2: $200.00\n" +
	"Total: $300.00"

// MockConfidence is the confidence reported by the mock provider.
const MockConfidence = 0.85

// Mock returns canned text regardless of input.
type Mock struct{}

// NewMock creates a mock provider.
func NewMock() *Mock { return &Mock{} }

// Name implements Provider.
func (m *Mock) Name() string { return ProviderMock }

// ExtractText implements Provider.
func (m *Mock) ExtractText(ctx context.Context, _ []byte) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Result{Text: MockText, Confidence: MockConfidence}, nil
}

var _ Provider = (*Mock)(nil)
