package document

// InvoiceNumberSet holds invoice numbers already on record for other
// documents. A nil set means the duplicate check was not performed.
type InvoiceNumberSet map[string]struct{}

// NewInvoiceNumberSet builds a non-nil set, skipping empty numbers.
func NewInvoiceNumberSet(numbers ...string) InvoiceNumberSet {
	set := make(InvoiceNumberSet, len(numbers))
	for _, n := range numbers {
		if n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

// Contains reports whether n is in the set.
func (s InvoiceNumberSet) Contains(n string) bool {
	_, ok := s[n]
	return ok
}
