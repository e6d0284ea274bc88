package document

// Record is the outbound view of a processed document.
type Record struct {
	Document    *Document         `json:"document"`
	Extraction  *Extraction       `json:"extraction,omitempty"`
	Validations []Validation      `json:"validations"`
	Events      []ProcessingEvent `json:"events"`
}
