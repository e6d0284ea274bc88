package document

import "errors"

var (
	// ErrNotFound is returned when a referenced document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidInput indicates malformed caller input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedContentType is returned for uploads the OCR layer cannot read.
	ErrUnsupportedContentType = errors.New("unsupported content type")
)
