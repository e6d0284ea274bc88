package sanitize

import (
	"errors"
	"fmt"
	"strings"
)

// Validation errors for security checks.
var (
	// ErrPathTraversal indicates an identifier could escape its storage root.
	ErrPathTraversal = errors.New("path contains directory traversal")

	// ErrInvalidDocumentID indicates the document ID format is invalid.
	ErrInvalidDocumentID = errors.New("invalid document ID")
)

// ValidateDocumentID checks that id can be used as a single path segment or
// object name component.
func ValidateDocumentID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidDocumentID)
	}

	if id == "." || id == ".." {
		return fmt.Errorf("%w: %q", ErrPathTraversal, id)
	}

	// Check for path separators and NUL
	if strings.ContainsAny(id, "/\\\x00") {
		return fmt.Errorf("%w: %q contains path characters", ErrInvalidDocumentID, id)
	}

	return nil
}
