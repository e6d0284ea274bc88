// Package document defines the invoice document model shared by the
// processing pipeline, the stores and the HTTP layer.
//
// # Lifecycle
//
// A Document starts as pending, moves to processing when a run begins and ends
// in one of three terminal states:
//
//	pending → processing → completed | review | failed
//
// A completed document is never processed again. Documents in review or failed
// may be re-run.
//
// # Records
//
// Record is the read model handed to API consumers: the document, its
// Extraction, its Validations and the ordered audit trail of ProcessingEvents.
package document
