// Package pipeline turns uploaded invoice bytes into a validated,
// confidence-scored record.
//
// A run moves a document from pending through processing to completed,
// review or failed:
//
//	ocr -> extraction -> validation -> confidence -> commit
//
// Every step appends to the audit trail in the store and hands the same event
// to an events.Publisher. Completed documents are never reprocessed; a second
// Process call on one returns nil without touching the store.
//
// Failures mark the document failed, append a terminal failed event and return
// the provider or store error wrapped with %w. Rows written before the failure
// are kept.
package pipeline
