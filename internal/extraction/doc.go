// Package extraction turns OCR text into structured invoice fields.
//
// Two strategies exist. PatternExtractor scans the text line by line for
// labelled values and needs no external service. GenerativeExtractor asks a
// language model (OpenAI through langchaingo, or Vertex AI Gemini) for a JSON
// object and falls back to the pattern path on any failure, so it never
// returns an error to the caller.
package extraction
