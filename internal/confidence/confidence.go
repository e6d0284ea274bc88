// Package confidence combines OCR, extraction and validation signals into a
// single trust score for a processed invoice.
package confidence

import (
	"math"

	"github.com/fyrsmithlabs/invoiced/internal/document"
)

// Component weights. They sum to 1.
const (
	OCRWeight        = 0.30
	ExtractionWeight = 0.40
	ValidationWeight = 0.30
)

// Result is the aggregated confidence of one run.
type Result struct {
	Overall         float64            `json:"overall"`
	OCRScore        float64            `json:"ocr_score"`
	ExtractionScore float64            `json:"extraction_score"`
	ValidationScore float64            `json:"validation_score"`
	PerField        map[string]float64 `json:"per_field"`
}

// Compute weights the three signals and clamps the overall score to [0,1].
// The validation score is the mean of result scores, or 1.0 with no results.
// Per-field scores come from data.FieldConfidences when present, otherwise
// from field presence; with no data the map is empty. Every scalar is rounded
// to four decimals.
func Compute(ocr, extraction float64, results []document.ValidationResult, data *document.ExtractedData) Result {
	validation := 1.0
	if len(results) > 0 {
		var sum float64
		for _, r := range results {
			sum += r.Score
		}
		validation = sum / float64(len(results))
	}

	overall := clamp(OCRWeight*ocr + ExtractionWeight*extraction + ValidationWeight*validation)

	perField := map[string]float64{}
	if data != nil {
		if len(data.FieldConfidences) > 0 {
			for k, v := range data.FieldConfidences {
				perField[k] = Round(v)
			}
		} else {
			perField = data.PresenceConfidences()
		}
	}

	return Result{
		Overall:         Round(overall),
		OCRScore:        Round(ocr),
		ExtractionScore: Round(extraction),
		ValidationScore: Round(validation),
		PerField:        perField,
	}
}

// Round rounds v to four decimal places.
func Round(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
