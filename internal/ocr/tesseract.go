package ocr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Tesseract runs local OCR through gosseract. PDFs are handled by extracting
// their embedded page images with pdfcpu and recognizing each in page order.
type Tesseract struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

// NewTesseract creates a Tesseract provider. With no languages, "eng" is used.
func NewTesseract(languages ...string) *Tesseract {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &Tesseract{languages: languages, clientFactory: gosseract.NewClient}
}

// Name implements Provider.
func (t *Tesseract) Name() string { return ProviderTesseract }

// ExtractText implements Provider.
func (t *Tesseract) ExtractText(ctx context.Context, raw []byte) (*Result, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyInput
	}

	images := [][]byte{raw}
	if isPDF(raw) {
		var err error
		images, err = pdfImages(raw)
		if err != nil {
			return nil, err
		}
	}

	var (
		texts   []string
		confSum float64
		pages   int
	)
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, conf, err := t.recognize(img)
		if err != nil {
			return nil, fmt.Errorf("recognize image %d: %w", i, err)
		}
		if text == "" {
			continue
		}
		texts = append(texts, text)
		confSum += conf
		pages++
	}
	if pages == 0 {
		return nil, ErrNoText
	}

	return &Result{
		Text:       strings.Join(texts, "\n\n"),
		Confidence: clamp(confSum / float64(pages)),
	}, nil
}

func (t *Tesseract) recognize(img []byte) (string, float64, error) {
	c := t.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(img); err != nil {
		return "", 0, fmt.Errorf("set image: %w", err)
	}
	if err := c.SetLanguage(t.languages...); err != nil {
		return "", 0, fmt.Errorf("set languages: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return "", 0, fmt.Errorf("recognize text: %w", err)
	}
	return strings.TrimSpace(text), meanWordConfidence(c), nil
}

func meanWordConfidence(c *gosseract.Client) float64 {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence / 100.0
	}
	return sum / float64(len(boxes))
}

// pdfImages returns the images embedded in a PDF, in page order.
func pdfImages(raw []byte) ([][]byte, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	var images [][]byte
	err := api.ExtractImages(bytes.NewReader(raw), nil, func(img model.Image, _ bool, _ int) error {
		data, err := io.ReadAll(img)
		if err != nil {
			return fmt.Errorf("read page %d image %s: %w", img.PageNr, img.Name, err)
		}
		images = append(images, data)
		return nil
	}, conf)
	if err != nil {
		return nil, fmt.Errorf("extract pdf images: %w", err)
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: pdf has no page images", ErrNoText)
	}
	return images, nil
}

var _ Provider = (*Tesseract)(nil)
