package ocr

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"
)

const documentTextDetection = "DOCUMENT_TEXT_DETECTION"

// Vision uses Google Cloud Vision document text detection. Images go through
// images:annotate and PDFs through files:annotate.
type Vision struct {
	svc *vision.Service
}

// NewVision creates a Vision provider. An empty credentialsFile falls back
// to application default credentials.
func NewVision(ctx context.Context, credentialsFile string, opts ...option.ClientOption) (*Vision, error) {
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	svc, err := vision.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create vision service: %w", err)
	}
	return &Vision{svc: svc}, nil
}

// Name implements Provider.
func (v *Vision) Name() string { return ProviderVision }

// ExtractText implements Provider.
func (v *Vision) ExtractText(ctx context.Context, raw []byte) (*Result, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyInput
	}
	content := base64.StdEncoding.EncodeToString(raw)
	features := []*vision.Feature{{Type: documentTextDetection}}

	var annotations []*vision.AnnotateImageResponse
	if isPDF(raw) {
		resp, err := v.svc.Files.Annotate(&vision.BatchAnnotateFilesRequest{
			Requests: []*vision.AnnotateFileRequest{{
				InputConfig: &vision.InputConfig{Content: content, MimeType: "application/pdf"},
				Features:    features,
			}},
		}).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("vision files annotate: %w", err)
		}
		for _, fr := range resp.Responses {
			if fr.Error != nil {
				return nil, fmt.Errorf("vision: %s", fr.Error.Message)
			}
			annotations = append(annotations, fr.Responses...)
		}
	} else {
		resp, err := v.svc.Images.Annotate(&vision.BatchAnnotateImagesRequest{
			Requests: []*vision.AnnotateImageRequest{{
				Image:    &vision.Image{Content: content},
				Features: features,
			}},
		}).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("vision images annotate: %w", err)
		}
		annotations = resp.Responses
	}

	return collectAnnotations(annotations)
}

// collectAnnotations joins full-text annotations and averages page
// confidence across all pages.
func collectAnnotations(responses []*vision.AnnotateImageResponse) (*Result, error) {
	var (
		texts   []string
		confSum float64
		pages   int
	)
	for _, r := range responses {
		if r == nil {
			continue
		}
		if r.Error != nil {
			return nil, fmt.Errorf("vision: %s", r.Error.Message)
		}
		if r.FullTextAnnotation == nil {
			continue
		}
		if text := strings.TrimSpace(r.FullTextAnnotation.Text); text != "" {
			texts = append(texts, text)
		}
		for _, p := range r.FullTextAnnotation.Pages {
			confSum += p.Confidence
			pages++
		}
	}
	if len(texts) == 0 {
		return nil, ErrNoText
	}
	var conf float64
	if pages > 0 {
		conf = confSum / float64(pages)
	}
	return &Result{Text: strings.Join(texts, "\n\n"), Confidence: clamp(conf)}, nil
}

var _ Provider = (*Vision)(nil)
