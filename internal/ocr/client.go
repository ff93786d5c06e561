// Package ocr defines the interface pipelines use for page
// transcription and layout extraction. Provider-specific OCR clients
// are out of scope (spec.md §1); only the contract lives here.
package ocr

import "context"

// Page is one transcribed page: markdown text plus any detected
// images with bounding boxes.
type Page struct {
	PageNumber int
	Markdown   string
	Images     []ImageRegion
}

// ImageRegion is a detected image on a page, with an OCR-estimated
// description and location.
type ImageRegion struct {
	BoundingBox [4]float64 // x0, y0, x1, y1, normalized
	Description string
	Confidence  float64
}

// Client is the external OCR collaborator consumed by pdf/book/voice
// pipelines.
type Client interface {
	TranscribePDF(ctx context.Context, path string) ([]Page, error)
	TranscribeImage(ctx context.Context, path string) (Page, error)
	TranscribeAudio(ctx context.Context, path string) (text string, err error)
}
