package ocr

import (
	"context"
	"fmt"
)

// Unconfigured is the default Client wired when no OCR provider is
// configured: every call fails clearly rather than silently producing
// empty transcriptions. Swap in a real provider client (itself thin
// glue, per spec.md §1) to enable pdf/book/voice capture.
type Unconfigured struct{}

func (Unconfigured) TranscribePDF(ctx context.Context, path string) ([]Page, error) {
	return nil, fmt.Errorf("ocr: no provider configured, cannot transcribe %s", path)
}

func (Unconfigured) TranscribeImage(ctx context.Context, path string) (Page, error) {
	return Page{}, fmt.Errorf("ocr: no provider configured, cannot transcribe %s", path)
}

func (Unconfigured) TranscribeAudio(ctx context.Context, path string) (string, error) {
	return "", fmt.Errorf("ocr: no provider configured, cannot transcribe audio")
}

var _ Client = Unconfigured{}
