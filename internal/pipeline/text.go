package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"secondbrain/internal/model"
)

// TextPipeline stores a captured idea verbatim. No external calls: the
// fastest-path capture in spec.md §4.6.
type TextPipeline struct{}

func (p *TextPipeline) Supports(input Input) bool {
	return input.Type == InputTextIdea && strings.TrimSpace(input.RawText) != ""
}

func (p *TextPipeline) Process(ctx context.Context, input Input) (model.ContentRecord, error) {
	text := strings.TrimSpace(input.RawText)
	if text == "" {
		return model.ContentRecord{}, fmt.Errorf("pipeline/text: empty input")
	}

	title := input.Title
	if title == "" {
		title = titleFromText(text)
	}

	h := sha256.Sum256([]byte(text))

	return model.ContentRecord{
		SourceType:  model.SourceIdea,
		Title:       title,
		FullText:    text,
		RawFileHash: hex.EncodeToString(h[:]),
		CreatedAt:   time.Now().UTC(),
	}, nil
}
