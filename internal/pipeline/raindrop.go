package pipeline

import (
	"context"
	"fmt"

	"secondbrain/internal/model"
)

// RaindropPipeline syncs a Raindrop.io bookmark: it delegates full
// article-text extraction to WebPipeline and layers the bookmark's
// highlights on as annotations, grounded on original_source's
// raindrop_sync.py ("fetches full article content via
// WebArticlePipeline").
type RaindropPipeline struct {
	Web *WebPipeline
}

func (p *RaindropPipeline) Supports(input Input) bool {
	return input.Type == InputRaindrop && input.URL != ""
}

func (p *RaindropPipeline) Process(ctx context.Context, input Input) (model.ContentRecord, error) {
	if p.Web == nil {
		return model.ContentRecord{}, fmt.Errorf("pipeline/raindrop: no web pipeline configured")
	}

	rec, err := p.Web.Process(ctx, Input{Type: InputArticle, URL: input.URL, Title: input.Title})
	if err != nil {
		return model.ContentRecord{}, fmt.Errorf("pipeline/raindrop: %w", err)
	}

	rec.Tags = append(rec.Tags, input.Tags...)
	for _, h := range input.Highlights {
		rec.Annotations = append(rec.Annotations, model.Annotation{
			Type:    model.AnnotationDigitalHighlight,
			Content: h.Text,
			Context: h.Note,
			Position: map[string]any{
				"color": h.Color,
			},
		})
	}

	return rec, nil
}
