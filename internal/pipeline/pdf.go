package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"secondbrain/internal/costledger"
	"secondbrain/internal/llm"
	"secondbrain/internal/model"
	"secondbrain/internal/ocr"
)

// PDFPipeline extracts text, structure, and annotations from PDFs,
// grounded on original_source's pdf_processor.py: OCR the full
// document, then classify paper/book/article with a short LLM call.
type PDFPipeline struct {
	OCR    ocr.Client
	LLM    llm.Client
	Ledger costledger.Ledger
}

func (p *PDFPipeline) Supports(input Input) bool {
	return input.Type == InputPDF && input.LocalPath != "" && strings.EqualFold(filepath.Ext(input.LocalPath), ".pdf")
}

func (p *PDFPipeline) Process(ctx context.Context, input Input) (model.ContentRecord, error) {
	hash, err := hashFile(input.LocalPath)
	if err != nil {
		return model.ContentRecord{}, fmt.Errorf("pipeline/pdf: hash %s: %w", input.LocalPath, err)
	}

	pages, err := p.OCR.TranscribePDF(ctx, input.LocalPath)
	if err != nil {
		return model.ContentRecord{}, fmt.Errorf("pipeline/pdf: transcribe %s: %w", input.LocalPath, err)
	}

	var fullText strings.Builder
	var annotations []model.Annotation
	for _, page := range pages {
		fullText.WriteString(page.Markdown)
		fullText.WriteString("\n\n")
		for i, img := range page.Images {
			annotations = append(annotations, model.Annotation{
				Type:       classifyImage(img.Description),
				Content:    img.Description,
				PageNumber: intPtr(page.PageNumber),
				Position:   map[string]any{"image_index": i, "bounding_box": img.BoundingBox},
				Confidence: floatPtr(img.Confidence),
			})
		}
	}

	title := input.Title
	if title == "" {
		title = titleFromText(fullText.String())
	}

	sourceType := p.classifyType(ctx, title, fullText.String())

	return model.ContentRecord{
		SourceType:     sourceType,
		Title:          title,
		SourceFilePath: input.LocalPath,
		FullText:       fullText.String(),
		RawFileHash:    hash,
		Annotations:    annotations,
		CreatedAt:      time.Now().UTC(),
		Metadata: map[string]any{
			model.MetaPageCount: len(pages),
		},
	}, nil
}

func (p *PDFPipeline) classifyType(ctx context.Context, title, text string) model.SourceType {
	sample := text
	if len(sample) > 3000 {
		sample = sample[:3000]
	}

	prompt := fmt.Sprintf(`Classify this PDF document into exactly one category.

Title: %s

Text excerpt:
%s

Categories:
- paper: academic/research papers, scientific publications
- book: books, textbooks, manuals with chapters
- article: blog posts, news articles, general documents

Respond with ONLY the category name, nothing else.`, title, sample)

	resp, usage, err := p.LLM.Complete(ctx, "pdf_classify", []llm.Message{{Role: "user", Content: prompt}}, llm.CompleteOptions{MaxTokens: 10})
	if p.Ledger != nil {
		_ = p.Ledger.Record(ctx, model.CostRecord{
			Model: usage.Model, Provider: usage.Provider, RequestType: usage.RequestType,
			InputTokens: usage.InputTokens, OutputTokens: usage.OutputTokens,
			Pipeline: "pdf", Operation: "content_type_classification",
			LatencyMS: usage.LatencyMS, Success: usage.Success, ErrorMessage: usage.ErrorMessage,
			CreatedAt: time.Now().UTC(),
		})
	}
	if err != nil {
		return model.SourceArticle
	}

	result := strings.ToLower(strings.TrimSpace(resp))
	switch {
	case strings.Contains(result, "paper"):
		return model.SourcePaper
	case strings.Contains(result, "book"):
		return model.SourceBook
	default:
		return model.SourceArticle
	}
}

func classifyImage(description string) model.AnnotationType {
	if strings.Contains(strings.ToLower(description), "handwritten") {
		return model.AnnotationHandwrittenNote
	}
	return model.AnnotationDiagram
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
