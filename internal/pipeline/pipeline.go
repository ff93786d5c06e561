// Package pipeline implements C5 (the pipeline registry) and C6 (the
// seven leaf pipelines): pdf, book, voice, web, reporead, raindrop,
// text. Each pipeline turns one captured Input into a normalized
// model.ContentRecord; grounded on the teacher's shard/stage pattern
// and original_source/backend/app/pipelines/pdf_processor.py's
// supports/process contract.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"secondbrain/internal/model"
)

// InputType is the closed set of capture shapes spec.md §4.5 names.
type InputType string

const (
	InputPDF        InputType = "pdf"
	InputPhoto      InputType = "photo"
	InputVoiceMemo  InputType = "voice_memo"
	InputBook       InputType = "book"
	InputCode       InputType = "code"
	InputArticle    InputType = "article"
	InputDocument   InputType = "document"
	InputWhiteboard InputType = "whiteboard"
	InputTextIdea   InputType = "text_idea"
	InputRaindrop   InputType = "raindrop"
)

// Highlight is a single Raindrop.io bookmark highlight, carried through
// to the web pipeline as a pre-extracted annotation.
type Highlight struct {
	Text  string
	Note  string
	Color string
}

// Input is a tagged variant carrying at most one of {local path, URL,
// raw text}, per spec.md §4.5.
type Input struct {
	Type InputType

	LocalPath  string      // pdf, photo, book (front+back pages), whiteboard
	PagePaths  []string    // book: ordered page image paths
	URL        string      // article, reporead, raindrop
	RawText    string      // text_idea
	Title      string      // caller-supplied hint, used when extraction yields none
	Highlights []Highlight // raindrop: highlights fetched from the bookmark API
	Tags       []string    // raindrop: tags carried over from the bookmark
}

// Pipeline is one content-type-specific processor.
type Pipeline interface {
	Supports(input Input) bool
	Process(ctx context.Context, input Input) (model.ContentRecord, error)
}

// Registry holds an ordered, process-wide list of pipelines; order is
// registration order and is significant (first match wins).
type Registry struct {
	pipelines []Pipeline
}

// NewRegistry builds a registry over pipelines in priority order.
func NewRegistry(pipelines ...Pipeline) *Registry {
	return &Registry{pipelines: pipelines}
}

// GetPipeline returns the first registered pipeline that supports input.
func (r *Registry) GetPipeline(input Input) (Pipeline, error) {
	for _, p := range r.pipelines {
		if p.Supports(input) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("pipeline: no pipeline supports input type %q", input.Type)
}

// titleFromText derives a fallback title from the first non-empty line
// of text, truncated to a reasonable heading length.
func titleFromText(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) > 80 {
			line = line[:80]
		}
		return line
	}
	return "Untitled"
}
