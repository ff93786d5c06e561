package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"secondbrain/internal/costledger"
	"secondbrain/internal/llm"
	"secondbrain/internal/model"
	"secondbrain/internal/ocr"
)

// BookPipeline transcribes a batch of photographed book pages
// concurrently, then stitches them back into page order. Concurrency
// is bounded the way the teacher bounds fan-out elsewhere (an errgroup
// with SetLimit), since OCR providers rate-limit aggressively.
type BookPipeline struct {
	OCR         ocr.Client
	LLM         llm.Client
	Ledger      costledger.Ledger
	Concurrency int // defaults to 4
}

func (p *BookPipeline) Supports(input Input) bool {
	return input.Type == InputBook && len(input.PagePaths) > 0
}

type transcribedPage struct {
	index    int
	markdown string
}

func (p *BookPipeline) Process(ctx context.Context, input Input) (model.ContentRecord, error) {
	concurrency := p.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)

	results := make([]transcribedPage, len(input.PagePaths))
	var mu sync.Mutex

	for i, path := range input.PagePaths {
		i, path := i, path
		group.Go(func() error {
			page, err := p.OCR.TranscribeImage(gctx, path)
			if err != nil {
				return fmt.Errorf("pipeline/book: transcribe page %d (%s): %w", i, path, err)
			}
			mu.Lock()
			results[i] = transcribedPage{index: i, markdown: page.Markdown}
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return model.ContentRecord{}, err
	}

	sort.Slice(results, func(a, b int) bool { return results[a].index < results[b].index })

	var fullText strings.Builder
	for _, r := range results {
		fullText.WriteString(r.markdown)
		fullText.WriteString("\n\n")
	}

	title := input.Title
	if title == "" {
		title = titleFromText(fullText.String())
	}

	var hash string
	if len(input.PagePaths) > 0 {
		h, err := hashFile(input.PagePaths[0])
		if err == nil {
			hash = h
		}
	}

	return model.ContentRecord{
		SourceType:  model.SourceBook,
		Title:       title,
		FullText:    fullText.String(),
		RawFileHash: hash,
		CreatedAt:   time.Now().UTC(),
		Metadata: map[string]any{
			model.MetaPageCount: len(input.PagePaths),
		},
	}, nil
}
