package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"secondbrain/internal/model"
	"secondbrain/internal/ocr"
)

type sequencedOCR struct {
	pages map[string]string
}

func (s *sequencedOCR) TranscribePDF(ctx context.Context, path string) ([]ocr.Page, error) {
	return nil, nil
}

func (s *sequencedOCR) TranscribeImage(ctx context.Context, path string) (ocr.Page, error) {
	return ocr.Page{Markdown: s.pages[path]}, nil
}

func (s *sequencedOCR) TranscribeAudio(ctx context.Context, path string) (string, error) {
	return "", nil
}

func TestBookPipelineSupportsRequiresPagePaths(t *testing.T) {
	p := &BookPipeline{}
	require.True(t, p.Supports(Input{Type: InputBook, PagePaths: []string{"a.jpg"}}))
	require.False(t, p.Supports(Input{Type: InputBook}))
}

func TestBookPipelineProcessStitchesPagesInOrder(t *testing.T) {
	paths := make([]string, 0, 6)
	pages := map[string]string{}
	for i := 0; i < 6; i++ {
		path := writeTempFile(t, fmt.Sprintf("page%d.jpg", i), fmt.Sprintf("bytes-%d", i))
		paths = append(paths, path)
		pages[path] = fmt.Sprintf("page %d text", i)
	}

	p := &BookPipeline{OCR: &sequencedOCR{pages: pages}, Concurrency: 3}
	rec, err := p.Process(context.Background(), Input{Type: InputBook, PagePaths: paths, Title: "My Notebook"})
	require.NoError(t, err)

	require.Equal(t, model.SourceBook, rec.SourceType)
	require.Equal(t, "My Notebook", rec.Title)
	for i := 0; i < 6; i++ {
		require.Contains(t, rec.FullText, fmt.Sprintf("page %d text", i))
	}
	// ordering: page 0's text must appear before page 5's.
	idx0 := indexOf(rec.FullText, "page 0 text")
	idx5 := indexOf(rec.FullText, "page 5 text")
	require.Less(t, idx0, idx5)
	require.Equal(t, 6, rec.Metadata[model.MetaPageCount])
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

type failingOCR struct{}

func (failingOCR) TranscribePDF(ctx context.Context, path string) ([]ocr.Page, error) { return nil, nil }
func (failingOCR) TranscribeImage(ctx context.Context, path string) (ocr.Page, error) {
	return ocr.Page{}, fmt.Errorf("ocr down")
}
func (failingOCR) TranscribeAudio(ctx context.Context, path string) (string, error) { return "", nil }

func TestBookPipelineProcessPropagatesPageFailure(t *testing.T) {
	path := writeTempFile(t, "p.jpg", "bytes")
	p := &BookPipeline{OCR: failingOCR{}}
	_, err := p.Process(context.Background(), Input{Type: InputBook, PagePaths: []string{path}})
	require.Error(t, err)
}
