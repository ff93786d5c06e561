package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"secondbrain/internal/llm"
	"secondbrain/internal/model"
	"secondbrain/internal/ocr"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPDFPipelineSupportsOnlyPDFInput(t *testing.T) {
	p := &PDFPipeline{}
	path := writeTempFile(t, "doc.pdf", "x")
	require.True(t, p.Supports(Input{Type: InputPDF, LocalPath: path}))
	require.False(t, p.Supports(Input{Type: InputPDF, LocalPath: writeTempFile(t, "doc.txt", "x")}))
	require.False(t, p.Supports(Input{Type: InputArticle, LocalPath: path}))
}

func TestPDFPipelineProcessBuildsFullTextAndAnnotations(t *testing.T) {
	path := writeTempFile(t, "paper.pdf", "pdf bytes")
	fake := &fakeOCR{pages: []ocr.Page{
		{PageNumber: 1, Markdown: "Introduction to Graphs", Images: []ocr.ImageRegion{
			{Description: "a hand-drawn diagram", Confidence: 0.8},
		}},
		{PageNumber: 2, Markdown: "Conclusion"},
	}}
	stub := &llm.StubClient{CompleteFn: func(op string, msgs []llm.Message) (string, error) {
		return "paper", nil
	}}
	ledger := &stubLedger{}

	p := &PDFPipeline{OCR: fake, LLM: stub, Ledger: ledger}
	rec, err := p.Process(context.Background(), Input{Type: InputPDF, LocalPath: path})
	require.NoError(t, err)

	require.Equal(t, model.SourcePaper, rec.SourceType)
	require.Contains(t, rec.FullText, "Introduction to Graphs")
	require.Contains(t, rec.FullText, "Conclusion")
	require.Len(t, rec.Annotations, 1)
	require.Equal(t, model.AnnotationHandwrittenNote, rec.Annotations[0].Type)
	require.NotEmpty(t, rec.RawFileHash)
	require.Len(t, ledger.records, 1)
}

func TestPDFPipelineClassifyTypeDefaultsToArticleOnLLMError(t *testing.T) {
	path := writeTempFile(t, "x.pdf", "bytes")
	fake := &fakeOCR{pages: []ocr.Page{{PageNumber: 1, Markdown: "text"}}}
	stub := &llm.StubClient{CompleteFn: func(op string, msgs []llm.Message) (string, error) {
		return "", assertErr
	}}
	p := &PDFPipeline{OCR: fake, LLM: stub, Ledger: &stubLedger{}}
	rec, err := p.Process(context.Background(), Input{Type: InputPDF, LocalPath: path})
	require.NoError(t, err)
	require.Equal(t, model.SourceArticle, rec.SourceType)
}

var assertErr = &testError{"llm failure"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
