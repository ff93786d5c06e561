package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"secondbrain/internal/model"
)

func TestTextPipelineSupportsNonEmptyRawText(t *testing.T) {
	p := &TextPipeline{}
	require.True(t, p.Supports(Input{Type: InputTextIdea, RawText: "an idea"}))
	require.False(t, p.Supports(Input{Type: InputTextIdea, RawText: "   "}))
	require.False(t, p.Supports(Input{Type: InputArticle, RawText: "an idea"}))
}

func TestTextPipelineProcessStoresTextVerbatim(t *testing.T) {
	p := &TextPipeline{}
	rec, err := p.Process(context.Background(), Input{Type: InputTextIdea, RawText: "Maybe FSRS could use a decay curve.\nMore detail here."})
	require.NoError(t, err)
	require.Equal(t, model.SourceIdea, rec.SourceType)
	require.Equal(t, "Maybe FSRS could use a decay curve.", rec.Title)
	require.Contains(t, rec.FullText, "More detail here.")
	require.NotEmpty(t, rec.RawFileHash)
}

func TestTextPipelineProcessErrorsOnEmptyInput(t *testing.T) {
	p := &TextPipeline{}
	_, err := p.Process(context.Background(), Input{Type: InputTextIdea, RawText: "   "})
	require.Error(t, err)
}
