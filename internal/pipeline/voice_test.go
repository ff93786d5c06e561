package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"secondbrain/internal/llm"
	"secondbrain/internal/model"
)

func TestVoicePipelineSupportsKnownAudioExtensions(t *testing.T) {
	p := &VoicePipeline{}
	require.True(t, p.Supports(Input{Type: InputVoiceMemo, LocalPath: "memo.m4a"}))
	require.True(t, p.Supports(Input{Type: InputVoiceMemo, LocalPath: "memo.MP3"}))
	require.False(t, p.Supports(Input{Type: InputVoiceMemo, LocalPath: "memo.txt"}))
	require.False(t, p.Supports(Input{Type: InputPDF, LocalPath: "memo.m4a"}))
}

func TestVoicePipelineProcessUsesInputTitleWhenPresent(t *testing.T) {
	path := writeTempFile(t, "memo.m4a", "audio bytes")
	fake := &fakeOCR{transcript: "today I had an idea about graphs"}
	p := &VoicePipeline{OCR: fake, Ledger: &stubLedger{}}
	rec, err := p.Process(context.Background(), Input{Type: InputVoiceMemo, LocalPath: path, Title: "Graph Idea"})
	require.NoError(t, err)
	require.Equal(t, "Graph Idea", rec.Title)
	require.Equal(t, model.SourceVoiceMemo, rec.SourceType)
	require.Equal(t, "today I had an idea about graphs", rec.FullText)
}

func TestVoicePipelineSuggestsTitleFromLLMWhenAbsent(t *testing.T) {
	path := writeTempFile(t, "memo.wav", "audio bytes")
	fake := &fakeOCR{transcript: "rambling thoughts about databases"}
	stub := &llm.StubClient{CompleteFn: func(op string, msgs []llm.Message) (string, error) {
		return "Database Musings", nil
	}}
	p := &VoicePipeline{OCR: fake, LLM: stub, Ledger: &stubLedger{}}
	rec, err := p.Process(context.Background(), Input{Type: InputVoiceMemo, LocalPath: path})
	require.NoError(t, err)
	require.Equal(t, "Database Musings", rec.Title)
}

func TestVoicePipelineTitleFallsBackOnLLMFailure(t *testing.T) {
	path := writeTempFile(t, "memo.ogg", "audio bytes")
	fake := &fakeOCR{transcript: "some transcript text"}
	stub := &llm.StubClient{CompleteFn: func(op string, msgs []llm.Message) (string, error) {
		return "", assertErr
	}}
	p := &VoicePipeline{OCR: fake, LLM: stub, Ledger: &stubLedger{}}
	rec, err := p.Process(context.Background(), Input{Type: InputVoiceMemo, LocalPath: path})
	require.NoError(t, err)
	require.Equal(t, "some transcript text", rec.Title)
}
