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

var audioExtensions = map[string]bool{
	".m4a": true, ".mp3": true, ".wav": true, ".ogg": true, ".flac": true,
}

// VoicePipeline transcribes a voice memo and asks the LLM for a title
// since spoken audio rarely states one.
type VoicePipeline struct {
	OCR    ocr.Client
	LLM    llm.Client
	Ledger costledger.Ledger
}

func (p *VoicePipeline) Supports(input Input) bool {
	return input.Type == InputVoiceMemo && input.LocalPath != "" && audioExtensions[strings.ToLower(filepath.Ext(input.LocalPath))]
}

func (p *VoicePipeline) Process(ctx context.Context, input Input) (model.ContentRecord, error) {
	hash, err := hashFile(input.LocalPath)
	if err != nil {
		return model.ContentRecord{}, fmt.Errorf("pipeline/voice: hash %s: %w", input.LocalPath, err)
	}

	text, err := p.OCR.TranscribeAudio(ctx, input.LocalPath)
	if err != nil {
		return model.ContentRecord{}, fmt.Errorf("pipeline/voice: transcribe %s: %w", input.LocalPath, err)
	}

	title := input.Title
	if title == "" {
		title = p.suggestTitle(ctx, text)
	}

	return model.ContentRecord{
		SourceType:     model.SourceVoiceMemo,
		Title:          title,
		SourceFilePath: input.LocalPath,
		FullText:       text,
		RawFileHash:    hash,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

func (p *VoicePipeline) suggestTitle(ctx context.Context, text string) string {
	sample := text
	if len(sample) > 1500 {
		sample = sample[:1500]
	}
	prompt := fmt.Sprintf("Give a short (<=8 word) title for this voice memo transcript, nothing else:\n\n%s", sample)

	resp, usage, err := p.LLM.Complete(ctx, "voice_title", []llm.Message{{Role: "user", Content: prompt}}, llm.CompleteOptions{MaxTokens: 20})
	if p.Ledger != nil {
		_ = p.Ledger.Record(ctx, model.CostRecord{
			Model: usage.Model, Provider: usage.Provider, RequestType: usage.RequestType,
			InputTokens: usage.InputTokens, OutputTokens: usage.OutputTokens,
			Pipeline: "voice", Operation: "title_suggestion",
			LatencyMS: usage.LatencyMS, Success: usage.Success, ErrorMessage: usage.ErrorMessage,
			CreatedAt: time.Now().UTC(),
		})
	}
	if err != nil || strings.TrimSpace(resp) == "" {
		return titleFromText(text)
	}
	return strings.TrimSpace(resp)
}
