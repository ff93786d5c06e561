package llm

import (
	"context"

	"secondbrain/internal/model"
)

// StubClient is an in-memory Client used by tests across packages that
// depend on llm.Client (pipelines, orchestrator, card/exercise
// generators) without making real network calls.
type StubClient struct {
	CompleteFn func(operation string, messages []Message) (string, error)
	EmbedFn    func(texts []string) ([][]float32, error)
}

func (s *StubClient) Complete(ctx context.Context, operation string, messages []Message, opts CompleteOptions) (string, Usage, error) {
	text := ""
	var err error
	if s.CompleteFn != nil {
		text, err = s.CompleteFn(operation, messages)
	}
	usage := Usage{Model: "stub", Provider: "stub", RequestType: model.RequestText, Success: err == nil}
	return text, usage, err
}

func (s *StubClient) Embed(ctx context.Context, texts []string) ([][]float32, Usage, error) {
	if s.EmbedFn != nil {
		vecs, err := s.EmbedFn(texts)
		return vecs, Usage{Model: "stub", Provider: "stub", RequestType: model.RequestEmbedding, Success: err == nil}, err
	}
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = []float32{0.1, 0.2, 0.3}
	}
	return vecs, Usage{Model: "stub", Provider: "stub", RequestType: model.RequestEmbedding, Success: true}, nil
}

func (s *StubClient) CompleteWithVision(ctx context.Context, operation string, messages []Message, images []Image, opts CompleteOptions) (string, Usage, error) {
	return s.Complete(ctx, operation, messages, opts)
}

var _ Client = (*StubClient)(nil)
