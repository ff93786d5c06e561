// Package llm defines the provider-agnostic LLM interface consumed by
// the orchestrator, card/exercise generators, and pipelines (spec.md
// §6.6). Provider-specific wire clients are thin adapters; this
// package owns only the contract plus cost/latency accounting glue.
package llm

import (
	"context"
	"time"

	"secondbrain/internal/model"
)

// Message is one turn in a chat-style completion request.
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// Usage reports token counts and latency for one call, in the shape
// internal/costledger consumes directly.
type Usage struct {
	Model        string
	Provider     string
	RequestType  model.RequestType
	InputTokens  int
	OutputTokens int
	LatencyMS    int64
	Success      bool
	ErrorMessage string
}

// CompleteOptions configures a text completion call.
type CompleteOptions struct {
	Temperature float64
	MaxTokens   int
	JSONMode    bool
}

// Image is raw image bytes with a MIME type, for vision calls.
type Image struct {
	MIMEType string
	Data     []byte
}

// Client is the provider-agnostic contract every pipeline/orchestrator
// stage programs against. json_mode implementations must retry on
// parse failure internally (spec.md §6.6).
type Client interface {
	Complete(ctx context.Context, operation string, messages []Message, opts CompleteOptions) (string, Usage, error)
	Embed(ctx context.Context, texts []string) ([][]float32, Usage, error)
	CompleteWithVision(ctx context.Context, operation string, messages []Message, images []Image, opts CompleteOptions) (string, Usage, error)
}

// Clock is injectable for latency measurement in tests.
var Clock = time.Now
