package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"secondbrain/internal/logging"
	"secondbrain/internal/model"
	"secondbrain/internal/retry"
)

var log = logging.Get(logging.CategoryLLM)

// GenAIClient implements Client against Google's Gemini API, grounded
// on the embedding engine's client-construction pattern
// (embedding/genai.go): a single *genai.Client built once, reused
// across calls.
type GenAIClient struct {
	client         *genai.Client
	textModel      string
	visionModel    string
	embeddingModel string
	retryOpts      retry.Options
}

// NewGenAIClient builds a GenAIClient. apiKey must be non-empty.
func NewGenAIClient(ctx context.Context, apiKey, textModel, visionModel, embeddingModel string) (*GenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("llm: GenAI API key is required")
	}
	if textModel == "" {
		textModel = "gemini-2.0-flash"
	}
	if visionModel == "" {
		visionModel = textModel
	}
	if embeddingModel == "" {
		embeddingModel = "text-embedding-004"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("llm: create GenAI client: %w", err)
	}

	return &GenAIClient{
		client:         client,
		textModel:      textModel,
		visionModel:    visionModel,
		embeddingModel: embeddingModel,
		retryOpts:      retry.DefaultOptions(),
	}, nil
}

func toGenaiContents(messages []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if role == "assistant" {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return contents
}

// Complete sends messages to the configured text model. In JSONMode, a
// response that fails to parse as JSON is retried per the configured
// retry policy (spec.md §6.6).
func (c *GenAIClient) Complete(ctx context.Context, operation string, messages []Message, opts CompleteOptions) (string, Usage, error) {
	start := Clock()
	var text string
	var usage Usage

	err := retry.Do(ctx, c.retryOpts, func(ctx context.Context) error {
		cfg := &genai.GenerateContentConfig{
			Temperature: genai.Ptr(float32(opts.Temperature)),
		}
		if opts.MaxTokens > 0 {
			cfg.MaxOutputTokens = int32(opts.MaxTokens)
		}
		if opts.JSONMode {
			cfg.ResponseMIMEType = "application/json"
		}

		resp, err := c.client.Models.GenerateContent(ctx, c.textModel, toGenaiContents(messages), cfg)
		if err != nil {
			return fmt.Errorf("llm: genai complete %s: %w", operation, err)
		}
		text = resp.Text()

		if opts.JSONMode {
			var probe any
			if err := json.Unmarshal([]byte(text), &probe); err != nil {
				return fmt.Errorf("llm: genai json_mode parse failed for %s: %w", operation, err)
			}
		}

		usage = Usage{
			Model:       c.textModel,
			Provider:    "genai",
			RequestType: model.RequestText,
			Success:     true,
		}
		if resp.UsageMetadata != nil {
			usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
			usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		}
		return nil
	})

	usage.LatencyMS = Clock().Sub(start).Milliseconds()
	if err != nil {
		usage.Success = false
		usage.ErrorMessage = err.Error()
		log.Warn("Complete(%s) failed: %v", operation, err)
		return "", usage, err
	}
	return text, usage, nil
}

// Embed batches texts through the configured embedding model.
func (c *GenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, Usage, error) {
	start := Clock()
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = &genai.Content{Parts: []*genai.Part{{Text: t}}}
	}

	resp, err := c.client.Models.EmbedContent(ctx, c.embeddingModel, contents, nil)
	usage := Usage{
		Model:       c.embeddingModel,
		Provider:    "genai",
		RequestType: model.RequestEmbedding,
		Success:     err == nil,
		LatencyMS:   Clock().Sub(start).Milliseconds(),
	}
	if err != nil {
		usage.ErrorMessage = err.Error()
		return nil, usage, fmt.Errorf("llm: genai embed: %w", err)
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		vectors[i] = e.Values
	}
	return vectors, usage, nil
}

// CompleteWithVision sends messages plus images to the configured
// vision model.
func (c *GenAIClient) CompleteWithVision(ctx context.Context, operation string, messages []Message, images []Image, opts CompleteOptions) (string, Usage, error) {
	start := Clock()
	contents := toGenaiContents(messages)
	if len(contents) > 0 {
		for _, img := range images {
			contents[len(contents)-1].Parts = append(contents[len(contents)-1].Parts, &genai.Part{
				InlineData: &genai.Blob{MIMEType: img.MIMEType, Data: img.Data},
			})
		}
	}

	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr(float32(opts.Temperature))}
	resp, err := c.client.Models.GenerateContent(ctx, c.visionModel, contents, cfg)

	usage := Usage{
		Model:       c.visionModel,
		Provider:    "genai",
		RequestType: model.RequestVision,
		Success:     err == nil,
		LatencyMS:   Clock().Sub(start).Milliseconds(),
	}
	if err != nil {
		usage.ErrorMessage = err.Error()
		log.Warn("CompleteWithVision(%s) failed: %v", operation, err)
		return "", usage, fmt.Errorf("llm: genai vision complete %s: %w", operation, err)
	}
	if resp.UsageMetadata != nil {
		usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return resp.Text(), usage, nil
}
