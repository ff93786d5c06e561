package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"secondbrain/internal/model"
	"secondbrain/internal/retry"
)

// OllamaClient implements Client against a local Ollama HTTP server,
// grounded on the embedding engine's Ollama adapter (embedding/ollama.go):
// a plain net/http POST to /api/generate and /api/embed, no SDK.
type OllamaClient struct {
	baseURL        string
	textModel      string
	embeddingModel string
	httpClient     *http.Client
}

// NewOllamaClient builds an OllamaClient pointed at baseURL (default
// "http://localhost:11434").
func NewOllamaClient(baseURL, textModel, embeddingModel string) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaClient{
		baseURL:        baseURL,
		textModel:      textModel,
		embeddingModel: embeddingModel,
		httpClient:     &http.Client{},
	}
}

type ollamaGenerateRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Stream  bool   `json:"stream"`
	Format  string `json:"format,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response  string `json:"response"`
	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

func flattenMessages(messages []Message) string {
	var buf bytes.Buffer
	for _, m := range messages {
		buf.WriteString(m.Role)
		buf.WriteString(": ")
		buf.WriteString(m.Content)
		buf.WriteString("\n")
	}
	return buf.String()
}

func (c *OllamaClient) Complete(ctx context.Context, operation string, messages []Message, opts CompleteOptions) (string, Usage, error) {
	start := Clock()
	reqBody := ollamaGenerateRequest{
		Model:  c.textModel,
		Prompt: flattenMessages(messages),
		Stream: false,
		Options: map[string]any{"temperature": opts.Temperature},
	}
	if opts.JSONMode {
		reqBody.Format = "json"
	}

	var out ollamaGenerateResponse
	err := retry.Do(ctx, retry.DefaultOptions(), func(ctx context.Context) error {
		out = ollamaGenerateResponse{}
		if err := c.post(ctx, "/api/generate", reqBody, &out); err != nil {
			return err
		}
		if opts.JSONMode {
			var probe any
			if err := json.Unmarshal([]byte(out.Response), &probe); err != nil {
				return fmt.Errorf("json_mode parse failed: %w", err)
			}
		}
		return nil
	})
	usage := Usage{
		Model:        c.textModel,
		Provider:     "ollama",
		RequestType:  model.RequestText,
		InputTokens:  out.PromptEvalCount,
		OutputTokens: out.EvalCount,
		Success:      err == nil,
		LatencyMS:    Clock().Sub(start).Milliseconds(),
	}
	if err != nil {
		usage.ErrorMessage = err.Error()
		return "", usage, fmt.Errorf("llm: ollama complete %s: %w", operation, err)
	}
	return out.Response, usage, nil
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (c *OllamaClient) Embed(ctx context.Context, texts []string) ([][]float32, Usage, error) {
	start := Clock()
	var out ollamaEmbedResponse
	err := c.post(ctx, "/api/embed", ollamaEmbedRequest{Model: c.embeddingModel, Input: texts}, &out)
	usage := Usage{
		Model:       c.embeddingModel,
		Provider:    "ollama",
		RequestType: model.RequestEmbedding,
		Success:     err == nil,
		LatencyMS:   Clock().Sub(start).Milliseconds(),
	}
	if err != nil {
		usage.ErrorMessage = err.Error()
		return nil, usage, fmt.Errorf("llm: ollama embed: %w", err)
	}
	return out.Embeddings, usage, nil
}

// CompleteWithVision is not supported by the local Ollama adapter in
// this module; callers needing vision should configure the genai
// provider instead.
func (c *OllamaClient) CompleteWithVision(ctx context.Context, operation string, messages []Message, images []Image, opts CompleteOptions) (string, Usage, error) {
	return "", Usage{Provider: "ollama", Success: false}, fmt.Errorf("llm: ollama adapter does not support vision calls")
}

func (c *OllamaClient) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("ollama returned %d: %s", resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
