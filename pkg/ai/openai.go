package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OpenAIClient talks to any OpenAI-compatible /v1 endpoint and serves
// both embeddings and chat completions. Works with OpenAI itself as
// well as vLLM, LiteLLM, LocalAI and Ollama's compatibility layer.
type OpenAIClient struct {
	baseURL     string
	apiKey      string
	embedModel  string
	chatModel   string
	dimensions  int
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

// OpenAIOptions configures an OpenAIClient. BaseURL should include the
// /v1 prefix. APIKey may be empty for local servers.
type OpenAIOptions struct {
	BaseURL     string
	APIKey      string
	EmbedModel  string
	ChatModel   string
	Dimensions  int
	MaxTokens   int
	Temperature float64
}

// NewOpenAIClient builds a client with sane defaults for the answer
// pipeline: 1536-dim embeddings and 1000-token completions.
func NewOpenAIClient(opts OpenAIOptions) *OpenAIClient {
	if opts.Dimensions <= 0 {
		opts.Dimensions = 1536
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1000
	}
	return &OpenAIClient{
		baseURL:     strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		apiKey:      strings.TrimSpace(opts.APIKey),
		embedModel:  strings.TrimSpace(opts.EmbedModel),
		chatModel:   strings.TrimSpace(opts.ChatModel),
		dimensions:  opts.Dimensions,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
	}
}

// Dimensions returns the embedding width the client requests.
func (c *OpenAIClient) Dimensions() int { return c.dimensions }

// EmbedText embeds a single text.
func (c *OpenAIClient) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedTexts embeds a batch of texts in one request, preserving order.
func (c *OpenAIClient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if c.embedModel == "" {
		return nil, fmt.Errorf("embedding model required")
	}
	if len(texts) == 0 {
		return nil, nil
	}
	reqBody := oaiEmbedRequest{
		Model:      c.embedModel,
		Input:      texts,
		Dimensions: c.dimensions,
	}
	var embedResp oaiEmbedResponse
	if err := c.doJSON(ctx, "/embeddings", reqBody, &embedResp); err != nil {
		return nil, err
	}
	if len(embedResp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(embedResp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, item := range embedResp.Data {
		if item.Index < 0 || item.Index >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range", item.Index)
		}
		out[item.Index] = item.Embedding
	}
	return out, nil
}

// GenerateText implements TextGenerator using the chat completions API.
func (c *OpenAIClient) GenerateText(ctx context.Context, messages []Message) (string, error) {
	if c.chatModel == "" {
		return "", fmt.Errorf("generation model required")
	}
	oaiMessages := make([]oaiMessage, 0, len(messages))
	for _, m := range messages {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		oaiMessages = append(oaiMessages, oaiMessage{Role: m.Role, Content: m.Content})
	}
	if len(oaiMessages) == 0 {
		return "", fmt.Errorf("at least one prompt message required")
	}
	reqBody := oaiChatRequest{
		Model:       c.chatModel,
		Messages:    oaiMessages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}
	var chatResp oaiChatResponse
	if err := c.doJSON(ctx, "/chat/completions", reqBody, &chatResp); err != nil {
		return "", err
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("empty response from model api")
	}
	text := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty response from model api")
	}
	return text, nil
}

func (c *OpenAIClient) doJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("model api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp oaiErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error.Message != "" {
			return fmt.Errorf("model api error: %s", errResp.Error.Message)
		}
		return fmt.Errorf("model api error: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("model api decode: %w", err)
	}
	return nil
}

// OpenAI-compatible request/response types.

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiChatRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature float64      `json:"temperature"`
}

type oaiChatResponse struct {
	Choices []struct {
		Message oaiMessage `json:"message"`
	} `json:"choices"`
}

type oaiEmbedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type oaiEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type oaiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
