package llm

import (
	"context"
	"fmt"
	"strings"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion        = "2023-06-01"
)

// anthropicAdapter calls the Anthropic messages API.
type anthropicAdapter struct {
	transport   *transport
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
}

// newAnthropicAdapter creates a new Anthropic adapter.
func newAnthropicAdapter(cfg ProviderConfig) (*anthropicAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", cfg.ID, ErrMissingAPIKey)
	}

	model := cfg.Model
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.2
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 600
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = anthropicDefaultBaseURL
	}

	return &anthropicAdapter{
		transport:   newTransport(cfg),
		apiKey:      cfg.APIKey,
		model:       model,
		baseURL:     strings.TrimRight(baseURL, "/"),
		temperature: temperature,
		maxTokens:   maxTokens,
	}, nil
}

func (a *anthropicAdapter) ID() string {
	return a.transport.cfg.ID
}

// Invoke sends the prompt as a single user message.
func (a *anthropicAdapter) Invoke(ctx context.Context, prompt Prompt) (Response, error) {
	requestBody := map[string]any{
		"model":       a.model,
		"max_tokens":  a.maxTokens,
		"temperature": a.temperature,
		"system":      systemPrompt,
		"messages": []map[string]string{
			{"role": "user", "content": renderPrompt(prompt)},
		},
	}

	body, err := a.transport.post(ctx, a.baseURL+"/messages", map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": anthropicVersion,
	}, requestBody)
	if err != nil {
		return Response{}, err
	}

	var raw anthropicResponse
	if err := decode(a.ID(), body, &raw); err != nil {
		return Response{}, err
	}

	return a.toResponse(raw)
}

// anthropicResponse represents the Anthropic API response structure.
type anthropicResponse struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Role       string `json:"role"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// toResponse converts an Anthropic message into the canonical response.
func (a *anthropicAdapter) toResponse(raw anthropicResponse) (Response, error) {
	var text strings.Builder
	for _, block := range raw.Content {
		if block.Type == "text" || block.Type == "" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return Response{}, malformed(a.ID(), "no text content in response")
	}
	if raw.StopReason == "max_tokens" {
		return Response{}, malformed(a.ID(), "response truncated at max_tokens")
	}

	model := raw.Model
	if model == "" {
		model = a.model
	}

	return parseCanonical(a.ID(), model, text.String())
}
