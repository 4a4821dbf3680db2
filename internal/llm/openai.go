package llm

import (
	"context"
	"fmt"
	"strings"
)

const openAIDefaultBaseURL = "https://api.openai.com/v1"

// openAIAdapter calls the OpenAI chat completions API.
type openAIAdapter struct {
	transport   *transport
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
}

// newOpenAIAdapter creates a new OpenAI adapter.
func newOpenAIAdapter(cfg ProviderConfig) (*openAIAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", cfg.ID, ErrMissingAPIKey)
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
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
		baseURL = openAIDefaultBaseURL
	}

	return &openAIAdapter{
		transport:   newTransport(cfg),
		apiKey:      cfg.APIKey,
		model:       model,
		baseURL:     strings.TrimRight(baseURL, "/"),
		temperature: temperature,
		maxTokens:   maxTokens,
	}, nil
}

func (a *openAIAdapter) ID() string {
	return a.transport.cfg.ID
}

// Invoke sends the prompt as a chat completion in JSON mode.
func (a *openAIAdapter) Invoke(ctx context.Context, prompt Prompt) (Response, error) {
	requestBody := map[string]any{
		"model": a.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": renderPrompt(prompt)},
		},
		"temperature":     a.temperature,
		"max_tokens":      a.maxTokens,
		"response_format": map[string]string{"type": "json_object"},
	}

	body, err := a.transport.post(ctx, a.baseURL+"/chat/completions", map[string]string{
		"Authorization": "Bearer " + a.apiKey,
	}, requestBody)
	if err != nil {
		return Response{}, err
	}

	var raw openAIResponse
	if err := decode(a.ID(), body, &raw); err != nil {
		return Response{}, err
	}

	return a.toResponse(raw)
}

// openAIResponse represents the OpenAI API response structure.
type openAIResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
		Index        int    `json:"index"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Created int64 `json:"created"`
}

// toResponse converts an OpenAI completion into the canonical response.
func (a *openAIAdapter) toResponse(raw openAIResponse) (Response, error) {
	if len(raw.Choices) == 0 {
		return Response{}, malformed(a.ID(), "no completion choices returned")
	}

	choice := raw.Choices[0]
	if choice.Message.Refusal != "" {
		return Response{}, malformed(a.ID(), "model refused: %s", choice.Message.Refusal)
	}

	model := raw.Model
	if model == "" {
		model = a.model
	}

	return parseCanonical(a.ID(), model, choice.Message.Content)
}
