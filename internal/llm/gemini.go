package llm

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

const geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// geminiAdapter calls the Google Gemini generateContent API.
type geminiAdapter struct {
	transport   *transport
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
}

// newGeminiAdapter creates a new Gemini adapter.
func newGeminiAdapter(cfg ProviderConfig) (*geminiAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", cfg.ID, ErrMissingAPIKey)
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-1.5-flash"
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
		baseURL = geminiDefaultBaseURL
	}

	return &geminiAdapter{
		transport:   newTransport(cfg),
		apiKey:      cfg.APIKey,
		model:       model,
		baseURL:     strings.TrimRight(baseURL, "/"),
		temperature: temperature,
		maxTokens:   maxTokens,
	}, nil
}

func (a *geminiAdapter) ID() string {
	return a.transport.cfg.ID
}

// Invoke sends the prompt with a JSON response MIME type.
func (a *geminiAdapter) Invoke(ctx context.Context, prompt Prompt) (Response, error) {
	requestBody := map[string]any{
		"systemInstruction": map[string]any{
			"parts": []map[string]string{{"text": systemPrompt}},
		},
		"contents": []map[string]any{
			{
				"role":  "user",
				"parts": []map[string]string{{"text": renderPrompt(prompt)}},
			},
		},
		"generationConfig": map[string]any{
			"temperature":      a.temperature,
			"maxOutputTokens":  a.maxTokens,
			"responseMimeType": "application/json",
		},
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", a.baseURL, url.PathEscape(a.model))
	body, err := a.transport.post(ctx, endpoint, map[string]string{
		"x-goog-api-key": a.apiKey,
	}, requestBody)
	if err != nil {
		return Response{}, err
	}

	var raw geminiResponse
	if err := decode(a.ID(), body, &raw); err != nil {
		return Response{}, err
	}

	return a.toResponse(raw)
}

// geminiResponse represents the Gemini generateContent response structure.
type geminiResponse struct {
	ModelVersion string `json:"modelVersion"`
	Candidates   []struct {
		Content struct {
			Role  string `json:"role"`
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
		Index        int    `json:"index"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// toResponse converts a Gemini candidate into the canonical response.
func (a *geminiAdapter) toResponse(raw geminiResponse) (Response, error) {
	if raw.PromptFeedback != nil && raw.PromptFeedback.BlockReason != "" {
		return Response{}, malformed(a.ID(), "prompt blocked: %s", raw.PromptFeedback.BlockReason)
	}
	if len(raw.Candidates) == 0 {
		return Response{}, malformed(a.ID(), "no candidates returned")
	}

	candidate := raw.Candidates[0]
	switch candidate.FinishReason {
	case "", "STOP":
	default:
		return Response{}, malformed(a.ID(), "generation stopped: %s", candidate.FinishReason)
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		text.WriteString(part.Text)
	}

	model := raw.ModelVersion
	if model == "" {
		model = a.model
	}

	return parseCanonical(a.ID(), model, text.String())
}
