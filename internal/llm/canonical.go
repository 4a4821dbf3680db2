package llm

import (
	"encoding/json"
	"strings"

	"github.com/Veraticus/the-books-must-balance/internal/model"
)

// canonicalPayload is the JSON object every backend is asked to produce.
type canonicalPayload struct {
	Confidence   *float64        `json:"confidence"`
	Category     string          `json:"category"`
	Subcategory  string          `json:"subcategory"`
	Reasoning    string          `json:"reasoning"`
	Evidence     []string        `json:"evidence"`
	Alternatives []payloadAlt    `json:"alternatives"`
	Rules        []SuggestedRule `json:"rules"`
}

type payloadAlt struct {
	Category   string  `json:"category"`
	Reasoning  string  `json:"reasoning"`
	Confidence float64 `json:"confidence"`
}

// parseCanonical decodes a backend's text content into a Response.
func parseCanonical(provider, modelName, content string) (Response, error) {
	content = cleanMarkdownWrapper(content)
	if content == "" {
		return Response{}, malformed(provider, "empty content")
	}

	var payload canonicalPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return Response{}, malformed(provider, "content is not valid JSON: %v", err)
	}

	category := strings.TrimSpace(payload.Category)
	if category == "" {
		return Response{}, malformed(provider, "no category in response")
	}
	if payload.Confidence == nil {
		return Response{}, malformed(provider, "no confidence in response")
	}
	confidence := *payload.Confidence
	if confidence < 0 || confidence > 1 {
		return Response{}, malformed(provider, "confidence %.2f outside [0,1]", confidence)
	}

	var alternatives model.Alternatives
	seen := map[string]bool{category: true}
	for _, alt := range payload.Alternatives {
		name := strings.TrimSpace(alt.Category)
		if name == "" || seen[name] || alt.Confidence < 0 || alt.Confidence > 1 {
			continue
		}
		seen[name] = true
		alternatives = append(alternatives, model.Alternative{
			Category:   name,
			Confidence: alt.Confidence,
			Reasoning:  alt.Reasoning,
		})
	}
	alternatives.Sort()

	var rules []SuggestedRule
	for _, r := range payload.Rules {
		if strings.TrimSpace(r.Pattern) == "" || strings.TrimSpace(r.Category) == "" ||
			r.Confidence < 0 || r.Confidence > 1 {
			continue
		}
		rules = append(rules, r)
	}

	var evidence []string
	for _, e := range payload.Evidence {
		if e = strings.TrimSpace(e); e != "" {
			evidence = append(evidence, e)
		}
	}

	return Response{
		Category:     category,
		Subcategory:  strings.TrimSpace(payload.Subcategory),
		Confidence:   confidence,
		Reasoning:    strings.TrimSpace(payload.Reasoning),
		Evidence:     evidence,
		Alternatives: alternatives,
		Rules:        rules,
		Model:        modelName,
		Provider:     provider,
	}, nil
}

// cleanMarkdownWrapper strips a ```json fence and surrounding prose that
// some models emit despite instructions.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```JSON")
		content = strings.TrimPrefix(content, "```")
		if idx := strings.LastIndex(content, "```"); idx >= 0 {
			content = content[:idx]
		}
		content = strings.TrimSpace(content)
	}

	if start, end := strings.Index(content, "{"), strings.LastIndex(content, "}"); start > 0 && end > start {
		content = content[start : end+1]
	}

	return content
}
