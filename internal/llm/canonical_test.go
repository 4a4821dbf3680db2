package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanMarkdownWrapper(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: `{"a":1}`, want: `{"a":1}`},
		{name: "json fence", input: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "bare fence", input: "```\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "leading prose", input: "Here you go: {\"a\":1} hope it helps", want: `{"a":1}`},
		{name: "whitespace", input: "  \n{\"a\":1}\n ", want: `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanMarkdownWrapper(tt.input))
		})
	}
}

func TestParseCanonical_FiltersAlternatives(t *testing.T) {
	resp, err := parseCanonical("openai", "gpt", `{
		"category": "software",
		"confidence": 0.9,
		"alternatives": [
			{"category": "software", "confidence": 0.5},
			{"category": "hosting", "confidence": 0.3},
			{"category": "travel", "confidence": 0.6},
			{"category": "broken", "confidence": 4},
			{"category": "", "confidence": 0.1}
		],
		"rules": [{"pattern": "", "category": "software", "confidence": 0.5}],
		"evidence": ["  ", "AWS"]
	}`)
	require.NoError(t, err)

	require.Len(t, resp.Alternatives, 2)
	assert.Equal(t, "travel", resp.Alternatives[0].Category)
	assert.Equal(t, "hosting", resp.Alternatives[1].Category)
	assert.Empty(t, resp.Rules)
	assert.Equal(t, []string{"AWS"}, resp.Evidence)
	assert.Equal(t, "gpt", resp.Model)
}

func TestParseCanonical_ZeroConfidenceAllowed(t *testing.T) {
	resp, err := parseCanonical("gemini", "flash", `{"category":"other","confidence":0}`)
	require.NoError(t, err)
	assert.Equal(t, 0.0, resp.Confidence)
}

func TestParseCanonical_Empty(t *testing.T) {
	_, err := parseCanonical("gemini", "flash", "   ")
	assert.ErrorIs(t, err, ErrMalformedResponse)
}
