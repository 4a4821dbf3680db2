package llm

import (
	"context"

	"github.com/Veraticus/the-books-must-balance/internal/model"
)

// Prompt is the canonical request handed to every adapter.
type Prompt struct {
	Transaction model.TransactionInput
	Capability  Capability
	History     []model.HistoricalCategorization
}

// SuggestedRule is a rule a provider proposes alongside its answer.
type SuggestedRule struct {
	Pattern    string  `json:"pattern"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// Response is the canonical answer every adapter converts its backend's
// raw response into.
type Response struct {
	Category     string
	Subcategory  string
	Reasoning    string
	Model        string
	Provider     string
	Evidence     []string
	Alternatives model.Alternatives
	Rules        []SuggestedRule
	Confidence   float64
}

// Adapter invokes one backend. Adapters never retry; retrying across
// providers is the caller's job.
type Adapter interface {
	ID() string
	Invoke(ctx context.Context, prompt Prompt) (Response, error)
}
