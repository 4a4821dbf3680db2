package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeedbackInput is a user's verdict on a prior prediction.
type FeedbackInput struct {
	TransactionRef    string
	Description       string
	Merchant          string
	OriginalCategory  string
	CorrectedCategory string
	Reasoning         string
	Confidence        float64
	// Amount is the signed transaction amount. Amount-bounded rules only
	// get accuracy updates when it is set.
	Amount   decimal.Decimal
	Accepted bool
}

// FeedbackRecord is an append-only ledger entry. Records are never edited.
type FeedbackRecord struct {
	CreatedAt         time.Time `json:"created_at"`
	ID                string    `json:"id"`
	TransactionRef    string    `json:"transaction_ref,omitempty"`
	Scope             Scope     `json:"scope"`
	Description       string    `json:"description"`
	NormalizedPattern string    `json:"normalized_pattern"`
	OriginalCategory  string    `json:"original_category"`
	CorrectedCategory string    `json:"corrected_category"`
	Reasoning         string    `json:"reasoning,omitempty"`
	Confidence        float64   `json:"confidence"`
	Accepted          bool      `json:"accepted"`
}

// IsCorrection reports whether the user changed the predicted category.
func (f FeedbackRecord) IsCorrection() bool {
	return !f.Accepted && f.CorrectedCategory != f.OriginalCategory
}

// HistoricalCategorization is a prior categorization for a scope, used as
// prompt context and for consistency checks.
type HistoricalCategorization struct {
	CreatedAt   time.Time    `json:"created_at"`
	Description string       `json:"description"`
	Merchant    string       `json:"merchant,omitempty"`
	Category    string       `json:"category"`
	Subcategory string       `json:"subcategory,omitempty"`
	Source      ResultSource `json:"source"`
	Confidence  float64      `json:"confidence"`
}
