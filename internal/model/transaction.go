// Package model defines the core data structures for the categorization core.
package model

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/the-books-must-balance/internal/common"
)

// TransactionInput is the immutable value submitted for categorization.
type TransactionInput struct {
	OccurredAt  time.Time       `json:"occurred_at"`
	Description string          `json:"description"`
	Reference   string          `json:"reference,omitempty"`
	Merchant    string          `json:"merchant,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
}

// Validate ensures the transaction can be categorized.
func (t TransactionInput) Validate() error {
	if strings.TrimSpace(t.Description) == "" {
		return common.NewValidationError("description", common.ErrMissingDescription)
	}
	return nil
}

// MerchantOrDescription returns the merchant when present, otherwise the description.
func (t TransactionInput) MerchantOrDescription() string {
	if strings.TrimSpace(t.Merchant) != "" {
		return t.Merchant
	}
	return t.Description
}

// AbsAmount returns the magnitude of the transaction amount.
func (t TransactionInput) AbsAmount() decimal.Decimal {
	return t.Amount.Abs()
}

// GenerateHash creates a stable fingerprint for duplicate detection.
func (t TransactionInput) GenerateHash() string {
	data := fmt.Sprintf("%s:%s:%s:%s:%s",
		t.OccurredAt.Format("2006-01-02"),
		t.Amount.StringFixed(2),
		t.Description,
		t.Merchant,
		t.Reference)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
