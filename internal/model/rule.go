package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Scope identifies the user or tenant that owns rules and feedback.
// Nothing is ever visible across scopes.
type Scope string

// RuleOrigin records who created a rule.
type RuleOrigin string

// Rule origin constants.
const (
	OriginAI     RuleOrigin = "ai"
	OriginUser   RuleOrigin = "user"
	OriginSystem RuleOrigin = "system"
)

// Valid reports whether the origin is one of the known values.
func (o RuleOrigin) Valid() bool {
	switch o {
	case OriginAI, OriginUser, OriginSystem:
		return true
	}
	return false
}

// CategorizationRule is a deterministic pattern to category mapping.
type CategorizationRule struct {
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	AmountMin   *decimal.Decimal `json:"amount_min,omitempty"`
	AmountMax   *decimal.Decimal `json:"amount_max,omitempty"`
	ID          string           `json:"id"`
	Scope       Scope            `json:"scope"`
	Pattern     string           `json:"pattern"`
	Category    string           `json:"category"`
	Subcategory string           `json:"subcategory,omitempty"`
	Origin      RuleOrigin       `json:"origin"`
	Confidence  float64          `json:"confidence"`
	Accuracy    float64          `json:"accuracy"`
	UsageCount  int              `json:"usage_count"`
	IsRegex     bool             `json:"is_regex"`
	IsActive    bool             `json:"is_active"`
}

// Score is the ranking weight used to pick between firing rules.
func (r CategorizationRule) Score() float64 {
	return r.Confidence * r.Accuracy
}

// InAmountRange reports whether amount satisfies the rule's optional bounds.
func (r CategorizationRule) InAmountRange(amount decimal.Decimal) bool {
	if r.AmountMin != nil && amount.LessThan(*r.AmountMin) {
		return false
	}
	if r.AmountMax != nil && amount.GreaterThan(*r.AmountMax) {
		return false
	}
	return true
}

// Validate checks the rule invariants.
func (r CategorizationRule) Validate() error {
	if r.Scope == "" {
		return fmt.Errorf("rule scope is required")
	}
	if r.Pattern == "" {
		return fmt.Errorf("rule pattern is required")
	}
	if r.Category == "" {
		return fmt.Errorf("rule category is required")
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence must be between 0 and 1, got %.2f", r.Confidence)
	}
	if r.Accuracy < 0 || r.Accuracy > 1 {
		return fmt.Errorf("accuracy must be between 0 and 1, got %.2f", r.Accuracy)
	}
	if r.UsageCount < 0 {
		return fmt.Errorf("usage count cannot be negative")
	}
	if !r.Origin.Valid() {
		return fmt.Errorf("invalid rule origin %q", r.Origin)
	}
	if r.AmountMin != nil && r.AmountMax != nil && r.AmountMin.GreaterThan(*r.AmountMax) {
		return fmt.Errorf("amount_min %s is greater than amount_max %s", r.AmountMin, r.AmountMax)
	}
	return nil
}
