package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func ptr(d decimal.Decimal) *decimal.Decimal { return &d }

func TestCategorizationRule_Validate(t *testing.T) {
	valid := CategorizationRule{
		Scope:      "user-1",
		Pattern:    "aws",
		Category:   "software",
		Confidence: 0.95,
		Accuracy:   1,
		Origin:     OriginUser,
		IsActive:   true,
	}

	tests := []struct {
		name    string
		errMsg  string
		mutate  func(r *CategorizationRule)
		wantErr bool
	}{
		{name: "valid rule", mutate: func(*CategorizationRule) {}},
		{
			name:    "missing scope",
			mutate:  func(r *CategorizationRule) { r.Scope = "" },
			wantErr: true,
			errMsg:  "rule scope is required",
		},
		{
			name:    "missing pattern",
			mutate:  func(r *CategorizationRule) { r.Pattern = "" },
			wantErr: true,
			errMsg:  "rule pattern is required",
		},
		{
			name:    "confidence too high",
			mutate:  func(r *CategorizationRule) { r.Confidence = 1.2 },
			wantErr: true,
			errMsg:  "confidence must be between 0 and 1, got 1.20",
		},
		{
			name:    "accuracy negative",
			mutate:  func(r *CategorizationRule) { r.Accuracy = -0.1 },
			wantErr: true,
			errMsg:  "accuracy must be between 0 and 1, got -0.10",
		},
		{
			name:    "unknown origin",
			mutate:  func(r *CategorizationRule) { r.Origin = "robot" },
			wantErr: true,
			errMsg:  `invalid rule origin "robot"`,
		},
		{
			name: "inverted amount bounds",
			mutate: func(r *CategorizationRule) {
				r.AmountMin = ptr(decimal.NewFromInt(100))
				r.AmountMax = ptr(decimal.NewFromInt(10))
			},
			wantErr: true,
			errMsg:  "amount_min 100 is greater than amount_max 10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := valid
			tt.mutate(&rule)
			err := rule.Validate()
			if tt.wantErr {
				assert.EqualError(t, err, tt.errMsg)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCategorizationRule_InAmountRange(t *testing.T) {
	rule := CategorizationRule{
		AmountMin: ptr(decimal.NewFromInt(10)),
		AmountMax: ptr(decimal.NewFromInt(100)),
	}

	assert.True(t, rule.InAmountRange(decimal.NewFromInt(10)))
	assert.True(t, rule.InAmountRange(decimal.NewFromInt(100)))
	assert.False(t, rule.InAmountRange(decimal.NewFromFloat(9.99)))
	assert.False(t, rule.InAmountRange(decimal.NewFromFloat(100.01)))

	unbounded := CategorizationRule{}
	assert.True(t, unbounded.InAmountRange(decimal.NewFromInt(-5000)))
}

func TestCategorizationRule_Score(t *testing.T) {
	rule := CategorizationRule{Confidence: 0.9, Accuracy: 0.5}
	assert.InDelta(t, 0.45, rule.Score(), 1e-9)
}
