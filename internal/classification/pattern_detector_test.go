package classification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-books-must-balance/internal/model"
)

func TestNewPatternDetector(t *testing.T) {
	tests := []struct {
		name     string
		errMsg   string
		patterns []Pattern
		wantErr  bool
	}{
		{
			name: "valid patterns",
			patterns: []Pattern{
				{Name: "Direct Deposit", Type: PatternTypeIncome, Category: "income", Regex: `DIRECTDEP`, Priority: 100, Confidence: 0.95},
				{Name: "ATM", Type: PatternTypeExpense, Category: "cash_withdrawal", Regex: `ATM`, Priority: 50, Confidence: 0.80},
			},
		},
		{
			name: "invalid regex",
			patterns: []Pattern{
				{Name: "Bad Pattern", Type: PatternTypeIncome, Regex: `[invalid regex`, Priority: 100, Confidence: 0.95},
			},
			wantErr: true,
			errMsg:  "failed to compile pattern Bad Pattern",
		},
		{
			name:     "empty patterns",
			patterns: []Pattern{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detector, err := NewPatternDetector(tt.patterns)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.patterns), detector.GetPatternCount())
		})
	}
}

func TestDefaultPatterns_Compile(t *testing.T) {
	detector := MustDefaultDetector()
	assert.Equal(t, len(DefaultPatterns()), detector.GetPatternCount())

	patterns := detector.Patterns()
	for i := 1; i < len(patterns); i++ {
		assert.GreaterOrEqual(t, patterns[i-1].Priority, patterns[i].Priority)
	}
	for _, p := range patterns {
		assert.NotEmpty(t, p.Category, p.Name)
	}
}

func TestPatternDetector_Classify(t *testing.T) {
	detector := MustDefaultDetector()

	tests := []struct {
		name        string
		description string
		category    string
		wantMatch   bool
	}{
		{name: "payroll", description: "ACME CORP PAYROLL", category: "income", wantMatch: true},
		{name: "cloud", description: "AWS Cloud Services", category: "software", wantMatch: true},
		{name: "atm", description: "ATM WITHDRAWAL 1234 MAIN ST", category: "cash_withdrawal", wantMatch: true},
		{name: "wire", description: "WIRE TRANSFER OUT", category: "transfer", wantMatch: true},
		{name: "unknown", description: "ZXQW LLC", wantMatch: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match, ok := detector.Classify(model.TransactionInput{Description: tt.description})
			assert.Equal(t, tt.wantMatch, ok)
			if tt.wantMatch {
				require.NotNil(t, match)
				assert.Equal(t, tt.category, match.Category)
				assert.Greater(t, match.Confidence, 0.0)
				assert.LessOrEqual(t, match.Confidence, 1.0)
			}
		})
	}
}

func TestPatternDetector_Candidates(t *testing.T) {
	detector := MustDefaultDetector()

	matches := detector.Candidates(model.TransactionInput{Description: "UBER TRIP PURCHASE", Merchant: "Uber"})
	require.Len(t, matches, 2)
	assert.Equal(t, "travel", matches[0].Category)
	assert.Equal(t, "shopping", matches[1].Category)

	// Two transfer patterns collapse into a single candidate.
	transfers := detector.Candidates(model.TransactionInput{Description: "WIRE TRANSFER XFER"})
	require.Len(t, transfers, 1)
	assert.Equal(t, "Wire Transfer", transfers[0].PatternName)
}

func TestSystemRules(t *testing.T) {
	patterns := DefaultPatterns()
	rules := SystemRules("user-1", patterns)
	require.Len(t, rules, len(patterns))

	for _, rule := range rules {
		assert.NoError(t, rule.Validate())
		assert.Equal(t, model.OriginSystem, rule.Origin)
		assert.True(t, rule.IsRegex)
		assert.True(t, rule.IsActive)
		assert.Equal(t, model.Scope("user-1"), rule.Scope)
	}
}
