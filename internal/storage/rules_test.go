package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/model"
)

func newRule(scope model.Scope, pattern, category string) *model.CategorizationRule {
	return &model.CategorizationRule{
		Scope:      scope,
		Pattern:    pattern,
		Category:   category,
		Confidence: 0.92,
		Accuracy:   1,
		Origin:     model.OriginUser,
		IsActive:   true,
	}
}

func TestInsertRule_RoundTrip(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	lo := decimal.RequireFromString("10.50")
	hi := decimal.RequireFromString("500")
	rule := newRule("user-1", "aws", "software")
	rule.Subcategory = "cloud"
	rule.AmountMin = &lo
	rule.AmountMax = &hi

	require.NoError(t, store.InsertRule(ctx, rule))
	assert.NotEmpty(t, rule.ID)
	assert.False(t, rule.CreatedAt.IsZero())

	got, err := store.FindRule(ctx, "user-1", "aws", "software")
	require.NoError(t, err)
	assert.Equal(t, rule.ID, got.ID)
	assert.Equal(t, "cloud", got.Subcategory)
	assert.Equal(t, model.OriginUser, got.Origin)
	require.NotNil(t, got.AmountMin)
	require.NotNil(t, got.AmountMax)
	assert.True(t, lo.Equal(*got.AmountMin))
	assert.True(t, hi.Equal(*got.AmountMax))
	assert.True(t, got.IsActive)
}

func TestInsertRule_Duplicate(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.InsertRule(ctx, newRule("user-1", "aws", "software")))
	err := store.InsertRule(ctx, newRule("user-1", "aws", "software"))
	assert.ErrorIs(t, err, common.ErrDuplicateEntry)

	// Same pattern in another scope is a different rule.
	require.NoError(t, store.InsertRule(ctx, newRule("user-2", "aws", "software")))

	rules, err := store.FindActiveRules(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestInsertRule_Validation(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	tests := []struct {
		rule *model.CategorizationRule
		name string
	}{
		{name: "nil rule", rule: nil},
		{name: "bad regex", rule: func() *model.CategorizationRule {
			r := newRule("user-1", "([", "software")
			r.IsRegex = true
			return r
		}()},
		{name: "confidence out of range", rule: func() *model.CategorizationRule {
			r := newRule("user-1", "aws", "software")
			r.Confidence = 2
			return r
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, store.InsertRule(ctx, tt.rule))
		})
	}
}

func TestFindActiveRules_ScopeIsolation(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.InsertRule(ctx, newRule("user-1", "aws", "software")))
	require.NoError(t, store.InsertRule(ctx, newRule("user-2", "uber", "travel")))

	rules, err := store.FindActiveRules(ctx, "user-2")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "uber", rules[0].Pattern)

	none, err := store.FindActiveRules(ctx, "user-3")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestIncrementRuleUsage(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	rule := newRule("user-1", "aws", "software")
	require.NoError(t, store.InsertRule(ctx, rule))

	for i := 0; i < 3; i++ {
		require.NoError(t, store.IncrementRuleUsage(ctx, rule.ID))
	}

	got, err := store.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.UsageCount)

	assert.ErrorIs(t, store.IncrementRuleUsage(ctx, "missing"), common.ErrNotFound)
}

func TestRecordRuleOutcome(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	rule := newRule("user-1", "aws", "software")
	require.NoError(t, store.InsertRule(ctx, rule))

	require.NoError(t, store.RecordRuleOutcome(ctx, rule.ID, false))
	got, err := store.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, got.Accuracy, 1e-9)

	require.NoError(t, store.RecordRuleOutcome(ctx, rule.ID, true))
	got, err = store.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.91, got.Accuracy, 1e-9)
}

func TestUpdateRuleConfidence(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	rule := newRule("user-1", "aws", "software")
	rule.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, store.InsertRule(ctx, rule))

	require.NoError(t, store.UpdateRuleConfidence(ctx, rule.ID, 0.8))
	got, err := store.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, got.Confidence, 1e-9)
	assert.True(t, got.UpdatedAt.After(rule.CreatedAt))

	assert.ErrorIs(t, store.UpdateRuleConfidence(ctx, rule.ID, 1.5), ErrInvalidRule)
	assert.ErrorIs(t, store.UpdateRuleConfidence(ctx, "missing", 0.5), common.ErrNotFound)
}

func TestSetRuleActive(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	rule := newRule("user-1", "aws", "software")
	require.NoError(t, store.InsertRule(ctx, rule))

	// Another scope cannot touch the rule.
	assert.ErrorIs(t, store.SetRuleActive(ctx, "user-2", rule.ID, false), common.ErrNotFound)

	require.NoError(t, store.SetRuleActive(ctx, "user-1", rule.ID, false))

	active, err := store.FindActiveRules(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := store.ListRules(ctx, "user-1", true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].IsActive)

	onlyActive, err := store.ListRules(ctx, "user-1", false)
	require.NoError(t, err)
	assert.Empty(t, onlyActive)
}

func TestFindRule_NotFound(t *testing.T) {
	store := createTestStorage(t)
	_, err := store.FindRule(context.Background(), "user-1", "nothing", "software")
	assert.ErrorIs(t, err, common.ErrNotFound)
}
