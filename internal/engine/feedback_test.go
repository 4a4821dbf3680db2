package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-books-must-balance/internal/feedback"
	"github.com/Veraticus/the-books-must-balance/internal/llm"
	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/pattern"
	"github.com/Veraticus/the-books-must-balance/internal/service"
	"github.com/Veraticus/the-books-must-balance/internal/testutil"
)

func correction(ref string) model.FeedbackInput {
	return model.FeedbackInput{
		TransactionRef:    ref,
		Description:       "AWS EMEA #4411",
		OriginalCategory:  "shopping",
		CorrectedCategory: "software",
		Confidence:        0.6,
	}
}

func TestRecordFeedback_StoresRecord(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	ctx := context.Background()

	receipt := h.orch.RecordFeedback(ctx, user, correction("t1"))

	require.True(t, receipt.Stored)
	assert.NotEmpty(t, receipt.RecordID)
	assert.Equal(t, feedback.OutcomeNone, receipt.Promotion.Outcome)

	records, err := h.db.Storage.FeedbackByPattern(ctx, user, "aws emea")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "software", records[0].CorrectedCategory)
	assert.Equal(t, model.Scope(user), records[0].Scope)

	history, err := h.db.Storage.RecentCategorizations(ctx, user, 5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.SourceUser, history[0].Source)

	assert.Len(t, h.audit.byKind(service.EventFeedback), 1)
}

func TestRecordFeedback_PromotesAfterThreshold(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	ctx := context.Background()

	var receipt FeedbackReceipt
	for i := range 3 {
		receipt = h.orch.RecordFeedback(ctx, user, correction(fmt.Sprintf("t%d", i)))
	}

	require.Equal(t, feedback.OutcomeCreated, receipt.Promotion.Outcome)
	rule := h.db.MustGetRule(receipt.Promotion.Rule.ID)
	assert.Equal(t, "aws emea", rule.Pattern)
	assert.Equal(t, model.OriginUser, rule.Origin)
	assert.Len(t, h.audit.byKind(service.EventRulePromotion), 1)
}

func TestRecordFeedback_PromotionIsIdempotent(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	ctx := context.Background()

	for round := range 2 {
		for i := range 3 {
			h.orch.RecordFeedback(ctx, user, correction(fmt.Sprintf("t%d", i)))
		}
		rules, err := h.db.Storage.ListRules(ctx, user, true)
		require.NoError(t, err)
		require.Len(t, rules, 1, "round %d", round)
	}
}

func TestRecordFeedback_UpdatesRuleAccuracy(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	ctx := context.Background()
	wrong := h.db.MustInsertRule(testutil.Rule(user, "aws", "shopping", 0.95))
	unrelated := h.db.MustInsertRule(testutil.Rule(user, "delta", "shopping", 0.95))
	other := h.db.MustInsertRule(testutil.Rule(user, "emea", "travel", 0.95))

	receipt := h.orch.RecordFeedback(ctx, user, correction("t1"))

	assert.Equal(t, 1, receipt.RulesUpdated)
	assert.InDelta(t, 0.9, h.db.MustGetRule(wrong.ID).Accuracy, 1e-9)
	assert.InDelta(t, 1.0, h.db.MustGetRule(unrelated.ID).Accuracy, 1e-9)
	assert.InDelta(t, 1.0, h.db.MustGetRule(other.ID).Accuracy, 1e-9)
}

func TestRecordFeedback_UpdatesAmountBoundedRule(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	ctx := context.Background()
	bounded := testutil.Rule(user, "aws", "shopping", 0.95)
	lo := decimal.NewFromInt(100)
	bounded.AmountMin = &lo
	bounded = h.db.MustInsertRule(bounded)

	input := correction("t1")
	input.Amount = decimal.RequireFromString("-450.00")
	receipt := h.orch.RecordFeedback(ctx, user, input)

	assert.Equal(t, 1, receipt.RulesUpdated)
	assert.InDelta(t, 0.9, h.db.MustGetRule(bounded.ID).Accuracy, 1e-9)

	// Without the amount the bounded rule cannot be identified.
	receipt = h.orch.RecordFeedback(ctx, user, correction("t2"))
	assert.Equal(t, 0, receipt.RulesUpdated)
}

func TestRecordFeedback_AcceptedKeepsAccuracy(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	ctx := context.Background()
	rule := h.db.MustInsertRule(testutil.Rule(user, "aws", "software", 0.95))

	receipt := h.orch.RecordFeedback(ctx, user, model.FeedbackInput{
		TransactionRef:   "t1",
		Description:      "AWS EMEA",
		OriginalCategory: "software",
		Accepted:         true,
	})

	require.True(t, receipt.Stored)
	assert.Equal(t, 1, receipt.RulesUpdated)
	assert.InDelta(t, 1.0, h.db.MustGetRule(rule.ID).Accuracy, 1e-9)
}

func TestRecordFeedback_BrokenPersistenceReturnsNormally(t *testing.T) {
	registry, err := llm.NewRegistry(testProviders(), "")
	require.NoError(t, err)
	store := failingStore{}

	orch, err := New(Dependencies{
		Rules:     pattern.NewEngine(store),
		RuleStore: store,
		Registry:  registry,
		Selector:  llm.NewSelector(registry, nil),
		Ledger:    store,
		History:   store,
		Recorder:  store,
		Audit:     store,
		Promoter:  feedback.NewPromoter(store, store, store, feedback.DefaultOptions(), nil),
	}, Options{})
	require.NoError(t, err)

	var receipt FeedbackReceipt
	assert.NotPanics(t, func() {
		receipt = orch.RecordFeedback(context.Background(), user, correction("t1"))
	})
	assert.False(t, receipt.Stored)
	assert.Equal(t, feedback.OutcomeNone, receipt.Promotion.Outcome)
}

func TestRecordFeedback_IgnoresIncompleteInput(t *testing.T) {
	h := newHarness(t, harnessConfig{})

	receipt := h.orch.RecordFeedback(context.Background(), "", correction("t1"))
	assert.False(t, receipt.Stored)

	receipt = h.orch.RecordFeedback(context.Background(), user, model.FeedbackInput{Description: "x"})
	assert.False(t, receipt.Stored)
}
