package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/feedback"
	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/pattern"
	"github.com/Veraticus/the-books-must-balance/internal/service"
)

// FeedbackReceipt summarizes what RecordFeedback managed to do.
type FeedbackReceipt struct {
	RecordID     string
	Promotion    feedback.Promotion
	RulesUpdated int
	Stored       bool
}

// RecordFeedback absorbs a user's verdict on a prior categorization. It
// never fails: persistence problems are logged and the remaining steps
// still run.
func (o *Orchestrator) RecordFeedback(ctx context.Context, userID string, input model.FeedbackInput) FeedbackReceipt {
	receipt := FeedbackReceipt{Promotion: feedback.Promotion{Outcome: feedback.OutcomeNone}}

	corrected := strings.TrimSpace(input.CorrectedCategory)
	if corrected == "" && input.Accepted {
		corrected = strings.TrimSpace(input.OriginalCategory)
	}
	if strings.TrimSpace(userID) == "" || corrected == "" {
		o.logger.Warn("ignoring incomplete feedback",
			"scope", userID,
			"transaction_ref", input.TransactionRef)
		return receipt
	}
	scope := model.Scope(userID)

	txn := model.TransactionInput{Description: input.Description, Merchant: input.Merchant, Amount: input.Amount}
	record := model.FeedbackRecord{
		CreatedAt:         o.now(),
		TransactionRef:    input.TransactionRef,
		Scope:             scope,
		Description:       input.Description,
		NormalizedPattern: pattern.Normalize(txn.MerchantOrDescription()),
		OriginalCategory:  input.OriginalCategory,
		CorrectedCategory: corrected,
		Reasoning:         input.Reasoning,
		Confidence:        clamp01(input.Confidence),
		Accepted:          input.Accepted,
	}

	if o.deps.Ledger != nil {
		if err := o.deps.Ledger.AppendFeedback(ctx, &record); err != nil {
			common.LogError(o.logger, common.NewPersistenceError("append feedback", err), "failed to store feedback", common.Fields{
				"scope":           scope,
				"transaction_ref": input.TransactionRef,
			})
		} else {
			receipt.Stored = true
			receipt.RecordID = record.ID
		}
	}

	receipt.RulesUpdated = o.updateRuleAccuracy(ctx, scope, txn, record)

	if o.deps.Recorder != nil {
		err := o.deps.Recorder.RecordCategorization(ctx, scope, model.HistoricalCategorization{
			CreatedAt:   o.now(),
			Description: input.Description,
			Merchant:    input.Merchant,
			Category:    corrected,
			Source:      model.SourceUser,
			Confidence:  1,
		})
		if err != nil {
			common.LogError(o.logger, common.NewPersistenceError("record history", err), "failed to record corrected label", common.Fields{
				"scope": scope,
			})
		}
	}

	if o.deps.Promoter != nil && receipt.Stored {
		promotion, err := o.deps.Promoter.MaybePromote(ctx, scope, record)
		if err != nil {
			common.LogError(o.logger, err, "rule promotion failed", common.Fields{"scope": scope})
		} else {
			receipt.Promotion = promotion
		}
	}

	o.audit(context.WithoutCancel(ctx), service.EventFeedback,
		fmt.Sprintf("feedback %s -> %s", input.OriginalCategory, corrected),
		map[string]any{
			"scope":              string(scope),
			"transaction_ref":    input.TransactionRef,
			"original_category":  input.OriginalCategory,
			"corrected_category": corrected,
			"accepted":           input.Accepted,
			"stored":             receipt.Stored,
			"rules_updated":      receipt.RulesUpdated,
			"promotion":          string(receipt.Promotion.Outcome),
		})

	return receipt
}

// updateRuleAccuracy folds the verdict into the accuracy of every active
// rule that fires for the transaction and predicted the original category.
func (o *Orchestrator) updateRuleAccuracy(ctx context.Context, scope model.Scope, txn model.TransactionInput, record model.FeedbackRecord) int {
	if o.deps.RuleStore == nil || record.OriginalCategory == "" {
		return 0
	}

	rules, err := o.deps.RuleStore.FindActiveRules(ctx, scope)
	if err != nil {
		common.LogError(o.logger, common.NewPersistenceError("load rules", err), "failed to load rules for feedback", common.Fields{
			"scope": scope,
		})
		return 0
	}

	correct := record.CorrectedCategory == record.OriginalCategory
	updated := 0
	for _, rule := range o.deps.Rules.Fired(rules, txn) {
		if rule.Category != record.OriginalCategory {
			continue
		}
		if err := o.deps.RuleStore.RecordRuleOutcome(ctx, rule.ID, correct); err != nil {
			common.LogError(o.logger, common.NewPersistenceError("record rule outcome", err), "failed to update rule accuracy", common.Fields{
				"rule_id": rule.ID,
			})
			continue
		}
		updated++
	}
	return updated
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
