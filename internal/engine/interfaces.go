package engine

import (
	"context"

	"github.com/Veraticus/the-books-must-balance/internal/explain"
	"github.com/Veraticus/the-books-must-balance/internal/feedback"
	"github.com/Veraticus/the-books-must-balance/internal/model"
)

// RuleMatcher finds a short-circuiting rule for a transaction.
type RuleMatcher interface {
	Match(ctx context.Context, txn model.TransactionInput, scope model.Scope) (*model.CategorizationResult, bool)
	Fired(rules []model.CategorizationRule, txn model.TransactionInput) []model.CategorizationRule
}

// Explainer completes a result's explanation.
type Explainer interface {
	Enhance(result model.CategorizationResult, txn model.TransactionInput, ectx explain.Context) model.CategorizationResult
}

// Promoter turns accumulated feedback into rules.
type Promoter interface {
	MaybePromote(ctx context.Context, scope model.Scope, record model.FeedbackRecord) (feedback.Promotion, error)
}
