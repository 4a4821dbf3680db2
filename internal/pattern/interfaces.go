// Package pattern evaluates a scope's deterministic categorization rules
// against transactions.
package pattern

import (
	"context"

	"github.com/Veraticus/the-books-must-balance/internal/model"
)

// Matcher finds the winning rule for a transaction.
type Matcher interface {
	// Match returns a rule-derived result and true when a rule fires above
	// the short-circuit floor.
	Match(ctx context.Context, txn model.TransactionInput, scope model.Scope) (*model.CategorizationResult, bool)
}
