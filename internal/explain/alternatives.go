package explain

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/the-books-must-balance/internal/model"
)

const (
	patternAltFactor   = 0.8
	heuristicAltFactor = 0.5
)

var largePurchase = decimal.NewFromInt(500)

// alternatives keeps upstream alternatives strictly below the winner and
// synthesizes some when none survive. At least one is always returned.
func (b *Builder) alternatives(result model.CategorizationResult, txn model.TransactionInput) model.Alternatives {
	ceiling := result.Confidence
	if alts := result.Explanation.Alternatives.Below(ceiling, result.Category); len(alts) > 0 {
		return alts
	}

	var out model.Alternatives
	seen := map[string]bool{result.Category: true}
	push := func(category, reasoning string, confidence float64) {
		if seen[category] {
			return
		}
		seen[category] = true
		out = append(out, model.Alternative{
			Category:   category,
			Reasoning:  reasoning,
			Confidence: below(confidence, ceiling),
		})
	}

	for _, m := range b.detector.Candidates(txn) {
		push(m.Category, fmt.Sprintf("Matches %s pattern", m.PatternName),
			min(m.Confidence, ceiling*patternAltFactor))
	}

	category, reasoning := amountHeuristic(txn.Amount)
	push(category, reasoning, ceiling*heuristicAltFactor)

	if len(out) == 0 {
		fallback := "other"
		if result.Category == fallback {
			fallback = "uncategorized"
		}
		push(fallback, "No stronger candidate found", ceiling*heuristicAltFactor)
	}

	out.Sort()
	return out
}

// amountHeuristic suggests a category from the magnitude alone. The sign
// is ignored: unsigned sources report charges as positive, and income is
// left to the pattern detector.
func amountHeuristic(amount decimal.Decimal) (string, string) {
	abs := amount.Abs()
	switch {
	case abs.GreaterThanOrEqual(largePurchase):
		return "equipment", "Large amounts are often equipment purchases"
	case abs.GreaterThanOrEqual(moderateAmount):
		return "professional_services", "Amounts this size are often business expenses"
	case abs.LessThan(smallAmount.Mul(decimal.NewFromInt(3))):
		return "meals", "Small amounts are often meals"
	default:
		return "shopping", "Mid-sized amounts are often general purchases"
	}
}

// below returns confidence clamped strictly under ceiling where possible.
func below(confidence, ceiling float64) float64 {
	if confidence < ceiling {
		return confidence
	}
	if ceiling <= 0 {
		return 0
	}
	return ceiling * heuristicAltFactor
}
