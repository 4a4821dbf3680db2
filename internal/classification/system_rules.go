package classification

import (
	"github.com/Veraticus/the-books-must-balance/internal/model"
)

// SystemRules converts patterns into system-origin regex rules for scope.
// Patterns sharing a category become separate rules.
func SystemRules(scope model.Scope, patterns []Pattern) []model.CategorizationRule {
	rules := make([]model.CategorizationRule, 0, len(patterns))
	for _, p := range patterns {
		rules = append(rules, model.CategorizationRule{
			Scope:      scope,
			Pattern:    caseInsensitive(p.Regex),
			IsRegex:    true,
			Category:   p.Category,
			Confidence: p.Confidence,
			Accuracy:   1,
			Origin:     model.OriginSystem,
			IsActive:   true,
		})
	}
	return rules
}
