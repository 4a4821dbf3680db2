package explain

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/pattern"
)

const maxKeywords = 5

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "inc": true, "llc": true,
	"ltd": true, "com": true, "www": true, "pos": true, "purchase": true,
	"debit": true, "card": true, "payment": true,
}

var (
	smallAmount       = decimal.NewFromInt(10)
	moderateAmount    = decimal.NewFromInt(100)
	significantAmount = decimal.NewFromInt(1000)
)

// evidence accumulates distinct statements and data sources in order.
type evidence struct {
	seen    map[string]bool
	items   []string
	sources []string
}

func newEvidence(upstream, sources []string) *evidence {
	e := &evidence{seen: make(map[string]bool)}
	for _, item := range upstream {
		e.add(item)
	}
	for _, src := range sources {
		e.source(src)
	}
	return e
}

func (e *evidence) add(item string) {
	item = strings.TrimSpace(item)
	if item == "" || e.seen[item] {
		return
	}
	e.seen[item] = true
	e.items = append(e.items, item)
}

func (e *evidence) source(src string) {
	if src != "" && !slices.Contains(e.sources, src) {
		e.sources = append(e.sources, src)
	}
}

func (b *Builder) collectEvidence(ev *evidence, result model.CategorizationResult, txn model.TransactionInput, history []model.HistoricalCategorization) {
	if words := keywords(txn.MerchantOrDescription()); len(words) > 0 {
		ev.add(fmt.Sprintf("Key terms in transaction: %s", strings.Join(words, ", ")))
		ev.source(SourceDescription)
	}

	ev.add(amountStatement(txn.Amount))
	ev.source(SourceAmount)

	for _, rule := range result.Rules {
		ev.add(fmt.Sprintf("Matches %s rule pattern %q", rule.Origin, rule.Pattern))
	}
	for _, m := range b.detector.Candidates(txn) {
		if m.Category == result.Category {
			ev.add(fmt.Sprintf("Matches known %s pattern %q", m.Type, m.PatternName))
			ev.source(SourceSystemPatterns)
			break
		}
	}

	if stmt, ok := consistency(result.Category, txn, history); ok {
		ev.add(stmt)
		ev.source(SourceHistory)
	}
}

// keywords returns the distinct significant words of text.
func keywords(text string) []string {
	var out []string
	for _, word := range strings.Fields(pattern.Normalize(text)) {
		if len(word) < 3 || stopWords[word] || slices.Contains(out, word) {
			continue
		}
		out = append(out, word)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}

// amountStatement describes the magnitude of amount. Only a negative
// amount is called an outflow; a positive one may be an unsigned charge.
func amountStatement(amount decimal.Decimal) string {
	if amount.IsZero() {
		return "Zero-value transaction"
	}
	abs := amount.Abs()

	var size string
	switch {
	case abs.LessThan(smallAmount):
		size = "small"
	case abs.LessThan(moderateAmount):
		size = "moderate"
	case abs.LessThan(significantAmount):
		size = "significant"
	default:
		size = "large"
	}

	statement := fmt.Sprintf("Amount %s is %s", abs.StringFixed(2), size)
	if amount.IsNegative() {
		statement = fmt.Sprintf("Amount %s is a %s outflow", abs.StringFixed(2), size)
	}
	if abs.GreaterThanOrEqual(moderateAmount) {
		statement += ", typical of business expenses"
	}
	return statement
}

// consistency reports how often similar past transactions received category.
func consistency(category string, txn model.TransactionInput, history []model.HistoricalCategorization) (string, bool) {
	if len(history) == 0 {
		return "", false
	}

	target := pattern.Normalize(txn.Description)
	merchant := strings.ToLower(strings.TrimSpace(txn.Merchant))

	similar, agreeing := 0, 0
	for _, h := range history {
		same := target != "" && pattern.Normalize(h.Description) == target
		if !same && merchant != "" {
			same = strings.ToLower(strings.TrimSpace(h.Merchant)) == merchant
		}
		if !same {
			continue
		}
		similar++
		if h.Category == category {
			agreeing++
		}
	}

	if agreeing == 0 {
		return "", false
	}
	return fmt.Sprintf("Consistent with %d of %d similar past transactions categorized as %s",
		agreeing, similar, category), true
}
