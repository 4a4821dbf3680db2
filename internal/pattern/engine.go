package pattern

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/service"
)

// DefaultShortCircuitFloor is the confidence a winning rule must exceed
// before it is trusted without asking a provider.
const DefaultShortCircuitFloor = 0.9

// RuleSource is the subset of the rule store the engine needs.
type RuleSource interface {
	FindActiveRules(ctx context.Context, scope model.Scope) ([]model.CategorizationRule, error)
	IncrementRuleUsage(ctx context.Context, id string) error
}

var _ RuleSource = (service.RuleStore)(nil)

var _ Matcher = (*Engine)(nil)

// Engine evaluates a scope's active rules and picks a winner.
type Engine struct {
	rules   RuleSource
	logger  *slog.Logger
	matcher *ruleMatcher
	now     func() time.Time
	floor   float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithFloor overrides the short-circuit floor.
func WithFloor(floor float64) Option {
	return func(e *Engine) {
		if floor > 0 {
			e.floor = floor
		}
	}
}

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = common.OrDefault(logger)
	}
}

// WithClock sets the clock used to stamp explanations.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates a rule engine backed by rules.
func NewEngine(rules RuleSource, opts ...Option) *Engine {
	e := &Engine{
		rules:   rules,
		logger:  slog.Default(),
		matcher: newRuleMatcher(),
		now:     time.Now,
		floor:   DefaultShortCircuitFloor,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Floor returns the configured short-circuit floor.
func (e *Engine) Floor() float64 {
	return e.floor
}

// Match evaluates every active rule in scope. A winner is returned only when
// its confidence is strictly above the floor. Rule store failures are logged
// and reported as no match.
func (e *Engine) Match(ctx context.Context, txn model.TransactionInput, scope model.Scope) (*model.CategorizationResult, bool) {
	rules, err := e.rules.FindActiveRules(ctx, scope)
	if err != nil {
		common.LogError(e.logger, common.NewPersistenceError("load rules", err), "rule lookup failed", common.Fields{
			"scope": scope,
		})
		return nil, false
	}

	winner, ok := e.Winner(rules, txn)
	if !ok {
		return nil, false
	}

	if winner.Confidence <= e.floor {
		e.logger.Debug("rule below short-circuit floor",
			"rule_id", winner.ID,
			"confidence", winner.Confidence,
			"floor", e.floor)
		return nil, false
	}

	if err := e.rules.IncrementRuleUsage(ctx, winner.ID); err != nil {
		common.LogError(e.logger, common.NewPersistenceError("increment rule usage", err), "failed to record rule usage", common.Fields{
			"rule_id": winner.ID,
		})
	} else {
		winner.UsageCount++
	}

	e.logger.Info("rule matched",
		"rule_id", winner.ID,
		"pattern", winner.Pattern,
		"category", winner.Category,
		"confidence", winner.Confidence)

	result := resultFromRule(winner, txn, e.now())
	return &result, true
}

// Winner returns the highest scoring rule that fires for txn. Ties on
// confidence times accuracy go to the more used rule, then the most
// recently updated one.
func (e *Engine) Winner(rules []model.CategorizationRule, txn model.TransactionInput) (model.CategorizationRule, bool) {
	var best model.CategorizationRule
	found := false

	for _, rule := range rules {
		if !e.matcher.matches(rule, txn) {
			continue
		}
		if !found || outranks(rule, best) {
			best = rule
			found = true
		}
	}

	return best, found
}

// Fired returns every rule in rules that fires for txn, in input order.
func (e *Engine) Fired(rules []model.CategorizationRule, txn model.TransactionInput) []model.CategorizationRule {
	var out []model.CategorizationRule
	for _, rule := range rules {
		if e.matcher.matches(rule, txn) {
			out = append(out, rule)
		}
	}
	return out
}

func outranks(a, b model.CategorizationRule) bool {
	if sa, sb := a.Score(), b.Score(); sa != sb {
		return sa > sb
	}
	if a.UsageCount != b.UsageCount {
		return a.UsageCount > b.UsageCount
	}
	return a.UpdatedAt.After(b.UpdatedAt)
}

func resultFromRule(rule model.CategorizationRule, txn model.TransactionInput, now time.Time) model.CategorizationResult {
	kind := "substring"
	if rule.IsRegex {
		kind = "regex"
	}

	evidence := []string{
		fmt.Sprintf("%s rule %q matched %q", kind, rule.Pattern, txn.MerchantOrDescription()),
		fmt.Sprintf("rule created by %s has been applied %d times with %.0f%% accuracy",
			rule.Origin, rule.UsageCount, rule.Accuracy*100),
	}
	if rule.AmountMin != nil || rule.AmountMax != nil {
		evidence = append(evidence, fmt.Sprintf("amount %s is within the rule's range", txn.AbsAmount().StringFixed(2)))
	}

	return model.CategorizationResult{
		Category:    rule.Category,
		Subcategory: rule.Subcategory,
		Confidence:  rule.Confidence,
		Explanation: model.Explanation{
			Timestamp:   now,
			Reasoning:   fmt.Sprintf("Matched %s rule %q for category %s", rule.Origin, rule.Pattern, rule.Category),
			Evidence:    evidence,
			Confidence:  rule.Confidence,
			DataSources: []string{"rule_store"},
		},
		Rules: []model.CategorizationRule{rule},
		Metadata: model.ResultMetadata{
			SchemaVersion: model.SchemaVersion,
			Source:        model.SourceRule,
		},
	}
}
