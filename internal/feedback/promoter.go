// Package feedback turns repeated user corrections into deterministic rules.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/service"
)

// Options controls when and how rules are promoted.
type Options struct {
	// Threshold is the number of independent records needed to promote.
	Threshold         int
	Similarity        float64
	InitialConfidence float64
	ReinforceStep     float64
	MaxConfidence     float64
}

// DefaultOptions returns the promotion defaults.
func DefaultOptions() Options {
	return Options{
		Threshold:         3,
		Similarity:        0.85,
		InitialConfidence: 0.75,
		ReinforceStep:     0.05,
		MaxConfidence:     0.95,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Threshold <= 0 {
		o.Threshold = d.Threshold
	}
	if o.Similarity <= 0 || o.Similarity > 1 {
		o.Similarity = d.Similarity
	}
	if o.InitialConfidence <= 0 || o.InitialConfidence > 1 {
		o.InitialConfidence = d.InitialConfidence
	}
	if o.ReinforceStep < 0 {
		o.ReinforceStep = d.ReinforceStep
	}
	if o.MaxConfidence <= 0 || o.MaxConfidence > 1 {
		o.MaxConfidence = d.MaxConfidence
	}
	return o
}

// Outcome describes what a promotion attempt did.
type Outcome string

// Promotion outcomes.
const (
	OutcomeNone       Outcome = "none"
	OutcomeCreated    Outcome = "created"
	OutcomeReinforced Outcome = "reinforced"
)

// Promotion reports the result of MaybePromote.
type Promotion struct {
	Rule    *model.CategorizationRule
	Outcome Outcome
	Support int
}

// lockStripes is the number of mutexes promotions are serialized on. Scopes
// sharing a stripe wait on each other; the same scope always shares one.
const lockStripes = 64

// Promoter promotes clusters of similar corrections into user rules.
// Promotions are serialized per scope.
type Promoter struct {
	rules  service.RuleStore
	ledger service.FeedbackLedger
	audit  service.AuditLogger
	logger *slog.Logger
	opts   Options
	locks  [lockStripes]sync.Mutex
}

// NewPromoter creates a Promoter. audit may be nil.
func NewPromoter(rules service.RuleStore, ledger service.FeedbackLedger, audit service.AuditLogger, opts Options, logger *slog.Logger) *Promoter {
	return &Promoter{
		rules:  rules,
		ledger: ledger,
		audit:  audit,
		logger: common.OrDefault(logger),
		opts:   opts.withDefaults(),
	}
}

// Options returns the effective options.
func (p *Promoter) Options() Options {
	return p.opts
}

// scopeLock returns the stripe guarding scope.
func (p *Promoter) scopeLock(scope model.Scope) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(scope))
	return &p.locks[h.Sum32()%lockStripes]
}

// MaybePromote checks whether record, together with earlier feedback for
// the same category, has enough independent support to become a rule.
// An existing identical rule is reinforced instead of duplicated.
func (p *Promoter) MaybePromote(ctx context.Context, scope model.Scope, record model.FeedbackRecord) (Promotion, error) {
	category := record.CorrectedCategory
	if scope == "" || category == "" || record.NormalizedPattern == "" {
		return Promotion{Outcome: OutcomeNone}, nil
	}

	lock := p.scopeLock(scope)
	lock.Lock()
	defer lock.Unlock()

	records, err := p.ledger.FeedbackByCategory(ctx, scope, category)
	if err != nil {
		return Promotion{Outcome: OutcomeNone}, common.NewPersistenceError("load feedback", err)
	}

	cluster := Cluster(record.NormalizedPattern, records, p.opts.Similarity)
	support := Support(cluster)
	if support < p.opts.Threshold {
		return Promotion{Outcome: OutcomeNone, Support: support}, nil
	}

	pattern := canonicalPattern(cluster)

	existing, err := p.rules.FindRule(ctx, scope, pattern, category)
	switch {
	case err == nil:
		return p.reinforce(ctx, existing, support)
	case !errors.Is(err, common.ErrNotFound):
		return Promotion{Outcome: OutcomeNone, Support: support}, common.NewPersistenceError("find rule", err)
	}

	rule := &model.CategorizationRule{
		Scope:      scope,
		Pattern:    pattern,
		Category:   category,
		Confidence: p.opts.InitialConfidence,
		Accuracy:   1,
		Origin:     model.OriginUser,
		IsActive:   true,
	}
	if err := p.rules.InsertRule(ctx, rule); err != nil {
		if errors.Is(err, common.ErrDuplicateEntry) {
			// Another process promoted the same pattern first.
			existing, findErr := p.rules.FindRule(ctx, scope, pattern, category)
			if findErr == nil {
				return p.reinforce(ctx, existing, support)
			}
		}
		return Promotion{Outcome: OutcomeNone, Support: support}, common.NewPersistenceError("insert rule", err)
	}

	p.logger.Info("promoted feedback to rule",
		"scope", scope, "pattern", pattern, "category", category, "rule_id", rule.ID, "support", support)
	p.emit(ctx, rule, OutcomeCreated, support)

	return Promotion{Outcome: OutcomeCreated, Rule: rule, Support: support}, nil
}

func (p *Promoter) reinforce(ctx context.Context, rule *model.CategorizationRule, support int) (Promotion, error) {
	confidence := min(rule.Confidence+p.opts.ReinforceStep, p.opts.MaxConfidence)
	if confidence > rule.Confidence {
		if err := p.rules.UpdateRuleConfidence(ctx, rule.ID, confidence); err != nil {
			return Promotion{Outcome: OutcomeNone, Support: support}, common.NewPersistenceError("reinforce rule", err)
		}
		rule.Confidence = confidence
	}

	p.logger.Debug("reinforced rule from feedback", "rule_id", rule.ID, "confidence", rule.Confidence)
	p.emit(ctx, rule, OutcomeReinforced, support)

	return Promotion{Outcome: OutcomeReinforced, Rule: rule, Support: support}, nil
}

func (p *Promoter) emit(ctx context.Context, rule *model.CategorizationRule, outcome Outcome, support int) {
	if p.audit == nil {
		return
	}
	err := p.audit.LogEvent(ctx, service.EventRulePromotion,
		fmt.Sprintf("%s rule %q -> %s", outcome, rule.Pattern, rule.Category),
		map[string]any{
			"scope":      string(rule.Scope),
			"rule_id":    rule.ID,
			"pattern":    rule.Pattern,
			"category":   rule.Category,
			"confidence": rule.Confidence,
			"outcome":    string(outcome),
			"support":    support,
		})
	if err != nil {
		common.LogError(p.logger, err, "failed to audit rule promotion", common.Fields{"rule_id": rule.ID})
	}
}

// Similarity returns 1 - levenshtein(a, b) / max(len(a), len(b)) over runes.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// Cluster returns the records whose normalized pattern is at least
// threshold-similar to pattern.
func Cluster(pattern string, records []model.FeedbackRecord, threshold float64) []model.FeedbackRecord {
	var out []model.FeedbackRecord
	for _, r := range records {
		if r.NormalizedPattern == "" {
			continue
		}
		if Similarity(pattern, r.NormalizedPattern) >= threshold {
			out = append(out, r)
		}
	}
	return out
}

// Support counts independent records: distinct transaction references,
// with unreferenced records counted individually.
func Support(records []model.FeedbackRecord) int {
	refs := make(map[string]bool)
	count := 0
	for _, r := range records {
		if r.TransactionRef == "" {
			count++
			continue
		}
		if !refs[r.TransactionRef] {
			refs[r.TransactionRef] = true
			count++
		}
	}
	return count
}

// canonicalPattern picks the most common pattern of a cluster, preferring
// the shorter and then lexically smaller one on ties, so every member of
// the cluster promotes the same rule.
func canonicalPattern(cluster []model.FeedbackRecord) string {
	counts := make(map[string]int)
	for _, r := range cluster {
		counts[r.NormalizedPattern]++
	}

	patterns := make([]string, 0, len(counts))
	for p := range counts {
		patterns = append(patterns, p)
	}
	sort.Slice(patterns, func(i, j int) bool {
		a, b := patterns[i], patterns[j]
		if counts[a] != counts[b] {
			return counts[a] > counts[b]
		}
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return a < b
	})

	return patterns[0]
}
