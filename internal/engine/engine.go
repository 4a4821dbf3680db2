// Package engine orchestrates categorization: rules first, then AI
// providers with fallback, then explanation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/explain"
	"github.com/Veraticus/the-books-must-balance/internal/llm"
	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/service"
)

// Fallback result used when every provider attempt fails.
const (
	FallbackCategory   = "other"
	FallbackConfidence = 0.5
	FallbackReasoning  = "fallback categorization due to provider failure"
)

// MaxSuggestedRuleConfidence caps the confidence of rules persisted from
// provider suggestions, keeping them below the short-circuit floor.
const MaxSuggestedRuleConfidence = 0.85

// Options configures the orchestrator.
type Options struct {
	Capability llm.Capability
	// MaxAttempts is the global attempt budget. Zero means the sum of
	// MaxRetries over the providers supporting Capability.
	MaxAttempts           int
	HistoryLimit          int
	BatchConcurrency      int
	PersistSuggestedRules bool
}

// DefaultOptions returns the default configuration.
func DefaultOptions() Options {
	return Options{
		Capability:       llm.CapabilityCategorization,
		HistoryLimit:     llm.MaxHistoryExamples,
		BatchConcurrency: 4,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Capability == "" {
		o.Capability = d.Capability
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = d.HistoryLimit
	}
	if o.BatchConcurrency <= 0 {
		o.BatchConcurrency = d.BatchConcurrency
	}
	if o.MaxAttempts < 0 {
		o.MaxAttempts = 0
	}
	return o
}

// Dependencies are the orchestrator's collaborators. Registry, Selector,
// Rules and Explainer are required; the rest may be nil.
type Dependencies struct {
	Rules     RuleMatcher
	RuleStore service.RuleStore
	Registry  *llm.Registry
	Selector  *llm.Selector
	Adapters  map[string]llm.Adapter
	Explainer Explainer
	Ledger    service.FeedbackLedger
	History   service.HistoryLookup
	Recorder  service.HistoryRecorder
	Audit     service.AuditLogger
	Promoter  Promoter
	Logger    *slog.Logger
	Clock     func() time.Time
}

// Orchestrator categorizes transactions and absorbs feedback. It is safe
// for concurrent use.
type Orchestrator struct {
	deps   Dependencies
	logger *slog.Logger
	now    func() time.Time
	opts   Options
}

// New creates an orchestrator.
func New(deps Dependencies, opts Options) (*Orchestrator, error) {
	switch {
	case deps.Rules == nil:
		return nil, fmt.Errorf("%w: rule matcher is required", common.ErrMissingConfig)
	case deps.Registry == nil:
		return nil, fmt.Errorf("%w: provider registry is required", common.ErrMissingConfig)
	case deps.Selector == nil:
		return nil, fmt.Errorf("%w: provider selector is required", common.ErrMissingConfig)
	}
	if deps.Explainer == nil {
		deps.Explainer = explain.NewBuilder(nil)
	}
	if deps.Adapters == nil {
		deps.Adapters = map[string]llm.Adapter{}
	}

	now := deps.Clock
	if now == nil {
		now = time.Now
	}

	return &Orchestrator{
		deps:   deps,
		logger: common.OrDefault(deps.Logger),
		now:    now,
		opts:   opts.withDefaults(),
	}, nil
}

// Categorize returns a categorization for txn in userID's scope. Only a
// *common.ValidationError is ever returned; every other failure degrades
// to a lower-confidence result.
func (o *Orchestrator) Categorize(ctx context.Context, userID string, txn model.TransactionInput) (model.CategorizationResult, error) {
	started := o.now()

	if strings.TrimSpace(userID) == "" {
		return model.CategorizationResult{}, common.NewValidationError("user_id", common.ErrMissingScope)
	}
	if err := txn.Validate(); err != nil {
		return model.CategorizationResult{}, err
	}
	scope := model.Scope(userID)

	history := o.recentHistory(ctx, scope)

	var result model.CategorizationResult
	if matched, ok := o.deps.Rules.Match(ctx, txn, scope); ok {
		result = *matched
	} else {
		result = o.cascade(ctx, scope, txn, history)
	}

	result = o.deps.Explainer.Enhance(result, txn, explain.Context{
		History:   history,
		StartedAt: started,
		Now:       o.now(),
	})

	o.record(ctx, scope, txn, result)

	return result, nil
}

func (o *Orchestrator) recentHistory(ctx context.Context, scope model.Scope) []model.HistoricalCategorization {
	if o.deps.History == nil {
		return nil
	}
	history, err := o.deps.History.RecentCategorizations(ctx, scope, o.opts.HistoryLimit)
	if err != nil {
		common.LogError(o.logger, common.NewPersistenceError("load history", err), "history lookup failed", common.Fields{
			"scope": scope,
		})
		return nil
	}
	return history
}

// record writes history and the categorization audit event. Both are
// best effort and survive caller cancellation.
func (o *Orchestrator) record(ctx context.Context, scope model.Scope, txn model.TransactionInput, result model.CategorizationResult) {
	ctx = context.WithoutCancel(ctx)

	if o.deps.Recorder != nil {
		err := o.deps.Recorder.RecordCategorization(ctx, scope, model.HistoricalCategorization{
			CreatedAt:   o.now(),
			Description: txn.Description,
			Merchant:    txn.Merchant,
			Category:    result.Category,
			Subcategory: result.Subcategory,
			Source:      result.Metadata.Source,
			Confidence:  result.Confidence,
		})
		if err != nil {
			common.LogError(o.logger, common.NewPersistenceError("record history", err), "failed to record categorization", common.Fields{
				"scope": scope,
			})
		}
	}

	o.audit(ctx, service.EventCategorization,
		fmt.Sprintf("categorized %q as %s", txn.Description, result.Category),
		map[string]any{
			"scope":          string(scope),
			"reference":      txn.Reference,
			"category":       result.Category,
			"confidence":     result.Confidence,
			"source":         string(result.Metadata.Source),
			"provider":       result.Metadata.Provider,
			"model":          result.Metadata.Model,
			"attempts":       result.Metadata.Attempts,
			"duration_ms":    result.Metadata.ProcessingDuration.Milliseconds(),
			"schema_version": result.Metadata.SchemaVersion,
		})
}

func (o *Orchestrator) audit(ctx context.Context, kind, description string, metadata map[string]any) {
	if o.deps.Audit == nil {
		return
	}
	if err := o.deps.Audit.LogEvent(ctx, kind, description, metadata); err != nil {
		common.LogError(o.logger, err, "failed to write audit event", common.Fields{"kind": kind})
	}
}

// fallbackResult is the answer when no provider succeeded.
func fallbackResult(attempts int, lastErr error) model.CategorizationResult {
	evidence := []string{fmt.Sprintf("No provider returned a usable answer after %d attempt(s)", attempts)}
	if lastErr != nil {
		evidence = append(evidence, fmt.Sprintf("Last provider error: %v", lastErr))
	}
	if attempts == 0 && errors.Is(lastErr, context.Canceled) {
		evidence = append(evidence, "Request was canceled before a provider could be tried")
	}

	return model.CategorizationResult{
		Category:   FallbackCategory,
		Confidence: FallbackConfidence,
		Explanation: model.Explanation{
			Reasoning:  FallbackReasoning,
			Evidence:   evidence,
			Confidence: FallbackConfidence,
		},
		Metadata: model.ResultMetadata{
			SchemaVersion: model.SchemaVersion,
			Source:        model.SourceFallback,
			Attempts:      attempts,
		},
	}
}
