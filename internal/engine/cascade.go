package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/llm"
	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/service"
)

// defaultAttemptTimeout bounds an attempt against a provider that is not in
// the registry, which only happens for the default provider id.
const defaultAttemptTimeout = 30 * time.Second

// cascade asks providers in turn until one answers or the attempt budget
// runs out. Attempts are sequential.
func (o *Orchestrator) cascade(ctx context.Context, scope model.Scope, txn model.TransactionInput, history []model.HistoricalCategorization) model.CategorizationResult {
	capability := o.opts.Capability
	budget := o.budget(capability)

	prompt := llm.Prompt{
		Transaction: txn,
		Capability:  capability,
		History:     history,
	}

	failed := make(map[string]bool)
	used := make(map[string]int)
	attempts := 0
	var lastErr error

	for attempts < budget {
		if err := ctx.Err(); err != nil {
			o.logger.Warn("caller canceled; no further provider attempts", "attempts", attempts)
			lastErr = err
			break
		}

		id, ok := o.nextProvider(capability, attempts, failed, used)
		if !ok {
			break
		}
		attempts++
		used[id]++

		resp, err := o.attempt(ctx, id, prompt)
		if err == nil {
			return o.resultFromResponse(ctx, scope, resp, attempts)
		}

		lastErr = err
		failed[id] = true
		o.providerFailed(ctx, scope, id, attempts, err)
	}

	o.logger.Warn("provider cascade exhausted",
		"scope", scope,
		"attempts", attempts,
		"budget", budget)

	return fallbackResult(attempts, lastErr)
}

// budget returns the global attempt budget for capability. It is at least
// one so the default provider is tried when nothing declares capability.
func (o *Orchestrator) budget(capability llm.Capability) int {
	if o.opts.MaxAttempts > 0 {
		return o.opts.MaxAttempts
	}
	total := 0
	for _, p := range o.deps.Registry.Capable(capability) {
		total += p.MaxRetries
	}
	return max(total, 1)
}

// providerCap is how many attempts a single provider may receive.
func (o *Orchestrator) providerCap(id string) int {
	if p, ok := o.deps.Registry.Get(id); ok {
		return max(p.MaxRetries, 1)
	}
	return 1
}

// nextProvider picks the provider for the next attempt. Providers that
// already failed are skipped while untried ones remain; a provider that
// has used its own retry allowance is never picked again. When nothing
// declares capability the default provider is used, if it can be called.
func (o *Orchestrator) nextProvider(capability llm.Capability, attempts int, failed map[string]bool, used map[string]int) (string, bool) {
	exhausted := make(map[string]bool)
	for id, n := range used {
		if n >= o.providerCap(id) {
			exhausted[id] = true
		}
	}

	if len(o.deps.Registry.Capable(capability)) == 0 {
		id := o.deps.Registry.DefaultID()
		if _, callable := o.deps.Adapters[id]; callable && !exhausted[id] {
			return id, true
		}
		return "", false
	}

	if attempts == 0 {
		id := o.deps.Selector.Select(capability)
		if !exhausted[id] {
			return id, true
		}
	}

	exclude := make(map[string]bool, len(failed)+len(exhausted))
	for id := range failed {
		exclude[id] = true
	}
	for id := range exhausted {
		exclude[id] = true
	}
	if id, ok := o.deps.Selector.SelectExcluding(capability, exclude); ok {
		return id, true
	}
	if id, ok := o.deps.Selector.SelectExcluding(capability, exhausted); ok {
		return id, true
	}
	return "", false
}

type attemptOutcome struct {
	err  error
	resp llm.Response
}

// attempt invokes one provider in its own goroutine, detached from caller
// cancellation and bounded by the provider timeout. A late answer is
// discarded.
func (o *Orchestrator) attempt(ctx context.Context, id string, prompt llm.Prompt) (llm.Response, error) {
	adapter, ok := o.deps.Adapters[id]
	if !ok {
		return llm.Response{}, fmt.Errorf("%w: no adapter configured for %s", llm.ErrUnknownProvider, id)
	}

	timeout := defaultAttemptTimeout
	if p, ok := o.deps.Registry.Get(id); ok && p.Timeout > 0 {
		timeout = p.Timeout
	}

	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	done := make(chan attemptOutcome, 1)
	go func() {
		resp, err := adapter.Invoke(actx, prompt)
		done <- attemptOutcome{resp: resp, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return llm.Response{}, out.err
		}
		return out.resp, validateResponse(id, out.resp)
	case <-actx.Done():
		return llm.Response{}, &llm.ProviderTimeoutError{Provider: id, Timeout: timeout, Err: actx.Err()}
	}
}

// validateResponse guards against adapters that return an unusable answer
// without an error.
func validateResponse(id string, resp llm.Response) error {
	if strings.TrimSpace(resp.Category) == "" {
		return &llm.ProviderResponseError{Provider: id, Err: fmt.Errorf("%w: empty category", llm.ErrMalformedResponse)}
	}
	if resp.Confidence < 0 || resp.Confidence > 1 {
		return &llm.ProviderResponseError{Provider: id, Err: fmt.Errorf("%w: confidence %.2f outside [0,1]", llm.ErrMalformedResponse, resp.Confidence)}
	}
	return nil
}

func (o *Orchestrator) providerFailed(ctx context.Context, scope model.Scope, id string, attempt int, err error) {
	kind := "error"
	var respErr *llm.ProviderResponseError
	switch {
	case llm.IsTimeout(err):
		kind = "timeout"
	case errors.As(err, &respErr):
		kind = "response"
	}

	o.logger.Warn("provider attempt failed",
		"provider", id,
		"attempt", attempt,
		"kind", kind,
		"error", err)

	o.audit(context.WithoutCancel(ctx), service.EventProviderFailure,
		fmt.Sprintf("provider %s failed on attempt %d", id, attempt),
		map[string]any{
			"scope":    string(scope),
			"provider": id,
			"attempt":  attempt,
			"kind":     kind,
			"error":    err.Error(),
		})
}

// resultFromResponse converts a provider answer. Its confidence is taken
// as is and never raised.
func (o *Orchestrator) resultFromResponse(ctx context.Context, scope model.Scope, resp llm.Response, attempts int) model.CategorizationResult {
	if o.opts.PersistSuggestedRules {
		o.persistSuggestedRules(ctx, scope, resp)
	}

	return model.CategorizationResult{
		Category:    resp.Category,
		Subcategory: resp.Subcategory,
		Confidence:  resp.Confidence,
		Explanation: model.Explanation{
			Reasoning:    resp.Reasoning,
			Evidence:     resp.Evidence,
			Alternatives: resp.Alternatives,
			Model:        resp.Model,
			Provider:     resp.Provider,
			Confidence:   resp.Confidence,
			DataSources:  []string{"provider:" + resp.Provider},
		},
		Metadata: model.ResultMetadata{
			Model:         resp.Model,
			Provider:      resp.Provider,
			SchemaVersion: model.SchemaVersion,
			Source:        model.SourceAI,
			Attempts:      attempts,
		},
	}
}

// persistSuggestedRules stores a provider's suggested rules with origin ai.
// Failures and duplicates are ignored.
func (o *Orchestrator) persistSuggestedRules(ctx context.Context, scope model.Scope, resp llm.Response) {
	if o.deps.RuleStore == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	for _, s := range resp.Rules {
		rule := &model.CategorizationRule{
			Scope:      scope,
			Pattern:    strings.ToLower(strings.TrimSpace(s.Pattern)),
			Category:   s.Category,
			Confidence: min(s.Confidence, MaxSuggestedRuleConfidence),
			Accuracy:   1,
			Origin:     model.OriginAI,
			IsActive:   true,
		}
		err := o.deps.RuleStore.InsertRule(ctx, rule)
		switch {
		case err == nil:
			o.logger.Debug("stored suggested rule", "rule_id", rule.ID, "pattern", rule.Pattern, "provider", resp.Provider)
		case errors.Is(err, common.ErrDuplicateEntry):
		default:
			common.LogError(o.logger, common.NewPersistenceError("store suggested rule", err), "failed to store suggested rule", common.Fields{
				"pattern": rule.Pattern,
			})
		}
	}
}
