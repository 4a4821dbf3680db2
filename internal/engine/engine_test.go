package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/llm"
	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/pattern"
	"github.com/Veraticus/the-books-must-balance/internal/service"
	"github.com/Veraticus/the-books-must-balance/internal/testutil"
)

func assertExplained(t *testing.T, result model.CategorizationResult) {
	t.Helper()
	assert.NotEmpty(t, result.Explanation.Evidence, "evidence must never be empty")
	assert.False(t, result.Explanation.Timestamp.IsZero(), "explanation must be timestamped")
	assert.NotEmpty(t, result.Explanation.Alternatives)
	assert.Equal(t, model.SchemaVersion, result.Metadata.SchemaVersion)
}

func TestCategorize_RuleShortCircuit(t *testing.T) {
	openai := llm.NewMockAdapter(llm.ProviderOpenAI, softwareResponse(0.8))
	h := newHarness(t, harnessConfig{adapters: []*llm.MockAdapter{openai}})
	rule := h.db.MustInsertRule(testutil.Rule(user, "AWS", "software", 0.95))

	result, err := h.orch.Categorize(context.Background(), user, awsTxn())
	require.NoError(t, err)

	assert.Equal(t, "software", result.Category)
	assert.InDelta(t, 0.95, result.Confidence, 1e-9)
	require.NotEmpty(t, result.Rules)
	assert.Equal(t, rule.ID, result.Rules[0].ID)
	assert.Equal(t, model.SourceRule, result.Metadata.Source)
	assert.Zero(t, result.Metadata.Attempts)
	assert.Zero(t, openai.CallCount(), "no provider may be invoked")
	assertExplained(t, result)
}

func TestCategorize_RuleShortCircuitIsDeterministic(t *testing.T) {
	openai := llm.NewMockAdapter(llm.ProviderOpenAI, softwareResponse(0.8))
	h := newHarness(t, harnessConfig{adapters: []*llm.MockAdapter{openai}})
	rule := h.db.MustInsertRule(testutil.Rule(user, "aws", "software", 0.95))
	h.db.MustInsertRule(testutil.Rule(user, "cloud", "hosting", 0.92))

	for range 20 {
		result, err := h.orch.Categorize(context.Background(), user, awsTxn())
		require.NoError(t, err)
		assert.Equal(t, "software", result.Category)
		assert.Equal(t, rule.ID, result.Rules[0].ID)
	}

	assert.Zero(t, openai.CallCount())
	assert.Equal(t, 20, h.db.MustGetRule(rule.ID).UsageCount)
}

func TestCategorize_RuleAtFloorAsksProvider(t *testing.T) {
	openai := llm.NewMockAdapter(llm.ProviderOpenAI, softwareResponse(0.8))
	h := newHarness(t, harnessConfig{adapters: []*llm.MockAdapter{openai}})
	h.db.MustInsertRule(testutil.Rule(user, "aws", "software", pattern.DefaultShortCircuitFloor))

	result, err := h.orch.Categorize(context.Background(), user, awsTxn())
	require.NoError(t, err)

	assert.Equal(t, model.SourceAI, result.Metadata.Source)
	assert.Equal(t, 1, openai.CallCount())
	assert.Empty(t, result.Rules)
}

func TestCategorize_ProviderTimeoutFallsBackToNextProvider(t *testing.T) {
	providers := testProviders()
	providers[0].Timeout = 30 * time.Millisecond

	openai := llm.NewMockAdapter(llm.ProviderOpenAI, softwareResponse(0.99))
	openai.Delay = 2 * time.Second
	anthropic := llm.NewMockAdapter(llm.ProviderAnthropic, softwareResponse(0.8))

	h := newHarness(t, harnessConfig{providers: providers, adapters: []*llm.MockAdapter{openai, anthropic}})

	start := time.Now()
	result, err := h.orch.Categorize(context.Background(), user, awsTxn())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, "software", result.Category)
	assert.InDelta(t, 0.8, result.Confidence, 1e-9, "AI confidence is never upgraded")
	assert.Equal(t, llm.ProviderAnthropic, result.Metadata.Provider)
	assert.Equal(t, model.SourceAI, result.Metadata.Source)
	assert.Equal(t, 2, result.Metadata.Attempts)
	assertExplained(t, result)

	failures := h.audit.byKind(service.EventProviderFailure)
	require.Len(t, failures, 1)
	assert.Equal(t, llm.ProviderOpenAI, failures[0].Metadata["provider"])
	assert.Equal(t, "timeout", failures[0].Metadata["kind"])
}

func TestCategorize_LateAnswerIsDiscarded(t *testing.T) {
	providers := testProviders()
	providers[0].Timeout = 20 * time.Millisecond

	openai := llm.NewMockAdapter(llm.ProviderOpenAI, llm.Response{})
	openai.InvokeFunc = func(_ context.Context, _ llm.Prompt) (llm.Response, error) {
		// Ignores its context and answers late.
		time.Sleep(200 * time.Millisecond)
		return llm.Response{Category: "travel", Confidence: 0.99, Provider: llm.ProviderOpenAI}, nil
	}
	anthropic := llm.NewMockAdapter(llm.ProviderAnthropic, softwareResponse(0.8))

	h := newHarness(t, harnessConfig{providers: providers, adapters: []*llm.MockAdapter{openai, anthropic}})

	result, err := h.orch.Categorize(context.Background(), user, awsTxn())
	require.NoError(t, err)

	assert.Equal(t, "software", result.Category)
	assert.Equal(t, llm.ProviderAnthropic, result.Metadata.Provider)
}

func TestCategorize_ProviderFailureFallsBack(t *testing.T) {
	openai := llm.NewFailingMockAdapter(llm.ProviderOpenAI, &llm.ProviderResponseError{
		Provider: llm.ProviderOpenAI, StatusCode: 503, Err: llm.ErrUnexpectedStatus,
	})
	anthropic := llm.NewMockAdapter(llm.ProviderAnthropic, softwareResponse(0.8))

	h := newHarness(t, harnessConfig{adapters: []*llm.MockAdapter{openai, anthropic}})

	result, err := h.orch.Categorize(context.Background(), user, awsTxn())
	require.NoError(t, err)

	assert.Equal(t, llm.ProviderAnthropic, result.Metadata.Provider)
	assert.Equal(t, 1, openai.CallCount(), "failed providers are skipped while others remain")

	failures := h.audit.byKind(service.EventProviderFailure)
	require.Len(t, failures, 1)
	assert.Equal(t, "response", failures[0].Metadata["kind"])
}

func TestCategorize_Exhaustion(t *testing.T) {
	openai := llm.NewFailingMockAdapter(llm.ProviderOpenAI, errBackend)
	anthropic := llm.NewFailingMockAdapter(llm.ProviderAnthropic, errBackend)
	gemini := llm.NewFailingMockAdapter(llm.ProviderGemini, errBackend)

	h := newHarness(t, harnessConfig{adapters: []*llm.MockAdapter{openai, anthropic, gemini}})

	result, err := h.orch.Categorize(context.Background(), user, awsTxn())
	require.NoError(t, err)

	assert.Equal(t, FallbackCategory, result.Category)
	assert.InDelta(t, 0.5, result.Confidence, 1e-9)
	assert.Equal(t, FallbackReasoning, result.Explanation.Reasoning)
	assert.Equal(t, model.SourceFallback, result.Metadata.Source)
	assert.Equal(t, 5, result.Metadata.Attempts, "budget is the sum of MaxRetries")
	assert.Equal(t, 2, openai.CallCount())
	assert.Equal(t, 2, anthropic.CallCount())
	assert.Equal(t, 1, gemini.CallCount())
	assert.Len(t, h.audit.byKind(service.EventProviderFailure), 5)
	assertExplained(t, result)
}

func TestCategorize_MaxAttemptsBudget(t *testing.T) {
	tests := []struct {
		name         string
		maxAttempts  int
		wantAttempts int
	}{
		{name: "smaller than caps", maxAttempts: 2, wantAttempts: 2},
		{name: "larger than caps", maxAttempts: 10, wantAttempts: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			openai := llm.NewFailingMockAdapter(llm.ProviderOpenAI, errBackend)
			anthropic := llm.NewFailingMockAdapter(llm.ProviderAnthropic, errBackend)
			gemini := llm.NewFailingMockAdapter(llm.ProviderGemini, errBackend)

			h := newHarness(t, harnessConfig{
				adapters: []*llm.MockAdapter{openai, anthropic, gemini},
				opts:     Options{MaxAttempts: tt.maxAttempts},
			})

			result, err := h.orch.Categorize(context.Background(), user, awsTxn())
			require.NoError(t, err)
			assert.Equal(t, tt.wantAttempts, result.Metadata.Attempts)
			assert.Equal(t, FallbackCategory, result.Category)
		})
	}
}

func TestCategorize_NoCapableProviderUsesDefault(t *testing.T) {
	providers := testProviders()
	for i := range providers {
		providers[i].Capabilities = []llm.Capability{llm.CapabilityInsightGeneration}
	}
	openai := llm.NewMockAdapter(llm.ProviderOpenAI, softwareResponse(0.7))

	h := newHarness(t, harnessConfig{providers: providers, adapters: []*llm.MockAdapter{openai}})

	result, err := h.orch.Categorize(context.Background(), user, awsTxn())
	require.NoError(t, err)
	assert.Equal(t, llm.ProviderOpenAI, result.Metadata.Provider)
	assert.Equal(t, 1, result.Metadata.Attempts)
}

func TestCategorize_NoCallableProviderSkipsCascade(t *testing.T) {
	providers := testProviders()
	for i := range providers {
		providers[i].Capabilities = []llm.Capability{llm.CapabilityInsightGeneration}
	}
	h := newHarness(t, harnessConfig{providers: providers})

	result, err := h.orch.Categorize(context.Background(), user, awsTxn())
	require.NoError(t, err)
	assert.Equal(t, FallbackCategory, result.Category)
	assert.Zero(t, result.Metadata.Attempts)
	assert.Empty(t, h.audit.byKind(service.EventProviderFailure))
}

func TestCategorize_MissingAdapterCountsAsFailure(t *testing.T) {
	anthropic := llm.NewMockAdapter(llm.ProviderAnthropic, softwareResponse(0.8))
	h := newHarness(t, harnessConfig{adapters: []*llm.MockAdapter{anthropic}})

	result, err := h.orch.Categorize(context.Background(), user, awsTxn())
	require.NoError(t, err)
	assert.Equal(t, llm.ProviderAnthropic, result.Metadata.Provider)
}

func TestCategorize_InvalidProviderAnswerIsAFailure(t *testing.T) {
	openai := llm.NewMockAdapter(llm.ProviderOpenAI, llm.Response{Category: "software", Confidence: 1.5})
	anthropic := llm.NewMockAdapter(llm.ProviderAnthropic, softwareResponse(0.8))
	h := newHarness(t, harnessConfig{adapters: []*llm.MockAdapter{openai, anthropic}})

	result, err := h.orch.Categorize(context.Background(), user, awsTxn())
	require.NoError(t, err)
	assert.Equal(t, llm.ProviderAnthropic, result.Metadata.Provider)
	assert.InDelta(t, 0.8, result.Confidence, 1e-9)
}

func TestCategorize_CallerCancellation(t *testing.T) {
	t.Run("before any attempt", func(t *testing.T) {
		openai := llm.NewMockAdapter(llm.ProviderOpenAI, softwareResponse(0.8))
		h := newHarness(t, harnessConfig{adapters: []*llm.MockAdapter{openai}})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result, err := h.orch.Categorize(ctx, user, awsTxn())
		require.NoError(t, err)
		assert.Equal(t, FallbackCategory, result.Category)
		assert.Zero(t, result.Metadata.Attempts)
		assert.Zero(t, openai.CallCount())
		assertExplained(t, result)
	})

	t.Run("during an attempt", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		openai := llm.NewMockAdapter(llm.ProviderOpenAI, llm.Response{})
		openai.InvokeFunc = func(actx context.Context, _ llm.Prompt) (llm.Response, error) {
			cancel()
			time.Sleep(10 * time.Millisecond)
			if err := actx.Err(); err != nil {
				return llm.Response{}, err
			}
			return softwareResponse(0.8), nil
		}
		h := newHarness(t, harnessConfig{adapters: []*llm.MockAdapter{openai}})

		result, err := h.orch.Categorize(ctx, user, awsTxn())
		require.NoError(t, err)
		assert.Equal(t, "software", result.Category, "in-flight attempts complete after the caller leaves")
		assert.Equal(t, model.SourceAI, result.Metadata.Source)
	})
}

func TestCategorize_Validation(t *testing.T) {
	h := newHarness(t, harnessConfig{})

	tests := []struct {
		name   string
		userID string
		txn    model.TransactionInput
	}{
		{name: "blank description", userID: user, txn: model.TransactionInput{Description: "   "}},
		{name: "blank user", userID: "", txn: awsTxn()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.orch.Categorize(context.Background(), tt.userID, tt.txn)
			var validationErr *common.ValidationError
			require.True(t, errors.As(err, &validationErr), "got %v", err)
		})
	}
}

func TestCategorize_BrokenPersistence(t *testing.T) {
	registry, err := llm.NewRegistry(testProviders(), "")
	require.NoError(t, err)
	store := failingStore{}

	orch, err := New(Dependencies{
		Rules:     pattern.NewEngine(store),
		RuleStore: store,
		Registry:  registry,
		Selector:  llm.NewSelector(registry, fixedRNG(0)),
		Adapters: map[string]llm.Adapter{
			llm.ProviderOpenAI: llm.NewMockAdapter(llm.ProviderOpenAI, softwareResponse(0.8)),
		},
		Ledger:   store,
		History:  store,
		Recorder: store,
		Audit:    store,
	}, Options{})
	require.NoError(t, err)

	result, err := orch.Categorize(context.Background(), user, awsTxn())
	require.NoError(t, err)
	assert.Equal(t, "software", result.Category)
	assertExplained(t, result)
}

func TestCategorize_RecordsHistoryAndAudit(t *testing.T) {
	openai := llm.NewMockAdapter(llm.ProviderOpenAI, softwareResponse(0.8))
	h := newHarness(t, harnessConfig{adapters: []*llm.MockAdapter{openai}})
	ctx := context.Background()

	_, err := h.orch.Categorize(ctx, user, awsTxn())
	require.NoError(t, err)

	history, err := h.db.Storage.RecentCategorizations(ctx, user, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "software", history[0].Category)
	assert.Equal(t, model.SourceAI, history[0].Source)

	events := h.audit.byKind(service.EventCategorization)
	require.Len(t, events, 1)
	assert.Equal(t, "software", events[0].Metadata["category"])
	assert.Equal(t, llm.ProviderOpenAI, events[0].Metadata["provider"])

	// The second request sees the first in its prompt history.
	_, err = h.orch.Categorize(ctx, user, awsTxn())
	require.NoError(t, err)
	calls := openai.Calls()
	require.Len(t, calls, 2)
	require.Len(t, calls[1].History, 1)
	assert.Equal(t, "AWS Cloud Services", calls[1].History[0].Description)
}

func TestCategorize_PersistSuggestedRules(t *testing.T) {
	resp := softwareResponse(0.8)
	resp.Rules = []llm.SuggestedRule{{Pattern: "AWS", Category: "software", Confidence: 0.99}}
	openai := llm.NewMockAdapter(llm.ProviderOpenAI, resp)

	h := newHarness(t, harnessConfig{
		adapters: []*llm.MockAdapter{openai},
		opts:     Options{PersistSuggestedRules: true},
	})
	ctx := context.Background()

	for range 2 {
		_, err := h.orch.Categorize(ctx, user, awsTxn())
		require.NoError(t, err)
	}

	rules, err := h.db.Storage.ListRules(ctx, user, true)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "aws", rules[0].Pattern)
	assert.Equal(t, model.OriginAI, rules[0].Origin)
	assert.InDelta(t, MaxSuggestedRuleConfidence, rules[0].Confidence, 1e-9)
	assert.Equal(t, 2, openai.CallCount(), "suggested rules stay below the short-circuit floor")
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Dependencies{}, Options{})
	assert.ErrorIs(t, err, common.ErrMissingConfig)
}
