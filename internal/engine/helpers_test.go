package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-books-must-balance/internal/explain"
	"github.com/Veraticus/the-books-must-balance/internal/feedback"
	"github.com/Veraticus/the-books-must-balance/internal/llm"
	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/pattern"
	"github.com/Veraticus/the-books-must-balance/internal/service"
	"github.com/Veraticus/the-books-must-balance/internal/testutil"
)

const user = "user-1"

// fixedRNG always draws the same value, so draw 0 picks the first
// weighted candidate.
type fixedRNG float64

func (f fixedRNG) Float64() float64 { return float64(f) }

func awsTxn() model.TransactionInput {
	return model.TransactionInput{
		Description: "AWS Cloud Services",
		Amount:      decimal.RequireFromString("450.00"),
		OccurredAt:  time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Reference:   "txn-1",
	}
}

func testProviders() []llm.ProviderConfig {
	return []llm.ProviderConfig{
		{ID: llm.ProviderOpenAI, Weight: 50, MaxRetries: 2, Timeout: time.Second,
			Capabilities: []llm.Capability{llm.CapabilityCategorization}},
		{ID: llm.ProviderAnthropic, Weight: 30, MaxRetries: 2, Timeout: time.Second,
			Capabilities: []llm.Capability{llm.CapabilityCategorization}},
		{ID: llm.ProviderGemini, Weight: 20, MaxRetries: 1, Timeout: time.Second,
			Capabilities: []llm.Capability{llm.CapabilityCategorization}},
	}
}

// recordingAudit keeps audit events in memory.
type recordingAudit struct {
	events []service.AuditEvent
	mu     sync.Mutex
}

func (r *recordingAudit) LogEvent(_ context.Context, kind, description string, metadata map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, service.AuditEvent{Kind: kind, Description: description, Metadata: metadata})
	return nil
}

func (r *recordingAudit) byKind(kind string) []service.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []service.AuditEvent
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	db       *testutil.TestDB
	orch     *Orchestrator
	audit    *recordingAudit
	adapters map[string]*llm.MockAdapter
}

type harnessConfig struct {
	providers []llm.ProviderConfig
	adapters  []*llm.MockAdapter
	opts      Options
	rng       llm.RNG
}

func newHarness(t *testing.T, cfg harnessConfig) *harness {
	t.Helper()

	if cfg.providers == nil {
		cfg.providers = testProviders()
	}
	if cfg.rng == nil {
		cfg.rng = fixedRNG(0)
	}

	db := testutil.SetupTestDB(t)
	registry, err := llm.NewRegistry(cfg.providers, "")
	require.NoError(t, err)

	h := &harness{db: db, audit: &recordingAudit{}, adapters: map[string]*llm.MockAdapter{}}
	adapters := map[string]llm.Adapter{}
	for _, a := range cfg.adapters {
		adapters[a.ID()] = a
		h.adapters[a.ID()] = a
	}

	h.orch, err = New(Dependencies{
		Rules:     pattern.NewEngine(db.Storage),
		RuleStore: db.Storage,
		Registry:  registry,
		Selector:  llm.NewSelector(registry, cfg.rng),
		Adapters:  adapters,
		Explainer: explain.NewBuilder(nil),
		Ledger:    db.Storage,
		History:   db.Storage,
		Recorder:  db.Storage,
		Audit:     h.audit,
		Promoter:  feedback.NewPromoter(db.Storage, db.Storage, h.audit, feedback.DefaultOptions(), nil),
	}, cfg.opts)
	require.NoError(t, err)

	return h
}

func softwareResponse(confidence float64) llm.Response {
	return llm.Response{
		Category:   "software",
		Confidence: confidence,
		Reasoning:  "AWS is a cloud computing provider",
		Evidence:   []string{"description names Amazon Web Services"},
		Model:      "test-model",
	}
}

var errBackend = errors.New("backend unavailable")

// failingStore fails every persistence call.
type failingStore struct{}

var errStore = errors.New("database unreachable")

func (failingStore) FindActiveRules(context.Context, model.Scope) ([]model.CategorizationRule, error) {
	return nil, errStore
}

func (failingStore) FindRule(context.Context, model.Scope, string, string) (*model.CategorizationRule, error) {
	return nil, errStore
}
func (failingStore) InsertRule(context.Context, *model.CategorizationRule) error { return errStore }
func (failingStore) UpdateRuleConfidence(context.Context, string, float64) error {
	return errStore
}
func (failingStore) IncrementRuleUsage(context.Context, string) error      { return errStore }
func (failingStore) RecordRuleOutcome(context.Context, string, bool) error { return errStore }
func (failingStore) SetRuleActive(context.Context, model.Scope, string, bool) error {
	return errStore
}

func (failingStore) ListRules(context.Context, model.Scope, bool) ([]model.CategorizationRule, error) {
	return nil, errStore
}
func (failingStore) AppendFeedback(context.Context, *model.FeedbackRecord) error { return errStore }

func (failingStore) FeedbackByPattern(context.Context, model.Scope, string) ([]model.FeedbackRecord, error) {
	return nil, errStore
}

func (failingStore) FeedbackByCategory(context.Context, model.Scope, string) ([]model.FeedbackRecord, error) {
	return nil, errStore
}

func (failingStore) RecentCategorizations(context.Context, model.Scope, int) ([]model.HistoricalCategorization, error) {
	return nil, errStore
}

func (failingStore) RecordCategorization(context.Context, model.Scope, model.HistoricalCategorization) error {
	return errStore
}

func (failingStore) LogEvent(context.Context, string, string, map[string]any) error {
	return errStore
}
