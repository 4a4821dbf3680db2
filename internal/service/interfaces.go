// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/the-books-must-balance/internal/model"
)

// Audit event kinds.
const (
	EventCategorization  = "categorization"
	EventProviderFailure = "provider_failure"
	EventRulePromotion   = "rule_promotion"
	EventFeedback        = "feedback"
)

// RuleStore persists categorization rules per scope.
type RuleStore interface {
	FindActiveRules(ctx context.Context, scope model.Scope) ([]model.CategorizationRule, error)
	FindRule(ctx context.Context, scope model.Scope, pattern, category string) (*model.CategorizationRule, error)
	InsertRule(ctx context.Context, rule *model.CategorizationRule) error
	UpdateRuleConfidence(ctx context.Context, id string, confidence float64) error
	IncrementRuleUsage(ctx context.Context, id string) error
	RecordRuleOutcome(ctx context.Context, id string, correct bool) error
	SetRuleActive(ctx context.Context, scope model.Scope, id string, active bool) error
	ListRules(ctx context.Context, scope model.Scope, includeInactive bool) ([]model.CategorizationRule, error)
}

// FeedbackLedger is the append-only store of user verdicts.
type FeedbackLedger interface {
	AppendFeedback(ctx context.Context, record *model.FeedbackRecord) error
	FeedbackByPattern(ctx context.Context, scope model.Scope, normalizedPattern string) ([]model.FeedbackRecord, error)
	FeedbackByCategory(ctx context.Context, scope model.Scope, category string) ([]model.FeedbackRecord, error)
}

// HistoryLookup returns a scope's recent categorizations, newest first.
type HistoryLookup interface {
	RecentCategorizations(ctx context.Context, scope model.Scope, limit int) ([]model.HistoricalCategorization, error)
}

// HistoryRecorder stores categorizations for later lookup.
type HistoryRecorder interface {
	RecordCategorization(ctx context.Context, scope model.Scope, entry model.HistoricalCategorization) error
}

// AuditLogger receives structured audit events. Implementations must be
// safe for concurrent use.
type AuditLogger interface {
	LogEvent(ctx context.Context, kind, description string, metadata map[string]any) error
}

// AuditEvent is a stored audit record.
type AuditEvent struct {
	CreatedAt   time.Time      `json:"created_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Kind        string         `json:"kind"`
	Description string         `json:"description"`
	ID          int64          `json:"id"`
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	RuleStore
	FeedbackLedger
	HistoryLookup
	HistoryRecorder
	AuditLogger

	RecentAuditEvents(ctx context.Context, kind string, limit int) ([]AuditEvent, error)

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}
