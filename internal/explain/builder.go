// Package explain turns a bare categorization into an auditable one by
// attaching evidence, alternatives and timing.
package explain

import (
	"fmt"
	"slices"
	"time"

	"github.com/Veraticus/the-books-must-balance/internal/classification"
	"github.com/Veraticus/the-books-must-balance/internal/model"
)

// Data source labels recorded on explanations.
const (
	SourceDescription    = "transaction_description"
	SourceAmount         = "transaction_amount"
	SourceHistory        = "categorization_history"
	SourceSystemPatterns = "system_patterns"
)

// Context carries the per-request inputs the builder needs beyond the
// result and transaction.
type Context struct {
	StartedAt time.Time
	Now       time.Time
	History   []model.HistoricalCategorization
}

// Builder enriches categorization results. It holds no mutable state and
// is safe for concurrent use.
type Builder struct {
	detector *classification.PatternDetector
	now      func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock overrides the clock used when Context.Now is zero.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		b.now = now
	}
}

// NewBuilder creates a Builder. A nil detector uses the default patterns.
func NewBuilder(detector *classification.PatternDetector, opts ...Option) *Builder {
	if detector == nil {
		detector = classification.MustDefaultDetector()
	}
	b := &Builder{detector: detector, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Enhance returns a copy of result with a complete explanation. The
// result's category and confidence are never changed.
func (b *Builder) Enhance(result model.CategorizationResult, txn model.TransactionInput, ectx Context) model.CategorizationResult {
	now := ectx.Now
	if now.IsZero() {
		now = b.now()
	}

	out := result
	out.Rules = slices.Clone(result.Rules)

	exp := result.Explanation
	exp.Confidence = result.Confidence
	exp.Timestamp = now
	if exp.Model == "" {
		exp.Model = result.Metadata.Model
	}
	if exp.Provider == "" {
		exp.Provider = result.Metadata.Provider
	}
	if exp.Reasoning == "" {
		exp.Reasoning = fmt.Sprintf("Categorized as %s", result.Category)
	}

	ev := newEvidence(result.Explanation.Evidence, result.Explanation.DataSources)
	b.collectEvidence(ev, result, txn, ectx.History)
	exp.Evidence = ev.items
	exp.DataSources = ev.sources
	exp.Alternatives = b.alternatives(result, txn)

	out.Explanation = exp

	if out.Metadata.SchemaVersion == "" {
		out.Metadata.SchemaVersion = model.SchemaVersion
	}
	if !ectx.StartedAt.IsZero() && now.After(ectx.StartedAt) {
		out.Metadata.ProcessingDuration = now.Sub(ectx.StartedAt)
	}

	return out
}
