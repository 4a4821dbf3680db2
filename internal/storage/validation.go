// Package storage provides the SQLite persistence layer for rules, feedback,
// categorization history and audit events.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Veraticus/the-books-must-balance/internal/model"
)

// Validation errors.
var (
	ErrNilContext       = errors.New("context cannot be nil")
	ErrEmptyString      = errors.New("string parameter cannot be empty")
	ErrNilParameter     = errors.New("parameter cannot be nil")
	ErrInvalidRule      = errors.New("invalid rule")
	ErrInvalidFeedback  = errors.New("invalid feedback")
	ErrInvalidHistory   = errors.New("invalid history entry")
	ErrInvalidAuditKind = errors.New("invalid audit event kind")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateScope ensures a scope was provided.
func validateScope(scope model.Scope) error {
	return validateString(string(scope), "scope")
}

// validateRule validates a rule before it is written.
func validateRule(rule *model.CategorizationRule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRule, err)
	}
	if rule.IsRegex {
		if err := validateRegex(rule.Pattern); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRule, err)
		}
	}
	return nil
}

// validateFeedback validates a feedback record.
func validateFeedback(record *model.FeedbackRecord) error {
	if record == nil {
		return fmt.Errorf("%w: feedback", ErrNilParameter)
	}
	if strings.TrimSpace(string(record.Scope)) == "" {
		return fmt.Errorf("%w: missing scope", ErrInvalidFeedback)
	}
	if strings.TrimSpace(record.CorrectedCategory) == "" {
		return fmt.Errorf("%w: missing corrected category", ErrInvalidFeedback)
	}
	if record.Confidence < 0 || record.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidFeedback)
	}
	return nil
}

// validateHistory validates a history entry.
func validateHistory(entry model.HistoricalCategorization) error {
	if strings.TrimSpace(entry.Category) == "" {
		return fmt.Errorf("%w: missing category", ErrInvalidHistory)
	}
	if entry.Confidence < 0 || entry.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidHistory)
	}
	return nil
}

// validateRegex ensures a regex rule pattern compiles.
func validateRegex(pattern string) error {
	if _, err := regexp.Compile(pattern); err != nil {
		return fmt.Errorf("invalid regex pattern %q: %w", pattern, err)
	}
	return nil
}
