package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/model"
)

// AccuracyDecay weights prior accuracy when folding in a new outcome.
const AccuracyDecay = 0.9

const ruleColumns = `id, scope, pattern, is_regex, category, subcategory,
	amount_min, amount_max, confidence, accuracy, usage_count, origin,
	is_active, created_at, updated_at`

// InsertRule stores a new rule. A rule with the same scope, pattern and
// category is never duplicated; ErrDuplicateEntry is returned instead.
func (s *SQLiteStorage) InsertRule(ctx context.Context, rule *model.CategorizationRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}

	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	now := s.now()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	if rule.UpdatedAt.IsZero() {
		rule.UpdatedAt = rule.CreatedAt
	}

	query := `
		INSERT INTO categorization_rules (` + ruleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scope, pattern, category) DO NOTHING
	`

	result, err := s.execWithRetry(ctx, query,
		rule.ID, string(rule.Scope), rule.Pattern, rule.IsRegex, rule.Category, rule.Subcategory,
		nullDecimal(rule.AmountMin), nullDecimal(rule.AmountMax),
		rule.Confidence, rule.Accuracy, rule.UsageCount, string(rule.Origin),
		rule.IsActive, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check inserted rule: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("rule %q -> %q in scope %q: %w", rule.Pattern, rule.Category, rule.Scope, common.ErrDuplicateEntry)
	}

	return nil
}

// FindActiveRules returns every active rule in scope.
func (s *SQLiteStorage) FindActiveRules(ctx context.Context, scope model.Scope) ([]model.CategorizationRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateScope(scope); err != nil {
		return nil, err
	}

	query := `SELECT ` + ruleColumns + `
		FROM categorization_rules
		WHERE scope = ? AND is_active = 1
		ORDER BY confidence DESC, created_at ASC`

	return s.queryRules(ctx, query, string(scope))
}

// ListRules returns the rules in scope, optionally including deactivated ones.
func (s *SQLiteStorage) ListRules(ctx context.Context, scope model.Scope, includeInactive bool) ([]model.CategorizationRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateScope(scope); err != nil {
		return nil, err
	}

	query := `SELECT ` + ruleColumns + `
		FROM categorization_rules
		WHERE scope = ? AND (is_active = 1 OR ?)
		ORDER BY is_active DESC, category ASC, pattern ASC`

	return s.queryRules(ctx, query, string(scope), includeInactive)
}

// FindRule returns the rule with the given scope, pattern and category.
func (s *SQLiteStorage) FindRule(ctx context.Context, scope model.Scope, pattern, category string) (*model.CategorizationRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateScope(scope); err != nil {
		return nil, err
	}
	if err := validateString(pattern, "pattern"); err != nil {
		return nil, err
	}

	query := `SELECT ` + ruleColumns + `
		FROM categorization_rules
		WHERE scope = ? AND pattern = ? AND category = ?`

	rule, err := scanRule(s.db.QueryRowContext(ctx, query, string(scope), pattern, category))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %q -> %q: %w", pattern, category, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// GetRule returns a rule by id.
func (s *SQLiteStorage) GetRule(ctx context.Context, id string) (*model.CategorizationRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	query := `SELECT ` + ruleColumns + ` FROM categorization_rules WHERE id = ?`
	rule, err := scanRule(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// UpdateRuleConfidence replaces a rule's confidence.
func (s *SQLiteStorage) UpdateRuleConfidence(ctx context.Context, id string, confidence float64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if confidence < 0 || confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidRule)
	}

	result, err := s.execWithRetry(ctx,
		`UPDATE categorization_rules SET confidence = ?, updated_at = ? WHERE id = ?`,
		confidence, s.now(), id)
	if err != nil {
		return fmt.Errorf("failed to update rule confidence: %w", err)
	}
	return requireAffected(result, "rule "+id)
}

// IncrementRuleUsage atomically bumps a rule's usage count.
func (s *SQLiteStorage) IncrementRuleUsage(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.execWithRetry(ctx,
		`UPDATE categorization_rules SET usage_count = usage_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to increment rule usage: %w", err)
	}
	return requireAffected(result, "rule "+id)
}

// RecordRuleOutcome folds a prediction outcome into the rule's accuracy
// as an exponentially weighted average.
func (s *SQLiteStorage) RecordRuleOutcome(ctx context.Context, id string, correct bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	outcome := 0.0
	if correct {
		outcome = 1.0
	}

	result, err := s.execWithRetry(ctx,
		`UPDATE categorization_rules
		SET accuracy = MIN(1.0, MAX(0.0, accuracy * ? + ? * ?)), updated_at = ?
		WHERE id = ?`,
		AccuracyDecay, outcome, 1-AccuracyDecay, s.now(), id)
	if err != nil {
		return fmt.Errorf("failed to record rule outcome: %w", err)
	}
	return requireAffected(result, "rule "+id)
}

// SetRuleActive activates or deactivates a rule. Rules are never deleted.
func (s *SQLiteStorage) SetRuleActive(ctx context.Context, scope model.Scope, id string, active bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateScope(scope); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.execWithRetry(ctx,
		`UPDATE categorization_rules SET is_active = ?, updated_at = ? WHERE id = ? AND scope = ?`,
		active, s.now(), id, string(scope))
	if err != nil {
		return fmt.Errorf("failed to update rule state: %w", err)
	}
	return requireAffected(result, "rule "+id)
}

func (s *SQLiteStorage) queryRules(ctx context.Context, query string, args ...any) ([]model.CategorizationRule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.CategorizationRule
	for rows.Next() {
		rule, scanErr := scanRule(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", scanErr)
		}
		rules = append(rules, *rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return rules, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*model.CategorizationRule, error) {
	var rule model.CategorizationRule
	var scope, origin string
	var amountMin, amountMax decimal.NullDecimal

	err := row.Scan(
		&rule.ID, &scope, &rule.Pattern, &rule.IsRegex, &rule.Category, &rule.Subcategory,
		&amountMin, &amountMax, &rule.Confidence, &rule.Accuracy, &rule.UsageCount, &origin,
		&rule.IsActive, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.Scope = model.Scope(scope)
	rule.Origin = model.RuleOrigin(origin)
	if amountMin.Valid {
		rule.AmountMin = &amountMin.Decimal
	}
	if amountMax.Valid {
		rule.AmountMax = &amountMax.Decimal
	}

	return &rule, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func requireAffected(result sql.Result, what string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", what, common.ErrNotFound)
	}
	return nil
}
