package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Veraticus/the-books-must-balance/internal/model"
)

const feedbackColumns = `id, transaction_ref, scope, description, normalized_pattern,
	original_category, corrected_category, reasoning, confidence, accepted, created_at`

// AppendFeedback adds a record to the ledger. Existing records are never modified.
func (s *SQLiteStorage) AppendFeedback(ctx context.Context, record *model.FeedbackRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateFeedback(record); err != nil {
		return err
	}

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}

	_, err := s.execWithRetry(ctx, `
		INSERT INTO feedback (`+feedbackColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.TransactionRef, string(record.Scope), record.Description,
		record.NormalizedPattern, record.OriginalCategory, record.CorrectedCategory,
		record.Reasoning, record.Confidence, record.Accepted, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append feedback: %w", err)
	}
	return nil
}

// FeedbackByPattern returns the scope's records for an exact normalized pattern.
func (s *SQLiteStorage) FeedbackByPattern(ctx context.Context, scope model.Scope, normalizedPattern string) ([]model.FeedbackRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateScope(scope); err != nil {
		return nil, err
	}

	return s.queryFeedback(ctx, `SELECT `+feedbackColumns+`
		FROM feedback
		WHERE scope = ? AND normalized_pattern = ?
		ORDER BY created_at ASC`, string(scope), normalizedPattern)
}

// FeedbackByCategory returns the scope's records whose corrected category matches.
func (s *SQLiteStorage) FeedbackByCategory(ctx context.Context, scope model.Scope, category string) ([]model.FeedbackRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateScope(scope); err != nil {
		return nil, err
	}
	if err := validateString(category, "category"); err != nil {
		return nil, err
	}

	return s.queryFeedback(ctx, `SELECT `+feedbackColumns+`
		FROM feedback
		WHERE scope = ? AND corrected_category = ?
		ORDER BY created_at ASC`, string(scope), category)
}

func (s *SQLiteStorage) queryFeedback(ctx context.Context, query string, args ...any) ([]model.FeedbackRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.FeedbackRecord
	for rows.Next() {
		var record model.FeedbackRecord
		var scope string
		if err := rows.Scan(
			&record.ID, &record.TransactionRef, &scope, &record.Description,
			&record.NormalizedPattern, &record.OriginalCategory, &record.CorrectedCategory,
			&record.Reasoning, &record.Confidence, &record.Accepted, &record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		record.Scope = model.Scope(scope)
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feedback: %w", err)
	}

	return records, nil
}
