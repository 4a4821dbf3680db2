package storage

import (
	"context"
	"fmt"

	"github.com/Veraticus/the-books-must-balance/internal/model"
)

// RecordCategorization appends a categorization to the scope's history.
func (s *SQLiteStorage) RecordCategorization(ctx context.Context, scope model.Scope, entry model.HistoricalCategorization) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateScope(scope); err != nil {
		return err
	}
	if err := validateHistory(entry); err != nil {
		return err
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}

	_, err := s.execWithRetry(ctx, `
		INSERT INTO categorization_history (
			scope, description, merchant, category, subcategory, confidence, source, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(scope), entry.Description, entry.Merchant, entry.Category, entry.Subcategory,
		entry.Confidence, string(entry.Source), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record categorization: %w", err)
	}
	return nil
}

// RecentCategorizations returns up to limit history entries, newest first.
func (s *SQLiteStorage) RecentCategorizations(ctx context.Context, scope model.Scope, limit int) ([]model.HistoricalCategorization, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateScope(scope); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT description, merchant, category, subcategory, confidence, source, created_at
		FROM categorization_history
		WHERE scope = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, string(scope), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var history []model.HistoricalCategorization
	for rows.Next() {
		var entry model.HistoricalCategorization
		var source string
		if err := rows.Scan(
			&entry.Description, &entry.Merchant, &entry.Category, &entry.Subcategory,
			&entry.Confidence, &source, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		entry.Source = model.ResultSource(source)
		history = append(history, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}

	return history, nil
}
