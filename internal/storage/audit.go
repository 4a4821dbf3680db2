package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Veraticus/the-books-must-balance/internal/service"
)

// LogEvent writes an audit event to the audit_events table.
func (s *SQLiteStorage) LogEvent(ctx context.Context, kind, description string, metadata map[string]any) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(kind, "kind"); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAuditKind, err)
	}

	var encoded sql.NullString
	if len(metadata) > 0 {
		data, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("failed to encode audit metadata: %w", err)
		}
		encoded = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.execWithRetry(ctx,
		`INSERT INTO audit_events (kind, description, metadata, created_at) VALUES (?, ?, ?, ?)`,
		kind, description, encoded, s.now())
	if err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	return nil
}

// RecentAuditEvents returns up to limit events, newest first. An empty kind
// matches every event.
func (s *SQLiteStorage) RecentAuditEvents(ctx context.Context, kind string, limit int) ([]service.AuditEvent, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, description, metadata, created_at
		FROM audit_events
		WHERE ? = '' OR kind = ?
		ORDER BY id DESC
		LIMIT ?`, kind, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []service.AuditEvent
	for rows.Next() {
		var event service.AuditEvent
		var metadata sql.NullString
		if err := rows.Scan(&event.ID, &event.Kind, &event.Description, &metadata, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if metadata.Valid {
			if err := json.Unmarshal([]byte(metadata.String), &event.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode audit metadata: %w", err)
			}
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}

	return events, nil
}
