package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 5

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Create categorization rules",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS categorization_rules (
					id TEXT PRIMARY KEY,
					scope TEXT NOT NULL,
					pattern TEXT NOT NULL,
					is_regex INTEGER NOT NULL DEFAULT 0,
					category TEXT NOT NULL,
					subcategory TEXT NOT NULL DEFAULT '',
					amount_min TEXT,
					amount_max TEXT,
					confidence REAL NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
					accuracy REAL NOT NULL DEFAULT 1 CHECK (accuracy >= 0 AND accuracy <= 1),
					usage_count INTEGER NOT NULL DEFAULT 0 CHECK (usage_count >= 0),
					origin TEXT NOT NULL CHECK (origin IN ('ai', 'user', 'system')),
					is_active INTEGER NOT NULL DEFAULT 1,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_rules_scope_active ON categorization_rules(scope, is_active)`,
			})
		},
	},
	{
		Version:     2,
		Description: "Enforce one rule per scope, pattern and category",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_rules_scope_pattern_category
					ON categorization_rules(scope, pattern, category)`,
			})
		},
	},
	{
		Version:     3,
		Description: "Create append-only feedback ledger",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS feedback (
					id TEXT PRIMARY KEY,
					transaction_ref TEXT NOT NULL DEFAULT '',
					scope TEXT NOT NULL,
					description TEXT NOT NULL,
					normalized_pattern TEXT NOT NULL,
					original_category TEXT NOT NULL DEFAULT '',
					corrected_category TEXT NOT NULL,
					reasoning TEXT NOT NULL DEFAULT '',
					confidence REAL NOT NULL DEFAULT 0,
					accepted INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_feedback_scope_pattern ON feedback(scope, normalized_pattern)`,
				`CREATE INDEX IF NOT EXISTS idx_feedback_scope_category ON feedback(scope, corrected_category)`,
				`CREATE TRIGGER IF NOT EXISTS feedback_no_update BEFORE UPDATE ON feedback
				BEGIN
					SELECT RAISE(ABORT, 'feedback ledger is append-only');
				END`,
				`CREATE TRIGGER IF NOT EXISTS feedback_no_delete BEFORE DELETE ON feedback
				BEGIN
					SELECT RAISE(ABORT, 'feedback ledger is append-only');
				END`,
			})
		},
	},
	{
		Version:     4,
		Description: "Add categorization history",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS categorization_history (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					scope TEXT NOT NULL,
					description TEXT NOT NULL,
					merchant TEXT NOT NULL DEFAULT '',
					category TEXT NOT NULL,
					subcategory TEXT NOT NULL DEFAULT '',
					confidence REAL NOT NULL DEFAULT 0,
					source TEXT NOT NULL DEFAULT '',
					created_at DATETIME NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_history_scope_created ON categorization_history(scope, created_at)`,
			})
		},
	},
	{
		Version:     5,
		Description: "Add audit events",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS audit_events (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					kind TEXT NOT NULL,
					description TEXT NOT NULL,
					metadata TEXT,
					created_at DATETIME NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_audit_events_kind ON audit_events(kind, created_at)`,
			})
		},
	},
}

// SchemaVersion reports the database's current schema version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
