// Package testutil provides shared test helpers for packages that need a
// real, migrated database.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/storage"
)

// TestDB represents a test database with associated test utilities.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// SetupTestDB creates a new in-memory test database.
// It automatically handles migrations and cleanup.
//
// Example:
//
//	db := testutil.SetupTestDB(t)
//	db.MustInsertRule(testutil.Rule("user-1", "aws", "software", 0.95))
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{
		Storage: store,
		t:       t,
	}
}

// Rule builds an active user rule with full accuracy.
func Rule(scope model.Scope, pattern, category string, confidence float64) *model.CategorizationRule {
	return &model.CategorizationRule{
		Scope:      scope,
		Pattern:    pattern,
		Category:   category,
		Confidence: confidence,
		Accuracy:   1,
		Origin:     model.OriginUser,
		IsActive:   true,
	}
}

// MustInsertRule stores rule or fails the test.
func (db *TestDB) MustInsertRule(rule *model.CategorizationRule) *model.CategorizationRule {
	db.t.Helper()
	if err := db.Storage.InsertRule(context.Background(), rule); err != nil {
		db.t.Fatalf("failed to insert rule %q: %v", rule.Pattern, err)
	}
	return rule
}

// MustGetRule loads a rule by id or fails the test.
func (db *TestDB) MustGetRule(id string) *model.CategorizationRule {
	db.t.Helper()
	rule, err := db.Storage.GetRule(context.Background(), id)
	if err != nil {
		db.t.Fatalf("failed to load rule %s: %v", id, err)
	}
	return rule
}
