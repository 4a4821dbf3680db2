package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-books-must-balance/internal/model"
)

func TestRecentCategorizations(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, category := range []string{"software", "travel", "meals"} {
		require.NoError(t, store.RecordCategorization(ctx, "user-1", model.HistoricalCategorization{
			Description: "txn",
			Category:    category,
			Confidence:  0.8,
			Source:      model.SourceAI,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, store.RecordCategorization(ctx, "user-2", model.HistoricalCategorization{
		Description: "txn", Category: "office", Confidence: 0.7,
	}))

	history, err := store.RecentCategorizations(ctx, "user-1", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "meals", history[0].Category)
	assert.Equal(t, "travel", history[1].Category)
	assert.Equal(t, model.SourceAI, history[0].Source)

	empty, err := store.RecentCategorizations(ctx, "user-1", 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRecordCategorization_Validation(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	err := store.RecordCategorization(ctx, "user-1", model.HistoricalCategorization{Description: "x"})
	assert.ErrorIs(t, err, ErrInvalidHistory)

	err = store.RecordCategorization(ctx, "", model.HistoricalCategorization{Category: "x"})
	assert.ErrorIs(t, err, ErrEmptyString)
}
