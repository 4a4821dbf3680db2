package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/llm"
	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/testutil"
)

func TestCategorizeBatch(t *testing.T) {
	openai := llm.NewMockAdapter(llm.ProviderOpenAI, llm.Response{Category: "travel", Confidence: 0.7})
	h := newHarness(t, harnessConfig{adapters: []*llm.MockAdapter{openai}, opts: Options{BatchConcurrency: 3}})
	h.db.MustInsertRule(testutil.Rule(user, "aws", "software", 0.95))

	txns := []model.TransactionInput{
		awsTxn(),
		{Description: "DELTA AIR 0062", Amount: decimal.RequireFromString("-420")},
		{Description: ""},
		{Description: "UNITED 8812", Amount: decimal.RequireFromString("-310")},
	}

	var calls atomic.Int32
	var lastDone int
	items, summary, err := h.orch.CategorizeBatch(context.Background(), user, txns, func(done, total int) {
		calls.Add(1)
		lastDone = done
		assert.Equal(t, len(txns), total)
	})
	require.NoError(t, err)

	require.Len(t, items, len(txns))
	for i, item := range items {
		assert.Equal(t, i, item.Index)
		assert.Equal(t, txns[i].Description, item.Transaction.Description)
	}
	assert.Equal(t, "software", items[0].Result.Category)
	assert.Equal(t, "travel", items[1].Result.Category)
	var validationErr *common.ValidationError
	assert.True(t, errors.As(items[2].Err, &validationErr))

	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 1, summary.RuleMatches)
	assert.Equal(t, 2, summary.AIResults)
	assert.Equal(t, 1, summary.Invalid)
	assert.Zero(t, summary.Skipped)
	assert.EqualValues(t, len(txns), calls.Load())
	assert.Equal(t, len(txns), lastDone)
	assert.Contains(t, summary.String(), "4 transactions")
}

func TestCategorizeBatch_CanceledContext(t *testing.T) {
	h := newHarness(t, harnessConfig{})

	txns := make([]model.TransactionInput, 5)
	for i := range txns {
		txns[i] = model.TransactionInput{Description: fmt.Sprintf("TXN %d", i)}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items, summary, err := h.orch.CategorizeBatch(ctx, user, txns, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, items, 5)
	assert.Equal(t, 5, summary.Skipped)
}
