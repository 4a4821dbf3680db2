package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/model"
)

// BatchItem is the outcome for one transaction of a batch.
type BatchItem struct {
	Err         error
	Transaction model.TransactionInput
	Result      model.CategorizationResult
	Index       int
}

// BatchSummary contains statistics about a batch run.
type BatchSummary struct {
	Total          int
	RuleMatches    int
	AIResults      int
	Fallbacks      int
	Invalid        int
	Skipped        int
	ProcessingTime time.Duration
}

// String renders a one-line summary.
func (s BatchSummary) String() string {
	return fmt.Sprintf("%d transactions: %d by rule, %d by AI, %d fallback, %d invalid, %d skipped in %s",
		s.Total, s.RuleMatches, s.AIResults, s.Fallbacks, s.Invalid, s.Skipped, s.ProcessingTime.Round(time.Millisecond))
}

// ProgressFunc is called after each transaction completes.
type ProgressFunc func(done, total int)

// CategorizeBatch categorizes txns with bounded concurrency. Items keep
// their input order. Invalid transactions are reported per item; the
// returned error is non-nil only when ctx ends before the batch completes.
func (o *Orchestrator) CategorizeBatch(ctx context.Context, userID string, txns []model.TransactionInput, progress ProgressFunc) ([]BatchItem, BatchSummary, error) {
	started := time.Now()
	items := make([]BatchItem, len(txns))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.BatchConcurrency)

	var mu sync.Mutex
	done := 0

	for i, txn := range txns {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				items[i].Err = err
				return err
			}

			result, err := o.Categorize(gctx, userID, txn)
			items[i] = BatchItem{Index: i, Transaction: txn, Result: result, Err: err}

			mu.Lock()
			done++
			if progress != nil {
				progress(done, len(txns))
			}
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()

	summary := BatchSummary{Total: len(txns), ProcessingTime: time.Since(started)}
	for i := range items {
		items[i].Index = i
		items[i].Transaction = txns[i]
		var validationErr *common.ValidationError
		switch {
		case errors.As(items[i].Err, &validationErr):
			summary.Invalid++
			continue
		case items[i].Err != nil:
			summary.Skipped++
			continue
		}
		switch items[i].Result.Metadata.Source {
		case model.SourceRule:
			summary.RuleMatches++
		case model.SourceAI:
			summary.AIResults++
		case model.SourceFallback:
			summary.Fallbacks++
		}
	}

	o.logger.Info("batch categorization complete",
		"total", summary.Total,
		"rule_matches", summary.RuleMatches,
		"ai_results", summary.AIResults,
		"fallbacks", summary.Fallbacks,
		"invalid", summary.Invalid,
		"skipped", summary.Skipped)

	return items, summary, err
}
