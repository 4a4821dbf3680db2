package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Veraticus/the-books-must-balance/internal/cli"
	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/engine"
	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/ofx"
)

func categorizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categorize",
		Short: "Categorize a transaction or an OFX/QFX statement",
		Long: `Categorize a single transaction from flags, or every transaction in one
or more OFX/QFX files.

Examples:
  # One transaction
  books categorize -d "AMAZON WEB SERVICES" --amount -450.00

  # A statement, confirming each answer
  books categorize --ofx ~/Downloads/chase_*.qfx --review`,
		RunE: runCategorize,
	}

	cmd.Flags().StringP("description", "d", "", "transaction description")
	cmd.Flags().StringP("merchant", "m", "", "merchant name")
	cmd.Flags().String("amount", "0", "signed amount; negative for outflows")
	cmd.Flags().String("date", "", "transaction date (YYYY-MM-DD)")
	cmd.Flags().String("ref", "", "transaction reference")
	cmd.Flags().StringSlice("ofx", nil, "OFX/QFX files or globs to categorize")
	cmd.Flags().Bool("review", false, "confirm or correct each answer and record feedback")
	cmd.Flags().Bool("json", false, "print results as JSON")

	return cmd
}

func runCategorize(cmd *cobra.Command, _ []string) error {
	user, err := userScope()
	if err != nil {
		return err
	}

	files, _ := cmd.Flags().GetStringSlice("ofx")
	asJSON, _ := cmd.Flags().GetBool("json")
	review, _ := cmd.Flags().GetBool("review")

	var txns []model.TransactionInput
	if len(files) > 0 {
		txns, err = readStatements(cmd.Context(), files)
	} else {
		var txn model.TransactionInput
		txn, err = transactionFromFlags(cmd)
		txns = []model.TransactionInput{txn}
	}
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			slog.Error("failed to close", "error", closeErr)
		}
	}()

	out := cmd.OutOrStdout()

	if len(files) == 0 {
		result, err := a.orchestrator.Categorize(cmd.Context(), user, txns[0])
		if err != nil {
			return common.NewUserError("cannot categorize transaction", err)
		}
		items := []engine.BatchItem{{Transaction: txns[0], Result: result}}
		return presentResults(cmd, a, user, items, asJSON, review)
	}

	interrupts := cli.NewInterruptHandler(cmd.ErrOrStderr())
	ctx := interrupts.HandleInterrupts(cmd.Context(), true)

	var progress engine.ProgressFunc
	var bar *cli.BatchProgress
	if !asJSON {
		bar = cli.NewBatchProgress(cmd.ErrOrStderr(), len(txns))
		progress = bar.Func()
	}

	items, summary, batchErr := a.orchestrator.CategorizeBatch(ctx, user, txns, progress)
	if bar != nil {
		bar.Finish()
	}
	if batchErr != nil && !errors.Is(batchErr, context.Canceled) {
		return fmt.Errorf("batch categorization failed: %w", batchErr)
	}

	if err := presentResults(cmd, a, user, items, asJSON, review && !interrupts.WasInterrupted()); err != nil {
		return err
	}
	if !asJSON {
		if _, err := fmt.Fprintln(out, cli.RenderSummary(summary)); err != nil {
			return err
		}
	}
	return nil
}

func presentResults(cmd *cobra.Command, a *app, user string, items []engine.BatchItem, asJSON, review bool) error {
	out := cmd.OutOrStdout()

	if asJSON {
		return writeJSON(out, items)
	}

	var prompter *cli.Prompter
	if review {
		prompter = cli.NewPrompter(cmd.InOrStdin(), out)
	}

	for _, item := range items {
		if item.Err != nil {
			if _, err := fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("%s: %v", item.Transaction.Description, item.Err))); err != nil {
				return err
			}
			continue
		}

		if prompter == nil {
			if _, err := fmt.Fprintln(out, cli.RenderResult(item.Transaction, item.Result)); err != nil {
				return err
			}
			continue
		}

		input, ok, err := prompter.Review(cmd.Context(), item.Transaction, item.Result)
		if err != nil {
			if errors.Is(err, cli.ErrInputCancelled) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if !ok {
			continue
		}
		receipt := a.orchestrator.RecordFeedback(cmd.Context(), user, input)
		if _, err := fmt.Fprintln(out, describeReceipt(receipt)); err != nil {
			return err
		}
	}
	return nil
}

type jsonItem struct {
	Transaction model.TransactionInput      `json:"transaction"`
	Result      *model.CategorizationResult `json:"result,omitempty"`
	Error       string                      `json:"error,omitempty"`
}

func writeJSON(w io.Writer, items []engine.BatchItem) error {
	out := make([]jsonItem, len(items))
	for i, item := range items {
		out[i] = jsonItem{Transaction: item.Transaction}
		if item.Err != nil {
			out[i].Error = item.Err.Error()
			continue
		}
		result := item.Result
		out[i].Result = &result
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func transactionFromFlags(cmd *cobra.Command) (model.TransactionInput, error) {
	description, _ := cmd.Flags().GetString("description")
	merchant, _ := cmd.Flags().GetString("merchant")
	rawAmount, _ := cmd.Flags().GetString("amount")
	rawDate, _ := cmd.Flags().GetString("date")
	ref, _ := cmd.Flags().GetString("ref")

	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return model.TransactionInput{}, common.NewUserError(fmt.Sprintf("invalid amount %q", rawAmount), err)
	}

	var occurredAt time.Time
	if rawDate != "" {
		occurredAt, err = time.Parse(time.DateOnly, rawDate)
		if err != nil {
			return model.TransactionInput{}, common.NewUserError(fmt.Sprintf("invalid date %q", rawDate), err)
		}
	}

	txn := model.TransactionInput{
		OccurredAt:  occurredAt,
		Description: description,
		Reference:   ref,
		Merchant:    merchant,
		Amount:      amount,
	}
	if err := txn.Validate(); err != nil {
		return model.TransactionInput{}, common.NewUserError("a --description is required", err)
	}
	return txn, nil
}

// readStatements expands globs and parses every file, dropping
// transactions that appear in more than one statement.
func readStatements(ctx context.Context, patterns []string) ([]model.TransactionInput, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			if _, err := os.Stat(pattern); err != nil {
				slog.Warn("No files found matching pattern", "pattern", pattern)
				continue
			}
			matches = []string{pattern}
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return nil, common.NewUserError("no OFX files found", common.ErrNotFound)
	}

	parser := ofx.NewParser(slog.Default())
	seen := make(map[string]bool)
	var txns []model.TransactionInput

	for _, file := range files {
		parsed, err := parseStatementFile(ctx, parser, file)
		if err != nil {
			return nil, err
		}
		for _, txn := range parsed {
			hash := txn.GenerateHash()
			if seen[hash] {
				continue
			}
			seen[hash] = true
			txns = append(txns, txn)
		}
	}
	return txns, nil
}

func parseStatementFile(ctx context.Context, parser *ofx.Parser, path string) ([]model.TransactionInput, error) {
	f, err := os.Open(path) //nolint:gosec // user-supplied statement path
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	txns, err := parser.ParseFile(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return txns, nil
}
