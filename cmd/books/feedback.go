package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Veraticus/the-books-must-balance/internal/cli"
	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/engine"
	"github.com/Veraticus/the-books-must-balance/internal/feedback"
	"github.com/Veraticus/the-books-must-balance/internal/model"
)

func feedbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Record a verdict on a categorization",
		Long: `Accept or correct a categorization. Corrections are kept in an
append-only ledger; once enough similar transactions have been corrected
to the same category, a rule is created for them.

Examples:
  books feedback -d "AWS EMEA" --original software --category cloud-hosting
  books feedback -d "STARBUCKS #1234" --original dining --accept`,
		RunE: runFeedback,
	}

	cmd.Flags().StringP("description", "d", "", "transaction description")
	cmd.Flags().StringP("merchant", "m", "", "merchant name")
	cmd.Flags().String("ref", "", "transaction reference")
	cmd.Flags().String("amount", "", "signed amount of the transaction")
	cmd.Flags().String("original", "", "category that was predicted")
	cmd.Flags().StringP("category", "c", "", "corrected category")
	cmd.Flags().Bool("accept", false, "the predicted category was right")
	cmd.Flags().String("reason", "", "why the category is right")
	cmd.Flags().Float64("confidence", 0, "confidence of the original prediction")

	return cmd
}

func runFeedback(cmd *cobra.Command, _ []string) error {
	user, err := userScope()
	if err != nil {
		return err
	}

	input := model.FeedbackInput{}
	input.Description, _ = cmd.Flags().GetString("description")
	input.Merchant, _ = cmd.Flags().GetString("merchant")
	input.TransactionRef, _ = cmd.Flags().GetString("ref")
	input.OriginalCategory, _ = cmd.Flags().GetString("original")
	input.CorrectedCategory, _ = cmd.Flags().GetString("category")
	input.Accepted, _ = cmd.Flags().GetBool("accept")
	input.Reasoning, _ = cmd.Flags().GetString("reason")
	input.Confidence, _ = cmd.Flags().GetFloat64("confidence")

	if raw, _ := cmd.Flags().GetString("amount"); raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return common.NewUserError(fmt.Sprintf("invalid amount %q", raw), err)
		}
		input.Amount = amount
	}

	if strings.TrimSpace(input.Description) == "" {
		return common.NewUserError("a --description is required", common.ErrMissingDescription)
	}
	if !input.Accepted && strings.TrimSpace(input.CorrectedCategory) == "" {
		return common.NewUserError("pass --category or --accept", common.ErrInvalidConfig)
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

	receipt := a.orchestrator.RecordFeedback(cmd.Context(), user, input)
	_, err = fmt.Fprintln(cmd.OutOrStdout(), describeReceipt(receipt))
	return err
}

func describeReceipt(receipt engine.FeedbackReceipt) string {
	if !receipt.Stored {
		return cli.FormatWarning("Feedback could not be stored; see the log for details.")
	}

	lines := []string{cli.FormatSuccess("Feedback recorded.")}
	if receipt.RulesUpdated > 0 {
		lines = append(lines, cli.FormatInfo(fmt.Sprintf("Updated accuracy of %d rule(s).", receipt.RulesUpdated)))
	}

	promo := receipt.Promotion
	if promo.Rule != nil {
		switch promo.Outcome {
		case feedback.OutcomeCreated:
			lines = append(lines, cli.FormatSuccess(fmt.Sprintf("New rule: %q → %s (%.2f), from %d corrections.",
				promo.Rule.Pattern, promo.Rule.Category, promo.Rule.Confidence, promo.Support)))
		case feedback.OutcomeReinforced:
			lines = append(lines, cli.FormatInfo(fmt.Sprintf("Reinforced rule %q → %s (%.2f).",
				promo.Rule.Pattern, promo.Rule.Category, promo.Rule.Confidence)))
		}
	}
	return strings.Join(lines, "\n")
}
