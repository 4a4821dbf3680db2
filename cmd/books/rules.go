package main

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Veraticus/the-books-must-balance/internal/classification"
	"github.com/Veraticus/the-books-must-balance/internal/cli"
	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/config"
	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/pattern"
	"github.com/Veraticus/the-books-must-balance/internal/storage"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage categorization rules",
		Long: `List, add, test and retire the deterministic rules that are consulted
before any AI provider. Rules are never deleted; deactivate them instead.`,
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesAddCmd())
	cmd.AddCommand(rulesSetActiveCmd("deactivate", false))
	cmd.AddCommand(rulesSetActiveCmd("reactivate", true))
	cmd.AddCommand(rulesSeedCmd())
	cmd.AddCommand(rulesTestCmd())

	return cmd
}

// withStore runs fn against the migrated database for the current scope.
func withStore(cmd *cobra.Command, fn func(cfg *config.Config, store *storage.SQLiteStorage, scope model.Scope) error) error {
	user, err := userScope()
	if err != nil {
		return err
	}
	cfg, store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("failed to close storage", "error", closeErr)
		}
	}()
	return fn(cfg, store, model.Scope(user))
}

func rulesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, _ := cmd.Flags().GetBool("all")
			return withStore(cmd, func(_ *config.Config, store *storage.SQLiteStorage, scope model.Scope) error {
				rules, err := store.ListRules(cmd.Context(), scope, all)
				if err != nil {
					return fmt.Errorf("failed to list rules: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.RenderRules(rules))
				return err
			})
		},
	}
	cmd.Flags().Bool("all", false, "include inactive rules")
	return cmd
}

func rulesAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a rule",
		Long: `Add a rule mapping a pattern to a category. Plain patterns match as
case-insensitive substrings of the description or merchant; --regex
patterns are regular expressions. Amount bounds compare against the
absolute amount.

Example:
  books rules add --pattern "amazon web services" --category software`,
		RunE: runRulesAdd,
	}

	cmd.Flags().StringP("pattern", "p", "", "pattern to match")
	cmd.Flags().StringP("category", "c", "", "category to assign")
	cmd.Flags().String("subcategory", "", "subcategory to assign")
	cmd.Flags().Bool("regex", false, "treat pattern as a regular expression")
	cmd.Flags().Float64("confidence", 0.95, "rule confidence")
	cmd.Flags().String("min", "", "minimum absolute amount")
	cmd.Flags().String("max", "", "maximum absolute amount")

	return cmd
}

func runRulesAdd(cmd *cobra.Command, _ []string) error {
	rule := model.CategorizationRule{
		Origin:   model.OriginUser,
		Accuracy: 1,
		IsActive: true,
	}
	rule.Pattern, _ = cmd.Flags().GetString("pattern")
	rule.Category, _ = cmd.Flags().GetString("category")
	rule.Subcategory, _ = cmd.Flags().GetString("subcategory")
	rule.IsRegex, _ = cmd.Flags().GetBool("regex")
	rule.Confidence, _ = cmd.Flags().GetFloat64("confidence")

	if !rule.IsRegex {
		rule.Pattern = strings.ToLower(strings.TrimSpace(rule.Pattern))
	} else if _, err := regexp.Compile(rule.Pattern); err != nil {
		return common.NewUserError(fmt.Sprintf("invalid regex %q", rule.Pattern), err)
	}

	var err error
	if rule.AmountMin, err = amountFlag(cmd, "min"); err != nil {
		return err
	}
	if rule.AmountMax, err = amountFlag(cmd, "max"); err != nil {
		return err
	}

	return withStore(cmd, func(_ *config.Config, store *storage.SQLiteStorage, scope model.Scope) error {
		rule.Scope = scope
		if err := rule.Validate(); err != nil {
			return common.NewUserError("invalid rule", err)
		}
		if err := store.InsertRule(cmd.Context(), &rule); err != nil {
			if errors.Is(err, common.ErrDuplicateEntry) {
				return common.NewUserError("an identical rule already exists", err)
			}
			return fmt.Errorf("failed to add rule: %w", err)
		}
		_, err := fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Added rule %s: %q → %s", rule.ID, rule.Pattern, rule.Category)))
		return err
	})
}

func amountFlag(cmd *cobra.Command, name string) (*decimal.Decimal, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, common.NewUserError(fmt.Sprintf("invalid --%s %q", name, raw), err)
	}
	d = d.Abs()
	return &d, nil
}

func rulesSetActiveCmd(use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <rule-id>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(_ *config.Config, store *storage.SQLiteStorage, scope model.Scope) error {
				if err := store.SetRuleActive(cmd.Context(), scope, args[0], active); err != nil {
					if errors.Is(err, common.ErrNotFound) {
						return common.NewUserError(fmt.Sprintf("no rule %s in scope %s", args[0], scope), err)
					}
					return fmt.Errorf("failed to %s rule: %w", use, err)
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Rule %s %sd.", args[0], use)))
				return err
			})
		},
	}
}

func rulesSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Install the built-in system rules",
		Long: `Install a system rule for every built-in pattern (payroll, interest,
transfers, fees and so on). Rules that already exist are left alone, so
seeding twice is harmless.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(_ *config.Config, store *storage.SQLiteStorage, scope model.Scope) error {
				added, skipped := 0, 0
				for _, rule := range classification.SystemRules(scope, classification.DefaultPatterns()) {
					err := store.InsertRule(cmd.Context(), &rule)
					switch {
					case err == nil:
						added++
					case errors.Is(err, common.ErrDuplicateEntry):
						skipped++
					default:
						return fmt.Errorf("failed to seed rule %q: %w", rule.Pattern, err)
					}
				}
				slog.Info("Seeded system rules", "scope", scope, "added", added, "skipped", skipped)
				_, err := fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Seeded %d system rules (%d already present).", added, skipped)))
				return err
			})
		},
	}
}

func rulesTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Show which rules fire for a transaction",
		RunE: func(cmd *cobra.Command, _ []string) error {
			txn, err := transactionFromFlags(cmd)
			if err != nil {
				return err
			}
			return withStore(cmd, func(cfg *config.Config, store *storage.SQLiteStorage, scope model.Scope) error {
				rules, err := store.FindActiveRules(cmd.Context(), scope)
				if err != nil {
					return fmt.Errorf("failed to load rules: %w", err)
				}

				matcher := pattern.NewEngine(store, pattern.WithFloor(cfg.Rules.ShortCircuitFloor))
				out := cmd.OutOrStdout()
				fired := matcher.Fired(rules, txn)
				if _, err := fmt.Fprintln(out, cli.RenderRules(fired)); err != nil {
					return err
				}

				winner, ok := matcher.Winner(rules, txn)
				switch {
				case !ok:
					_, err = fmt.Fprintln(out, cli.FormatInfo("No rule fires; providers would be asked."))
				case winner.Confidence > matcher.Floor():
					_, err = fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Rule %s answers: %s.", winner.ID, winner.Category)))
				default:
					_, err = fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Best rule %s (%.2f) is not above %.2f; providers would be asked.",
						winner.ID, winner.Confidence, matcher.Floor())))
				}
				return err
			})
		},
	}

	cmd.Flags().StringP("description", "d", "", "transaction description")
	cmd.Flags().StringP("merchant", "m", "", "merchant name")
	cmd.Flags().String("amount", "0", "signed amount")
	cmd.Flags().String("date", "", "transaction date (YYYY-MM-DD)")
	cmd.Flags().String("ref", "", "transaction reference")

	return cmd
}
