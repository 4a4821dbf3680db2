package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-books-must-balance/internal/cli"
	"github.com/Veraticus/the-books-must-balance/internal/config"
	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/storage"
)

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent audit events",
		Long: `Show recent audit events: categorizations, provider failures, feedback
and rule promotions. Filter with --kind.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, _ := cmd.Flags().GetString("kind")
			limit, _ := cmd.Flags().GetInt("limit")

			return withStore(cmd, func(_ *config.Config, store *storage.SQLiteStorage, _ model.Scope) error {
				events, err := store.RecentAuditEvents(cmd.Context(), kind, limit)
				if err != nil {
					return fmt.Errorf("failed to load audit events: %w", err)
				}
				if len(events) == 0 {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.SubtleStyle.Render("No audit events."))
					return err
				}

				var b strings.Builder
				for _, e := range events {
					keys := make([]string, 0, len(e.Metadata))
					for k := range e.Metadata {
						keys = append(keys, k)
					}
					sort.Strings(keys)
					pairs := make([]string, len(keys))
					for i, k := range keys {
						pairs[i] = fmt.Sprintf("%s=%v", k, e.Metadata[k])
					}

					fmt.Fprintf(&b, "%s  %-18s %s\n",
						cli.SubtleStyle.Render(e.CreatedAt.Local().Format(time.DateTime)),
						cli.BoldStyle.Render(e.Kind),
						e.Description)
					if len(pairs) > 0 {
						b.WriteString("    " + cli.SubtleStyle.Render(strings.Join(pairs, " ")) + "\n")
					}
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), b.String())
				return err
			})
		},
	}

	cmd.Flags().String("kind", "", "only show events of this kind")
	cmd.Flags().Int("limit", 20, "maximum number of events")

	return cmd
}
