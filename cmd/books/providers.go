package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/the-books-must-balance/internal/cli"
	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/config"
	"github.com/Veraticus/the-books-must-balance/internal/llm"
)

func providersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List configured AI providers",
		Long: `List the provider registry. The default provider is marked with *.

With --sample, the weighted selector is drawn from repeatedly and the
observed share of each provider is shown next to its weight.`,
		RunE: runProviders,
	}

	cmd.Flags().Int("sample", 0, "number of selector draws to sample")
	cmd.Flags().String("capability", string(llm.CapabilityCategorization), "capability to sample for")

	return cmd
}

func runProviders(cmd *cobra.Command, _ []string) error {
	samples, _ := cmd.Flags().GetInt("sample")
	capability, _ := cmd.Flags().GetString("capability")

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return common.NewUserError("invalid configuration", err)
	}
	registry, err := cfg.Registry()
	if err != nil {
		return common.NewUserError("invalid provider configuration", err)
	}

	var share map[string]float64
	if samples > 0 {
		share = sampleSelector(llm.NewSelector(registry, cfg.RNG()), llm.Capability(capability), samples)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.RenderProviders(registry.All(), registry.DefaultID(), share))
	return err
}

// sampleSelector returns the fraction of n draws that picked each provider.
func sampleSelector(selector *llm.Selector, capability llm.Capability, n int) map[string]float64 {
	counts := make(map[string]int)
	for range n {
		counts[selector.Select(capability)]++
	}
	share := make(map[string]float64, len(counts))
	for id, c := range counts {
		share[id] = float64(c) / float64(n)
	}
	return share
}
