package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	statusadapter "github.com/bnema/khaos-agent/internal/adapters/render/status"
	tomlrepo "github.com/bnema/khaos-agent/internal/adapters/repo/toml"
	"github.com/bnema/khaos-agent/internal/application"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newStatusCmd(c *cli) *cobra.Command {
	var asJSON bool
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show what the agent remembers, without starting it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := tomlrepo.NewRepository(c.cfg)
			if err != nil {
				return fmt.Errorf("wire memory repository: %w", err)
			}

			memory, err := repo.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("load memory: %w", err)
			}

			summary := application.SummarizeMemory(repo.Path(), memory)
			return writeMemorySummary(cmd, summary, asJSON, asYAML)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Output YAML")
	cmd.MarkFlagsMutuallyExclusive("json", "yaml")

	return cmd
}

func writeMemorySummary(cmd *cobra.Command, summary application.MemorySummary, asJSON, asYAML bool) error {
	switch {
	case asJSON:
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	case asYAML:
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(summary); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	}

	rendered, err := statusadapter.RenderMemory(summary, statusadapter.RenderOptions{Now: time.Now()})
	if err != nil {
		return fmt.Errorf("render memory: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}
