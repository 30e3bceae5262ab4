package cmd

import (
	"context"
	"fmt"
	"time"

	statusadapter "github.com/bnema/khaos-agent/internal/adapters/render/status"
	"github.com/bnema/khaos-agent/internal/ports"
	"github.com/spf13/cobra"
)

const defaultProbeTimeout = 30 * time.Second

func newProbeCmd(c *cli) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Try one connection to the configured DAO source and print its state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			source, err := buildSource(ctx, c.cfg)
			if err != nil {
				return err
			}
			client := newStateClient(c.cfg, source, ports.SystemClock{})

			label := fmt.Sprintf("Connecting to %s...", source.Target())
			probeErr := runProbeSpinner(ctx, cmd.ErrOrStderr(), label, client.Connect)

			rendered, err := statusadapter.RenderConnection(client.Status(), statusadapter.RenderOptions{Now: time.Now()})
			if err != nil {
				return fmt.Errorf("render connection: %w", err)
			}
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), rendered); err != nil {
				return err
			}

			if probeErr != nil {
				return fmt.Errorf("probe %s: %w", source.Target(), probeErr)
			}

			c.log.WithField("target", source.Target()).Debug("probe succeeded")
			client.Disconnect()
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", defaultProbeTimeout, "Give up after this long")

	return cmd
}
