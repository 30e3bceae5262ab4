package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	statusadapter "github.com/bnema/khaos-agent/internal/adapters/render/status"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	metricsReadHeaderTimeout = 5 * time.Second
	metricsShutdownTimeout   = 5 * time.Second
	finalSaveTimeout         = 10 * time.Second
)

func newRunCmd(c *cli) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the agent and keep it alive until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("metrics-addr") {
				c.cfg.Set(keyMetricsAddr, metricsAddr)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runAgent(ctx, cmd, c)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (disabled when empty)")

	return cmd
}

func runAgent(ctx context.Context, cmd *cobra.Command, c *cli) error {
	a, err := wireAgent(ctx, c)
	if err != nil {
		return err
	}

	if err := a.memory.Load(ctx); err != nil {
		c.log.WithError(err).WithField("path", a.memoryPath).Warn("could not restore memory, starting with a blank one")
	}

	g, gctx := errgroup.WithContext(ctx)

	if addr := c.cfg.GetString(keyMetricsAddr); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.metrics.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: metricsReadHeaderTimeout}

		g.Go(func() error {
			c.log.WithField("addr", addr).Info("serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve metrics: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return superviseAgent(gctx, cmd, c, a)
	})

	return g.Wait()
}

// superviseAgent initializes the agent, waits for ctx to end and shuts the
// agent down. Shutdown always runs, even when initialization failed.
func superviseAgent(ctx context.Context, cmd *cobra.Command, c *cli, a *agent) error {
	report, initErr := a.orchestrator.Initialize(ctx)
	if initErr == nil {
		rendered, err := statusadapter.RenderStatus(report, statusadapter.RenderOptions{
			Now:        time.Now(),
			StaleAfter: 2 * c.cfg.GetDuration(keyHealthInterval),
		})
		if err == nil {
			_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
		}
		if err != nil {
			c.log.WithError(err).Warn("could not print status report")
		}

		<-ctx.Done()
	}

	saveCtx, cancel := context.WithTimeout(context.Background(), finalSaveTimeout)
	defer cancel()
	final := a.orchestrator.Shutdown(saveCtx)

	rendered, err := statusadapter.RenderFinal(final)
	if err != nil {
		return fmt.Errorf("render final report: %w", err)
	}
	if _, err := fmt.Fprintln(cmd.OutOrStdout(), rendered); err != nil {
		return err
	}

	// An interrupt during startup is a clean stop, not a failure.
	if initErr != nil && ctx.Err() == nil {
		return fmt.Errorf("initialize agent: %w", initErr)
	}

	return nil
}
