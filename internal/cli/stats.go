package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show store health and counters",
		Long: `Show store health (including degraded mode and storage integrity),
evidence chain length and head, and rule cache counters.

Examples:
  remedian stats --db ./remedian.db
  remedian stats --db ./remedian.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(rootOpts, cmd)
		},
	}
	return cmd
}

func runStats(opts *RootOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	svc, err := openService(ctx, opts)
	if err != nil {
		return err
	}
	defer svc.Close()

	health, err := svc.HealthCheck(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "health check failed", err)
	}

	stats, err := svc.GetStats(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "stats failed", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), map[string]any{
			"health": health,
			"stats":  stats,
		})
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, RenderHealth(health))
	fmt.Fprint(out, RenderStats(stats))
	return nil
}
