package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewCleanCommand creates the clean command.
func NewCleanCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Reclaim expired rule cache rows",
		Long: `Delete rule set rows whose expiry passed the configured grace
window. Space reclamation only: reads already filter by expiry, so
skipping clean never returns stale rules.

Examples:
  remedian clean --db ./remedian.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClean(rootOpts, cmd)
		},
	}
	return cmd
}

func runClean(opts *RootOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	svc, err := openService(ctx, opts)
	if err != nil {
		return err
	}
	defer svc.Close()

	n, err := svc.CleanExpired(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "clean failed", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Reclaimed %d expired rule set rows\n", n)
	return nil
}
