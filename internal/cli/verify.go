package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/remedian/remedian/internal/service"
)

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify the evidence chain end to end",
		Long: `Walk the evidence chain from genesis to head, recomputing every
chain hash and checking every signature.

Reports the exact entry id where the chain first breaks. A broken
chain exits with status 1.

Examples:
  remedian verify --db ./remedian.db
  remedian verify --db ./remedian.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(rootOpts, cmd)
		},
	}
	return cmd
}

func runVerify(opts *RootOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	svc, err := openService(ctx, opts)
	if err != nil {
		return err
	}
	defer svc.Close()

	report, err := svc.VerifyChain(ctx)
	var iv *service.IntegrityError
	if err != nil && !errors.As(err, &iv) {
		return WrapExitError(ExitCommandError, "verification could not run", err)
	}

	if opts.Format == "json" {
		if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
			return err
		}
	} else {
		fmt.Fprint(cmd.OutOrStdout(), RenderReport(report))
	}

	if !report.Valid {
		return WrapExitError(ExitFailure, "evidence chain is broken", nil)
	}
	return nil
}
