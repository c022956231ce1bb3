package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// BackupOptions holds flags for the backup command.
type BackupOptions struct {
	*RootOptions
	Destination string
}

// NewBackupCommand creates the backup command.
func NewBackupCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BackupOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a consistent point-in-time copy of the database",
		Long: `Write a point-in-time consistent copy of the database to the given
destination. Safe to run while the daemon is writing. The destination
must not already exist.

Examples:
  remedian backup --db ./remedian.db --dest ./remedian-2026-08-29.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackup(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Destination, "dest", "", "backup destination path (required)")
	_ = cmd.MarkFlagRequired("dest")

	return cmd
}

func runBackup(opts *BackupOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	svc, err := openService(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.Backup(ctx, opts.Destination); err != nil {
		return WrapExitError(ExitCommandError, "backup failed", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Backup written to %s\n", opts.Destination)
	return nil
}
