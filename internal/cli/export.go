package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/remedian/remedian/internal/evidence"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Site           string
	CredentialHash string
	EventType      string
	Since          string
	Until          string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export evidence entries",
		Long: `Export evidence entries in chain order, optionally filtered by
time range, site, credential hash, or event type.

Export is raw retrieval: it does not check signatures. Use verify for
chain validity.

Examples:
  remedian export --db ./remedian.db
  remedian export --db ./remedian.db --site example.com --format json
  remedian export --db ./remedian.db --since 2026-08-01T00:00:00Z`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Site, "site", "", "filter by site")
	cmd.Flags().StringVar(&opts.CredentialHash, "credential-hash", "", "filter by credential id hash")
	cmd.Flags().StringVar(&opts.EventType, "event", "", "filter by event type")
	cmd.Flags().StringVar(&opts.Since, "since", "", "lower time bound (RFC 3339)")
	cmd.Flags().StringVar(&opts.Until, "until", "", "upper time bound (RFC 3339)")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	filter := evidence.Filter{
		Site:             opts.Site,
		CredentialIDHash: opts.CredentialHash,
		EventType:        evidence.EventType(opts.EventType),
	}
	if opts.Since != "" {
		t, err := time.Parse(time.RFC3339, opts.Since)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --since", err)
		}
		filter.From = t
	}
	if opts.Until != "" {
		t, err := time.Parse(time.RFC3339, opts.Until)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --until", err)
		}
		filter.To = t
	}

	svc, err := openService(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer svc.Close()

	entries, err := svc.ExportEvidence(ctx, filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "export failed", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), entries)
	}
	fmt.Fprint(cmd.OutOrStdout(), RenderEntries(entries))
	return nil
}
