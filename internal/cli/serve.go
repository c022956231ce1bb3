package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// cleanInterval is how often the daemon reclaims expired rule rows.
// Correctness never depends on this running; it only bounds disk use.
const cleanInterval = time.Hour

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the remediation evidence daemon",
		Long: `Open the evidence and compliance store and serve it to the
validation and rotation workflows until interrupted.

Runs a periodic expired-rule sweep. Shuts down cleanly on SIGINT or
SIGTERM, releasing the store and zeroing the signing key.

Examples:
  remedian serve --config ./remedian.yaml
  remedian serve --db ./remedian.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts, cmd)
		},
	}
	return cmd
}

func runServe(opts *RootOptions, cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := openService(ctx, opts)
	if err != nil {
		return err
	}
	defer svc.Close()

	health, err := svc.HealthCheck(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "health check failed", err)
	}
	if health.Status != "ok" {
		fmt.Fprintf(cmd.ErrOrStderr(), "WARNING: %s\n", health.Warning)
	}

	ticker := time.NewTicker(cleanInterval)
	defer ticker.Stop()

	slog.Info("daemon running", "db", health.DBPath, "status", health.Status)

	for {
		select {
		case <-ctx.Done():
			slog.Info("daemon stopping: signal received")
			return nil
		case <-ticker.C:
			if _, err := svc.CleanExpired(ctx); err != nil {
				slog.Warn("expired rule sweep failed", "error", err)
			}
		}
	}
}
