package cli

import (
	"context"

	"github.com/remedian/remedian/internal/config"
	"github.com/remedian/remedian/internal/service"
)

// openService loads configuration, applies the --db override, and
// opens the evidence and compliance store.
func openService(ctx context.Context, opts *RootOptions) (*service.Service, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.DBPath = opts.Database
	}

	svc, err := service.Open(ctx, cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}
	return svc, nil
}
