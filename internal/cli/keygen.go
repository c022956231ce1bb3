package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/remedian/remedian/internal/signer"
)

// KeygenOptions holds flags for the keygen command.
type KeygenOptions struct {
	*RootOptions
	Out   string
	Force bool
}

// NewKeygenCommand creates the keygen command.
func NewKeygenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &KeygenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate the Ed25519 signing key",
		Long: `Generate the process signing key and write it to a file with
owner-only permissions. The public half is printed for distribution
to verifiers.

Refuses to overwrite an existing key unless --force is given:
replacing the key makes previously exported signatures unverifiable
against the new public key.

Examples:
  remedian keygen --out ./remedian.key`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeygen(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Out, "out", "", "key file path (required)")
	_ = cmd.MarkFlagRequired("out")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "overwrite an existing key file")

	return cmd
}

func runKeygen(opts *KeygenOptions, cmd *cobra.Command) error {
	if !opts.Force {
		if _, err := os.Stat(opts.Out); err == nil {
			return WrapExitError(ExitCommandError,
				fmt.Sprintf("key file %s already exists (use --force to replace)", opts.Out), nil)
		}
	}

	sg, err := signer.Generate()
	if err != nil {
		return WrapExitError(ExitCommandError, "key generation failed", err)
	}
	defer sg.Close()

	if err := sg.Save(opts.Out); err != nil {
		return WrapExitError(ExitCommandError, "failed to write key file", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), map[string]string{
			"key_file":   opts.Out,
			"public_key": sg.PublicKeyHex(),
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Key written to %s\nPublic key: %s\n", opts.Out, sg.PublicKeyHex())
	return nil
}
