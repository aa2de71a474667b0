package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bnema/multisession/internal/adapters/sealed"
	"github.com/bnema/multisession/internal/config"
)

const defaultIdentityFile = "identity.txt"

// keygen skips wiring: the configured identity file usually does not exist
// yet, and loading it is part of wiring.
func newKeygenCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:         "keygen",
		Short:       "Create an age identity for sealing stored credentials",
		Long:        "keygen writes a new age X25519 identity. Point storage.identity_file at it to encrypt every credential record at rest. Records written before sealing was enabled are still read, so it is safe to enable on an existing sessions root.",
		Annotations: map[string]string{skipWireAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("resolve home directory: %w", err)
			}
			cfg, err := config.Load(viper.New(), home)
			if err != nil {
				return err
			}

			path := output
			if path == "" {
				path = cfg.Storage.IdentityFile
			}
			if path == "" {
				path = filepath.Join(config.Dir(home), defaultIdentityFile)
			}

			recipient, err := sealed.GenerateIdentityFile(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Wrote identity %s\n", path)
			_, _ = fmt.Fprintf(out, "Recipient: %s\n", recipient)
			if cfg.Storage.IdentityFile != path {
				_, _ = fmt.Fprintf(out, "Enable sealing with storage.identity_file = %q in %s\n", path, filepath.Join(config.Dir(home), "config.toml"))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Identity file path (default: storage.identity_file or ~/.msd/identity.txt)")

	return cmd
}
