package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Show the admin token",
		Long: `Show the admin token used by the protected API endpoints.

Use this when you've scrolled past the startup message.

Example:
  vgoat token`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			token := cfg.Auth.AdminToken
			if token == "" {
				data, err := os.ReadFile(cfg.Auth.TokenFile)
				if err != nil {
					if errors.Is(err, os.ErrNotExist) {
						return fmt.Errorf("no token yet. Start the server with: vgoat serve")
					}
					return fmt.Errorf("failed to read token file: %w", err)
				}
				token = strings.TrimSpace(string(data))
			}
			if token == "" {
				return fmt.Errorf("token file is empty. Restart the server with: vgoat serve")
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Admin token: %s\n", token)
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Send it as 'Authorization: Bearer %s' or in the vg_token cookie.\n", token)
			return nil
		},
	}
}
